package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/pkg/auth"
)

const (
	ContextClaims  = "auth_claims"
	ContextActorID = "actor_id"
)

// Auth validates the bearer token and stashes its claims. The subject
// claim becomes the actor recorded on audit entries for manual actions.
func Auth(jwtSvc *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}

		claims, err := jwtSvc.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ContextClaims, claims)
		if actorID, err := uuid.Parse(claims.Subject); err == nil {
			c.Set(ContextActorID, actorID)
		}
		c.Next()
	}
}

// RequireBusiness rejects tokens scoped to a different business than the
// one named in the route.
func RequireBusiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFrom(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		routeID, err := uuid.Parse(c.Param("id"))
		if err == nil && claims.BusinessID != uuid.Nil && claims.BusinessID != routeID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token not valid for this business"})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the validated claims, nil when unauthenticated.
func ClaimsFrom(c *gin.Context) *auth.Claims {
	if v, exists := c.Get(ContextClaims); exists {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// ActorID resolves who performed the current request. Unauthenticated or
// tokenless calls fall back to the system actor.
func ActorID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(ContextActorID); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return model.SystemActorID
}
