package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/apptracker/balancer-api/internal/handler/health"
	"github.com/apptracker/balancer-api/internal/handler/prometheus"
	"github.com/apptracker/balancer-api/internal/middleware"
	"github.com/apptracker/balancer-api/pkg/auth"
)

// Handler registers a route group on the API.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	Timeout    time.Duration
	CORSConfig middleware.CORSConfig
}

type Router struct {
	engine      *gin.Engine
	jwtSvc      *auth.JWTService
	healthH     *health.Handler
	promH       *prometheus.Handler
	apiHandlers []Handler
	config      Config
}

func NewRouter(jwtSvc *auth.JWTService, healthH *health.Handler, promH *prometheus.Handler, config Config, apiHandlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:      gin.New(),
		jwtSvc:      jwtSvc,
		healthH:     healthH,
		promH:       promH,
		apiHandlers: apiHandlers,
		config:      config,
	}
}

// Setup wires middleware and routes. Health and metrics stay outside the
// authenticated group so probes and scrapers need no token.
func (r *Router) Setup() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.ErrorHandler())
	r.engine.Use(middleware.CORS(r.config.CORSConfig))
	r.engine.Use(r.promH.Middleware())

	if r.config.Timeout > 0 {
		r.engine.Use(middleware.Timeout(r.config.Timeout))
	}
	if r.config.RateLimit > 0 {
		r.engine.Use(middleware.RateLimit(r.config.RateLimit, r.config.RateBurst))
	}

	root := r.engine.Group("")
	r.healthH.RegisterRoutes(root)
	r.engine.GET("/metrics", r.promH.Handler())

	api := r.engine.Group("/api/v1")
	api.Use(middleware.Auth(r.jwtSvc))
	for _, h := range r.apiHandlers {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
