package audit

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/service/audit"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/httputil"
)

const defaultLimit = 100

type Handler struct {
	service *audit.Service
}

func NewHandler(service *audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit", h.List)
}

// List replays the decision trail. Filtering by appointment_id walks one
// appointment's full history through detections, cascades and moves.
func (h *Handler) List(c *gin.Context) {
	businessID, err := uuid.Parse(c.Query("business_id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid business ID", err))
		return
	}

	filters := &model.AuditFilters{
		BusinessID: businessID,
		Event:      c.Query("event"),
		Limit:      defaultLimit,
	}
	if v := c.Query("appointment_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid appointment ID", err))
			return
		}
		filters.AppointmentID = id
	}
	if v := c.Query("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.RespondWithError(c, apperrors.NewBadRequest("invalid since timestamp, expected RFC3339", err))
			return
		}
		filters.Since = ts
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.RespondWithError(c, apperrors.NewBadRequest("limit must be between 1 and 1000", err))
			return
		}
		filters.Limit = n
	}

	entries, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entries)
}
