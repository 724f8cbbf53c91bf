package engine

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	core "github.com/apptracker/balancer-api/internal/engine"
	"github.com/apptracker/balancer-api/internal/middleware"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/httputil"
)

// Handler exposes the balancing engine: manual cycle runs, dry-run
// reassignment suggestions, and the capacity health report.
type Handler struct {
	engine              *core.Engine
	planner             *core.Planner
	snapshot            *core.SnapshotSource
	clock               core.Clock
	suggestThresholdMin int
}

func NewHandler(engine *core.Engine, planner *core.Planner, snapshot *core.SnapshotSource, clock core.Clock, suggestThresholdMin int) *Handler {
	return &Handler{
		engine:              engine,
		planner:             planner,
		snapshot:            snapshot,
		clock:               clock,
		suggestThresholdMin: suggestThresholdMin,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	eng := r.Group("/businesses/:id/engine")
	eng.Use(middleware.RequireBusiness())
	{
		eng.POST("/run", h.Run)
		eng.GET("/suggestions", h.Suggestions)
		eng.GET("/health", h.Health)
	}
}

// Run executes one synchronous cycle and returns its report. Operators use
// it to force a re-balance without waiting for the worker cadence.
func (h *Handler) Run(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid business ID", err))
		return
	}

	report, err := h.engine.RunCycle(c.Request.Context(), businessID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, report)
}

func (h *Handler) Suggestions(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid business ID", err))
		return
	}

	suggestions, err := h.planner.Suggest(c.Request.Context(), businessID, h.suggestThresholdMin)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"suggestions": suggestions, "threshold_minutes": h.suggestThresholdMin})
}

func (h *Handler) Health(c *gin.Context) {
	businessID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NewBadRequest("invalid business ID", err))
		return
	}

	report, err := h.snapshot.AnalyzeCapacity(c.Request.Context(), businessID, h.clock)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, report)
}
