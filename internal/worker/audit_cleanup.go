package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/apptracker/balancer-api/internal/service/audit"
	"github.com/apptracker/balancer-api/pkg/logger"
)

// AuditCleanupWorker ages out audit entries past the retention window.
type AuditCleanupWorker struct {
	auditSvc        *audit.Service
	retentionDays   int
	cleanupInterval time.Duration
	logger          *logger.Logger
}

func NewAuditCleanupWorker(auditSvc *audit.Service, retentionDays int, cleanupInterval time.Duration, log *logger.Logger) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		auditSvc:        auditSvc,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          log,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil {
				w.logger.ZL.Error().Err(err).Msg("audit cleanup failed")
			}
		}
	}
}

func (w *AuditCleanupWorker) cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.auditSvc.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit entries: %w", err)
	}

	if rows > 0 {
		w.logger.ZL.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("aged out audit entries")
	}
	return nil
}
