package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCapacity(t *testing.T) {
	ctx := context.Background()

	t.Run("light load is stable", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true) // 08:00-18:00, 540 min left at 09:00
		h.addAppointment(businessID, p.ID, testDay.Add(time.Hour), 60, nil)

		report, err := h.snapshot.AnalyzeCapacity(ctx, businessID, h.clock)
		require.NoError(t, err)
		assert.Equal(t, HealthStable, report.Status)
		assert.Equal(t, 1, report.ProvidersOnline)
		assert.Equal(t, 60, report.LoadMinutes)
		assert.Equal(t, 540, report.CapacityMinutes)
		assert.Empty(t, report.AtRisk)
	})

	t.Run("80 percent utilization is a warning", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		for i := 0; i < 8; i++ {
			h.addAppointment(businessID, p.ID, testDay.Add(time.Duration(i)*time.Hour), 55, nil)
		}

		report, err := h.snapshot.AnalyzeCapacity(ctx, businessID, h.clock)
		require.NoError(t, err)
		assert.Equal(t, HealthWarning, report.Status)
		assert.Equal(t, 440, report.LoadMinutes)
	})

	t.Run("load past capacity is critical", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		for i := 0; i < 10; i++ {
			h.addAppointment(businessID, p.ID, testDay.Add(time.Duration(i)*30*time.Minute), 60, nil)
		}

		report, err := h.snapshot.AnalyzeCapacity(ctx, businessID, h.clock)
		require.NoError(t, err)
		assert.Equal(t, HealthCritical, report.Status)
		assert.GreaterOrEqual(t, report.UtilizationPct, 100)
	})

	t.Run("heavy delay flags the appointment at risk", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, p.ID, testDay, 30, nil)
		require.NoError(t, h.store.UpdateDelay(ctx, apt.ID, 30, apt.Version))

		report, err := h.snapshot.AnalyzeCapacity(ctx, businessID, h.clock)
		require.NoError(t, err)
		require.Len(t, report.AtRisk, 1)
		assert.Equal(t, apt.ID, report.AtRisk[0].AppointmentID)
		assert.Equal(t, "delay exceeds tolerable wait", report.AtRisk[0].Reason)
	})

	t.Run("projected overrun of closing time is at risk", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		// 17:50 start with 30 minutes of work runs past the 18:00 close.
		apt := h.addAppointment(businessID, p.ID, testDay.Add(8*time.Hour+50*time.Minute), 30, nil)

		report, err := h.snapshot.AnalyzeCapacity(ctx, businessID, h.clock)
		require.NoError(t, err)
		require.Len(t, report.AtRisk, 1)
		assert.Equal(t, apt.ID, report.AtRisk[0].AppointmentID)
		assert.Equal(t, "projected to finish after closing", report.AtRisk[0].Reason)
	})

	t.Run("no roster means no capacity but nothing at risk", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)

		report, err := h.snapshot.AnalyzeCapacity(ctx, businessID, h.clock)
		require.NoError(t, err)
		assert.Equal(t, HealthStable, report.Status)
		assert.Zero(t, report.CapacityMinutes)
		assert.Zero(t, report.LoadMinutes)
	})
}
