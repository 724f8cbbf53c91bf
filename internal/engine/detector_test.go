package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apptracker/balancer-api/internal/model"
)

var testDay = time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC) // Tuesday 09:00

func TestDetectorScan(t *testing.T) {
	businessID := uuid.New()

	t.Run("within grace window reports nothing", func(t *testing.T) {
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		h.addAppointment(businessID, p.ID, testDay, 30, nil)

		h.clock.Advance(5 * time.Minute)
		records, err := h.detector.Scan(context.Background(), businessID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("reports floored minutes past grace", func(t *testing.T) {
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, p.ID, testDay, 30, nil)

		h.clock.Advance(20*time.Minute + 30*time.Second)
		records, err := h.detector.Scan(context.Background(), businessID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, apt.ID, records[0].AppointmentID)
		assert.Equal(t, p.ID, records[0].ProviderID)
		assert.Equal(t, 20, records[0].DelayMinutes)

		events := h.audit.byEvent(model.AuditEventDelayDetect)
		require.Len(t, events, 1)
		assert.Equal(t, model.SystemActorID, events[0].Actor)
	})

	t.Run("unchanged queue emits nothing twice", func(t *testing.T) {
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, p.ID, testDay, 30, nil)

		h.clock.Advance(20 * time.Minute)
		records, err := h.detector.Scan(context.Background(), businessID)
		require.NoError(t, err)
		require.Len(t, records, 1)

		// Persisting the observation is the planner's job; mirror it here.
		require.NoError(t, h.store.UpdateDelay(context.Background(), apt.ID, records[0].DelayMinutes, apt.Version))

		records, err = h.detector.Scan(context.Background(), businessID)
		require.NoError(t, err)
		assert.Empty(t, records, "second pass over unchanged state must be silent")

		// More time passing grows the delay and is reported again.
		h.clock.Advance(10 * time.Minute)
		records, err = h.detector.Scan(context.Background(), businessID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 30, records[0].DelayMinutes)
	})

	t.Run("active and terminal appointments are skipped", func(t *testing.T) {
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		started := h.addAppointment(businessID, p.ID, testDay, 30, nil)
		done := h.addAppointment(businessID, p.ID, testDay, 30, nil)
		require.NoError(t, h.store.UpdateStatus(context.Background(), started.ID, model.AppointmentStatusActive))
		require.NoError(t, h.store.UpdateStatus(context.Background(), done.ID, model.AppointmentStatusCompleted))

		h.clock.Advance(time.Hour)
		records, err := h.detector.Scan(context.Background(), businessID)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("terminal transition clears the cached delay", func(t *testing.T) {
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, p.ID, testDay, 30, nil)
		require.NoError(t, h.store.UpdateDelay(context.Background(), apt.ID, 25, apt.Version))

		require.NoError(t, h.store.UpdateStatus(context.Background(), apt.ID, model.AppointmentStatusCancelled))
		got, err := h.store.Get(context.Background(), apt.ID)
		require.NoError(t, err)
		assert.Zero(t, got.DelayMinutes)
	})
}
