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

func delayRecord(apt *model.Appointment, minutes int) model.DelayRecord {
	return model.DelayRecord{
		AppointmentID: apt.ID,
		ProviderID:    apt.AssignedProviderID,
		BusinessID:    apt.BusinessID,
		DelayMinutes:  minutes,
	}
}

func TestPlannerConsider(t *testing.T) {
	ctx := context.Background()

	t.Run("reassigns to a matching free provider", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, []string{"SURG"}, true)
		free := h.addProvider(businessID, []string{"SURG", "DERM"}, true)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, []string{"SURG"})

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.True(t, out.Reassigned)
		assert.Equal(t, free.ID, out.ProviderID)
		assert.Equal(t, busy.ID, out.PreviousProviderID)

		got, err := h.store.Get(ctx, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, free.ID, got.AssignedProviderID)
		require.NotNil(t, got.ShiftedFromID)
		assert.Equal(t, busy.ID, *got.ShiftedFromID)
		assert.Equal(t, 20, got.DelayMinutes, "client is still late, just not later")

		events := h.audit.byEvent(model.AuditEventReassign)
		require.Len(t, events, 1)
		assert.Equal(t, busy.ID, events[0].Payload["previous_provider_id"])
	})

	t.Run("skill mismatch leaves the delay in place", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, []string{"SURG"}, true)
		h.addProvider(businessID, []string{"DERM"}, true)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, []string{"SURG"})

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.False(t, out.Reassigned)
		assert.Equal(t, "no eligible alternative provider", out.Reason)

		got, err := h.store.Get(ctx, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, busy.ID, got.AssignedProviderID)
		assert.Equal(t, 20, got.DelayMinutes)
		assert.Len(t, h.audit.byEvent(model.AuditEventAssistantCycle), 1)
	})

	t.Run("availability is judged at the delayed start", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, nil, true)
		alt := h.addProvider(businessID, nil, true)
		// The alternative is occupied at the scheduled time but free once
		// the 20 minute delay pushes the slot past their booking.
		h.addAppointment(businessID, alt.ID, testDay.Add(-10*time.Minute), 30, nil)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, nil)

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.True(t, out.Reassigned)
		assert.Equal(t, alt.ID, out.ProviderID)
	})

	t.Run("ties break on least backlog then recency then id", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, nil, true)
		loaded := h.addProvider(businessID, nil, true)
		light := h.addProvider(businessID, nil, true)
		h.addAppointment(businessID, loaded.ID, testDay.Add(2*time.Hour), 60, nil)
		h.addAppointment(businessID, light.ID, testDay.Add(2*time.Hour), 15, nil)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, nil)

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.Equal(t, light.ID, out.ProviderID)
	})

	t.Run("equal backlog falls back to most recent presence", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, nil, true)
		staleSeen := h.addProvider(businessID, nil, true)
		freshSeen := h.addProvider(businessID, nil, true)
		old := testDay.Add(-2 * time.Hour)
		h.providers.providers[staleSeen.ID].LastSeen = &old
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, nil)

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.Equal(t, freshSeen.ID, out.ProviderID)
	})

	t.Run("one conflict retries against fresh state and commits once", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, nil, true)
		h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, nil)
		h.store.conflictAssignments = 1

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.True(t, out.Reassigned)

		got, err := h.store.Get(ctx, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, out.ProviderID, got.AssignedProviderID)
		assert.Equal(t, 2, got.Version, "exactly one committed write")
		assert.Len(t, h.audit.byEvent(model.AuditEventReassign), 1, "never double-booked")
	})

	t.Run("repeated conflicts degrade to delay accepted", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, nil, true)
		h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, nil)
		h.store.conflictAssignments = 2

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.False(t, out.Reassigned)
		assert.Equal(t, "reassignment lost repeated commit race", out.Reason)

		got, err := h.store.Get(ctx, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, busy.ID, got.AssignedProviderID)
		assert.Equal(t, 20, got.DelayMinutes)
	})

	t.Run("closed appointment is left alone", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		busy := h.addProvider(businessID, nil, true)
		h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, busy.ID, testDay, 30, nil)
		require.NoError(t, h.store.UpdateStatus(ctx, apt.ID, model.AppointmentStatusCancelled))

		out, err := h.planner.Consider(ctx, delayRecord(apt, 20))
		require.NoError(t, err)
		assert.False(t, out.Reassigned)
		assert.Empty(t, h.audit.byEvent(model.AuditEventReassign))
	})
}

func TestPlannerSuggest(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()
	h := newHarness(testDay)
	busy := h.addProvider(businessID, []string{"SURG"}, true)
	free := h.addProvider(businessID, []string{"SURG"}, true)

	late := h.addAppointment(businessID, busy.ID, testDay, 30, []string{"SURG"})
	require.NoError(t, h.store.UpdateDelay(ctx, late.ID, 25, late.Version))
	minor := h.addAppointment(businessID, busy.ID, testDay.Add(2*time.Hour), 30, []string{"SURG"})
	require.NoError(t, h.store.UpdateDelay(ctx, minor.ID, 5, minor.Version))

	suggestions, err := h.planner.Suggest(ctx, businessID, 15)
	require.NoError(t, err)
	require.Len(t, suggestions, 1, "only delays past the threshold are proposed")
	assert.Equal(t, late.ID, suggestions[0].AppointmentID)
	assert.Equal(t, free.ID, suggestions[0].ToProvider)

	// Dry run: nothing was committed.
	got, err := h.store.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, busy.ID, got.AssignedProviderID)
	assert.Empty(t, h.audit.byEvent(model.AuditEventReassign))
}

func TestSuggestRanksOnlineProvidersFirst(t *testing.T) {
	ctx := context.Background()
	businessID := uuid.New()
	h := newHarness(testDay)
	busy := h.addProvider(businessID, []string{"SURG"}, true)
	offline := h.addProvider(businessID, []string{"SURG"}, true)
	online := h.addProvider(businessID, []string{"SURG"}, true)

	h.providers.providers[offline.ID].IsOnline = false
	// The online alternative carries more backlog than the offline one.
	h.addAppointment(businessID, online.ID, testDay.Add(4*time.Hour), 60, nil)

	late := h.addAppointment(businessID, busy.ID, testDay, 30, []string{"SURG"})
	require.NoError(t, h.store.UpdateDelay(ctx, late.ID, 25, late.Version))

	suggestions, err := h.planner.Suggest(ctx, businessID, 15)
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, online.ID, suggestions[0].ToProvider,
		"presence outranks backlog in suggestions")

	// Committing keeps the standard tie-break: least backlog wins, so the
	// offline provider takes the appointment.
	out, err := h.planner.Consider(ctx, model.DelayRecord{
		AppointmentID: late.ID,
		ProviderID:    busy.ID,
		BusinessID:    businessID,
		DelayMinutes:  25,
	})
	require.NoError(t, err)
	require.True(t, out.Reassigned)
	assert.Equal(t, offline.ID, out.ProviderID,
		"presence stays advisory on the commit path")
}
