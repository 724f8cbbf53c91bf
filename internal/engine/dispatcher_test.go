package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher(t *testing.T) {
	t.Run("trigger runs a cycle for the business", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		p := h.addProvider(businessID, nil, true)
		apt := h.addAppointment(businessID, p.ID, testDay, 30, nil)
		h.clock.Advance(20 * time.Minute)

		d := NewDispatcher(h.engine, h.log)
		defer d.Stop()
		d.Trigger(businessID)

		require.Eventually(t, func() bool {
			got, err := h.store.Get(context.Background(), apt.ID)
			return err == nil && got.DelayMinutes == 20
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("repeated triggers coalesce without blocking", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		d := NewDispatcher(h.engine, h.log)
		defer d.Stop()

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				d.Trigger(businessID)
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("trigger burst blocked")
		}
	})

	t.Run("distinct businesses get distinct workers", func(t *testing.T) {
		h := newHarness(testDay)
		d := NewDispatcher(h.engine, h.log)
		defer d.Stop()

		a, b := uuid.New(), uuid.New()
		d.Trigger(a)
		d.Trigger(b)

		require.Eventually(t, func() bool {
			d.mu.Lock()
			defer d.mu.Unlock()
			return len(d.workers) == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("stop drains workers and ignores late triggers", func(t *testing.T) {
		businessID := uuid.New()
		h := newHarness(testDay)
		d := NewDispatcher(h.engine, h.log)
		d.Trigger(businessID)
		d.Stop()

		d.Trigger(uuid.New())
		d.mu.Lock()
		defer d.mu.Unlock()
		assert.Len(t, d.workers, 1, "no new workers after shutdown")
	})
}
