package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/apptracker/balancer-api/internal/model"
)

func testEntry(acceptsTransfers bool) *RosterEntry {
	return &RosterEntry{
		Provider: &model.Provider{
			Base:             model.Base{ID: uuid.New()},
			AcceptsTransfers: acceptsTransfers,
		},
		Hours: map[time.Weekday]*model.WorkingHours{
			time.Tuesday: {Open: "09:00", Close: "17:00", IsActive: true},
		},
		Breaks: map[time.Weekday][]*model.Break{},
	}
}

func TestAvailableAt(t *testing.T) {
	slot := 30 * time.Minute

	t.Run("transfer opt-out is never eligible", func(t *testing.T) {
		e := testEntry(false)
		assert.False(t, e.AvailableAt(testDay.Add(time.Hour), slot, uuid.Nil))
	})

	t.Run("slot must sit inside the shift", func(t *testing.T) {
		e := testEntry(true)
		assert.True(t, e.AvailableAt(testDay.Add(time.Hour), slot, uuid.Nil)) // 10:00
		assert.False(t, e.AvailableAt(testDay.Add(-time.Hour), slot, uuid.Nil), "before opening")
		assert.False(t, e.AvailableAt(testDay.Add(8*time.Hour).Add(-15*time.Minute), slot, uuid.Nil), "runs past closing")
		assert.True(t, e.AvailableAt(testDay.Add(8*time.Hour).Add(-30*time.Minute), slot, uuid.Nil), "ends exactly at closing")
	})

	t.Run("no shift on that weekday", func(t *testing.T) {
		e := testEntry(true)
		wednesday := testDay.Add(24 * time.Hour)
		assert.False(t, e.AvailableAt(wednesday.Add(time.Hour), slot, uuid.Nil))
	})

	t.Run("inactive day is a day off", func(t *testing.T) {
		e := testEntry(true)
		e.Hours[time.Tuesday].IsActive = false
		assert.False(t, e.AvailableAt(testDay.Add(time.Hour), slot, uuid.Nil))
	})

	t.Run("breaks block with half-open overlap", func(t *testing.T) {
		e := testEntry(true)
		e.Breaks[time.Tuesday] = []*model.Break{{Start: "12:00", DurationMinutes: 60}}

		noon := testDay.Add(3 * time.Hour)
		assert.False(t, e.AvailableAt(noon.Add(-15*time.Minute), slot, uuid.Nil), "straddles break start")
		assert.False(t, e.AvailableAt(noon.Add(30*time.Minute), slot, uuid.Nil), "inside break")
		assert.True(t, e.AvailableAt(noon.Add(-30*time.Minute), slot, uuid.Nil), "ends exactly at break start")
		assert.True(t, e.AvailableAt(noon.Add(time.Hour), slot, uuid.Nil), "starts exactly at break end")
	})

	t.Run("queue conflicts block, back-to-back does not", func(t *testing.T) {
		e := testEntry(true)
		booked := &model.Appointment{
			Base:            model.Base{ID: uuid.New()},
			ScheduledStart:  testDay.Add(time.Hour), // 10:00-10:30
			DurationMinutes: 30,
			Status:          model.AppointmentStatusPending,
		}
		e.Queue = []*model.Appointment{booked}

		assert.False(t, e.AvailableAt(testDay.Add(time.Hour).Add(15*time.Minute), slot, uuid.Nil))
		assert.True(t, e.AvailableAt(testDay.Add(time.Hour).Add(30*time.Minute), slot, uuid.Nil), "starts when the other ends")
	})

	t.Run("delayed queue entry occupies its effective slot", func(t *testing.T) {
		e := testEntry(true)
		booked := &model.Appointment{
			Base:            model.Base{ID: uuid.New()},
			ScheduledStart:  testDay.Add(time.Hour), // effectively 10:20-10:50
			DurationMinutes: 30,
			DelayMinutes:    20,
			Status:          model.AppointmentStatusPending,
		}
		e.Queue = []*model.Appointment{booked}

		assert.False(t, e.AvailableAt(testDay.Add(time.Hour).Add(30*time.Minute), slot, uuid.Nil))
		assert.True(t, e.AvailableAt(testDay.Add(time.Hour).Add(50*time.Minute), slot, uuid.Nil))
	})

	t.Run("cancelled queue entries and the excluded appointment are ignored", func(t *testing.T) {
		e := testEntry(true)
		cancelled := &model.Appointment{
			Base:            model.Base{ID: uuid.New()},
			ScheduledStart:  testDay.Add(time.Hour),
			DurationMinutes: 30,
			Status:          model.AppointmentStatusCancelled,
		}
		moving := &model.Appointment{
			Base:            model.Base{ID: uuid.New()},
			ScheduledStart:  testDay.Add(2 * time.Hour),
			DurationMinutes: 30,
			Status:          model.AppointmentStatusPending,
		}
		e.Queue = []*model.Appointment{cancelled, moving}

		assert.True(t, e.AvailableAt(testDay.Add(time.Hour), slot, uuid.Nil))
		assert.True(t, e.AvailableAt(testDay.Add(2*time.Hour), slot, moving.ID))
	})
}

func TestSkillsMatch(t *testing.T) {
	assert.True(t, SkillsMatch(nil, nil), "no requirements always match")
	assert.True(t, SkillsMatch(nil, []string{"SURG"}))
	assert.False(t, SkillsMatch([]string{"SURG"}, nil))
	assert.True(t, SkillsMatch([]string{"SURG"}, []string{"DERM", "SURG"}))
	assert.False(t, SkillsMatch([]string{"SURG", "PEDS"}, []string{"SURG"}), "subset test, not intersection")
	assert.False(t, SkillsMatch([]string{"surg"}, []string{"SURG"}), "codes are case sensitive")
}
