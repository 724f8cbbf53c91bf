package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/metrics"
)

// Outcome describes what the planner decided for a single delayed
// appointment: a committed reassignment, or the delay accepted in place.
type Outcome struct {
	AppointmentID      uuid.UUID
	Reassigned         bool
	ProviderID         uuid.UUID
	PreviousProviderID uuid.UUID
	DelayMinutes       int
	Reason             string
}

// Suggestion is a dry-run reassignment proposal. Nothing is committed;
// the caller surfaces these to an operator.
type Suggestion struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	FromProvider  uuid.UUID `json:"from_provider_id"`
	ToProvider    uuid.UUID `json:"to_provider_id"`
	DelayMinutes  int       `json:"delay_minutes"`
	Reason        string    `json:"reason"`
}

// Planner walks a delayed appointment through match, filter, select and
// commit. Commits are optimistic: a version conflict triggers exactly one
// retry against a refreshed roster before the delay is accepted in place.
type Planner struct {
	store    repository.AppointmentRepository
	snapshot *SnapshotSource
	audit    Auditor
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewPlanner(store repository.AppointmentRepository, snapshot *SnapshotSource, audit Auditor, m *metrics.Metrics, log *logger.Logger) *Planner {
	return &Planner{
		store:    store,
		snapshot: snapshot,
		audit:    audit,
		metrics:  m,
		logger:   log,
	}
}

// Consider decides the fate of one delayed appointment. It re-reads the
// appointment first so the decision is made against current state, not
// the detector's view from the start of the cycle.
func (p *Planner) Consider(ctx context.Context, rec model.DelayRecord) (*Outcome, error) {
	apt, err := p.store.Get(ctx, rec.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("planner consider: %w", err)
	}
	if apt.Status.Terminal() {
		return &Outcome{AppointmentID: apt.ID, Reason: "appointment already closed"}, nil
	}

	roster, err := p.snapshot.Load(ctx, rec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("planner consider: %w", err)
	}

	out, err := p.attempt(ctx, apt, roster, rec)
	if err == nil || !apperrors.IsConflict(err) {
		return out, err
	}

	// Someone else moved first. One retry against fresh state, then give up
	// and leave the delay in place.
	p.metrics.PlannerConflicts.Inc()
	p.logger.ZL.Debug().
		Str("appointment_id", apt.ID.String()).
		Msg("assignment version conflict, retrying against refreshed roster")

	roster, err = p.snapshot.Refresh(ctx, rec.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("planner retry: %w", err)
	}
	apt, err = p.store.Get(ctx, rec.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("planner retry: %w", err)
	}
	if apt.Status.Terminal() {
		return &Outcome{AppointmentID: apt.ID, Reason: "appointment closed during retry"}, nil
	}

	out, err = p.attempt(ctx, apt, roster, rec)
	if err != nil && apperrors.IsConflict(err) {
		return p.acceptDelay(ctx, apt, rec, "reassignment lost repeated commit race")
	}
	return out, err
}

// attempt runs one match/filter/select/commit pass. A version conflict
// surfaces as apperrors.ErrVersionConflict for the caller to handle.
func (p *Planner) attempt(ctx context.Context, apt *model.Appointment, roster *Roster, rec model.DelayRecord) (*Outcome, error) {
	candidate := p.selectCandidate(apt, roster, rec.DelayMinutes, false)
	if candidate == nil {
		return p.acceptDelay(ctx, apt, rec, "no eligible alternative provider")
	}

	prev := apt.AssignedProviderID
	shiftedFrom := prev
	err := p.store.UpdateAssignment(ctx, apt.ID, candidate.Provider.ID, &shiftedFrom, rec.DelayMinutes, apt.Version)
	if err != nil {
		return nil, err
	}

	// Keep the in-memory roster consistent for the rest of the cycle so a
	// later appointment does not double-book the same slot.
	moved := *apt
	moved.AssignedProviderID = candidate.Provider.ID
	moved.DelayMinutes = rec.DelayMinutes
	moved.Version++
	candidate.Queue = append(candidate.Queue, &moved)
	if from := roster.Entry(prev); from != nil {
		from.removeFromQueue(apt.ID)
	}

	p.audit.Emit(ctx, apt.BusinessID, model.AuditEventReassign, model.SystemActorID, model.JSONMap{
		"appointment_id":         apt.ID,
		"provider_id":            candidate.Provider.ID,
		"previous_provider_id":   prev,
		"delay_minutes":          rec.DelayMinutes,
		"trigger_appointment_id": rec.TriggerID,
	})

	p.logger.ZL.Info().
		Str("appointment_id", apt.ID.String()).
		Str("from", prev.String()).
		Str("to", candidate.Provider.ID.String()).
		Int("delay_minutes", rec.DelayMinutes).
		Msg("appointment reassigned")

	return &Outcome{
		AppointmentID:      apt.ID,
		Reassigned:         true,
		ProviderID:         candidate.Provider.ID,
		PreviousProviderID: prev,
		DelayMinutes:       rec.DelayMinutes,
		Reason:             "reassigned to reduce wait",
	}, nil
}

// selectCandidate applies the match and filter stages and picks the best
// survivor. Ties break on least backlog, then most recent presence, then
// provider ID so the choice is deterministic. preferOnline ranks online
// providers ahead of offline ones; presence is advisory, so even then an
// offline provider is still picked when nobody online qualifies.
func (p *Planner) selectCandidate(apt *model.Appointment, roster *Roster, delayMinutes int, preferOnline bool) *RosterEntry {
	start := apt.ScheduledStart.Add(time.Duration(delayMinutes) * time.Minute)
	dur := apt.Duration()

	var eligible []*RosterEntry
	for _, entry := range roster.Entries {
		if entry.Provider.ID == apt.AssignedProviderID {
			continue
		}
		if !SkillsMatch(apt.RequiredSkills, entry.Provider.Skills) {
			continue
		}
		if !entry.AvailableAt(start, dur, apt.ID) {
			continue
		}
		eligible = append(eligible, entry)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if preferOnline {
			oi, oj := eligible[i].Provider.IsOnline, eligible[j].Provider.IsOnline
			if oi != oj {
				return oi
			}
		}
		bi, bj := eligible[i].BacklogMinutes(), eligible[j].BacklogMinutes()
		if bi != bj {
			return bi < bj
		}
		si, sj := lastSeen(eligible[i]), lastSeen(eligible[j])
		if !si.Equal(sj) {
			return si.After(sj)
		}
		return eligible[i].Provider.ID.String() < eligible[j].Provider.ID.String()
	})
	return eligible[0]
}

// acceptDelay records the slippage on the appointment itself when no
// reassignment is possible. The client stays with their provider, late.
func (p *Planner) acceptDelay(ctx context.Context, apt *model.Appointment, rec model.DelayRecord, reason string) (*Outcome, error) {
	if rec.DelayMinutes != apt.DelayMinutes {
		if err := p.store.UpdateDelay(ctx, apt.ID, rec.DelayMinutes, apt.Version); err != nil {
			if apperrors.IsConflict(err) {
				// Delay bookkeeping lost a race; the next detector pass will
				// observe and record it again.
				p.logger.ZL.Debug().
					Str("appointment_id", apt.ID.String()).
					Msg("delay update skipped on version conflict")
			} else {
				return nil, fmt.Errorf("accept delay: %w", err)
			}
		}
	}

	p.audit.Emit(ctx, apt.BusinessID, model.AuditEventAssistantCycle, model.SystemActorID, model.JSONMap{
		"appointment_id": apt.ID,
		"provider_id":    apt.AssignedProviderID,
		"delay_minutes":  rec.DelayMinutes,
		"note":           reason,
	})

	return &Outcome{
		AppointmentID: apt.ID,
		ProviderID:    apt.AssignedProviderID,
		DelayMinutes:  rec.DelayMinutes,
		Reason:        reason,
	}, nil
}

// Suggest is the read-only variant: it proposes reassignments for every
// appointment delayed beyond the threshold without touching storage.
// Suggestions rank online providers first, since an operator acting on
// them wants someone reachable right now.
func (p *Planner) Suggest(ctx context.Context, businessID uuid.UUID, thresholdMinutes int) ([]Suggestion, error) {
	roster, err := p.snapshot.Load(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("planner suggest: %w", err)
	}

	var out []Suggestion
	for _, entry := range roster.Entries {
		for _, apt := range entry.Queue {
			if apt.Status.Terminal() || apt.DelayMinutes < thresholdMinutes {
				continue
			}
			candidate := p.selectCandidate(apt, roster, apt.DelayMinutes, true)
			if candidate == nil {
				continue
			}
			out = append(out, Suggestion{
				AppointmentID: apt.ID,
				FromProvider:  apt.AssignedProviderID,
				ToProvider:    candidate.Provider.ID,
				DelayMinutes:  apt.DelayMinutes,
				Reason:        fmt.Sprintf("delayed %d minutes, lighter queue available", apt.DelayMinutes),
			})
		}
	}
	return out, nil
}

func lastSeen(e *RosterEntry) time.Time {
	if e.Provider.LastSeen == nil {
		return time.Time{}
	}
	return *e.Provider.LastSeen
}
