package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HealthStatus grades a business's remaining capacity for the day.
type HealthStatus string

const (
	HealthStable   HealthStatus = "stable"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// AtRiskAppointment flags an appointment likely to slip past closing or
// already carrying a heavy delay.
type AtRiskAppointment struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	DelayMinutes  int       `json:"delay_minutes"`
	Reason        string    `json:"reason"`
}

// CapacityReport compares committed workload against the minutes the
// roster can still serve today.
type CapacityReport struct {
	BusinessID      uuid.UUID           `json:"business_id"`
	Status          HealthStatus        `json:"status"`
	ProvidersOnline int                 `json:"providers_online"`
	ProvidersTotal  int                 `json:"providers_total"`
	LoadMinutes     int                 `json:"load_minutes"`
	CapacityMinutes int                 `json:"capacity_minutes"`
	UtilizationPct  int                 `json:"utilization_pct"`
	AtRisk          []AtRiskAppointment `json:"at_risk,omitempty"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

// heavyDelayMinutes is the per-appointment delay beyond which an
// appointment is flagged at risk regardless of overall utilization.
const heavyDelayMinutes = 30

// AnalyzeCapacity sizes today's remaining load against remaining provider
// capacity. Utilization under 80% is stable, under 100% a warning, and at
// or past 100% critical: the day cannot finish on time without
// intervention.
func (s *SnapshotSource) AnalyzeCapacity(ctx context.Context, businessID uuid.UUID, clock Clock) (*CapacityReport, error) {
	roster, err := s.Load(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("analyze capacity: %w", err)
	}

	now := clock.Now()
	report := &CapacityReport{
		BusinessID:     businessID,
		ProvidersTotal: len(roster.Entries),
		GeneratedAt:    now,
	}

	for _, entry := range roster.Entries {
		if entry.Provider.IsOnline {
			report.ProvidersOnline++
		}

		report.CapacityMinutes += entry.remainingMinutes(now)

		closing := entry.closingAt(now)
		for _, apt := range entry.Queue {
			if apt.Status.Terminal() {
				continue
			}
			report.LoadMinutes += apt.DurationMinutes + apt.DelayMinutes

			switch {
			case apt.DelayMinutes >= heavyDelayMinutes:
				report.AtRisk = append(report.AtRisk, AtRiskAppointment{
					AppointmentID: apt.ID,
					ProviderID:    entry.Provider.ID,
					DelayMinutes:  apt.DelayMinutes,
					Reason:        "delay exceeds tolerable wait",
				})
			case !closing.IsZero() && apt.EffectiveEnd().After(closing):
				report.AtRisk = append(report.AtRisk, AtRiskAppointment{
					AppointmentID: apt.ID,
					ProviderID:    entry.Provider.ID,
					DelayMinutes:  apt.DelayMinutes,
					Reason:        "projected to finish after closing",
				})
			}
		}
	}

	switch {
	case report.CapacityMinutes == 0 && report.LoadMinutes > 0:
		report.UtilizationPct = 100
		report.Status = HealthCritical
	case report.CapacityMinutes == 0:
		report.Status = HealthStable
	default:
		report.UtilizationPct = report.LoadMinutes * 100 / report.CapacityMinutes
		switch {
		case report.UtilizationPct >= 100:
			report.Status = HealthCritical
		case report.UtilizationPct >= 80:
			report.Status = HealthWarning
		default:
			report.Status = HealthStable
		}
	}

	return report, nil
}

// remainingMinutes is the serviceable time left in the provider's shift
// today, zero when off shift or already past closing.
func (e *RosterEntry) remainingMinutes(now time.Time) int {
	hours, ok := e.Hours[now.Weekday()]
	if !ok || !hours.IsActive {
		return 0
	}
	closing, err := atClock(now, hours.Close)
	if err != nil {
		return 0
	}
	opening, err := atClock(now, hours.Open)
	if err != nil {
		return 0
	}
	from := now
	if opening.After(from) {
		from = opening
	}
	if !closing.After(from) {
		return 0
	}
	return int(closing.Sub(from).Minutes())
}

// closingAt is today's closing time, zero when the provider is off shift.
func (e *RosterEntry) closingAt(now time.Time) time.Time {
	hours, ok := e.Hours[now.Weekday()]
	if !ok || !hours.IsActive {
		return time.Time{}
	}
	closing, err := atClock(now, hours.Close)
	if err != nil {
		return time.Time{}
	}
	return closing
}
