package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/apptracker/balancer-api/internal/model"
	"github.com/apptracker/balancer-api/internal/repository"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
)

// RosterEntry bundles one provider with everything the evaluator needs to
// judge availability: shift hours, breaks, and the provider's remaining
// pending/active queue.
type RosterEntry struct {
	Provider *model.Provider
	Hours    map[time.Weekday]*model.WorkingHours
	Breaks   map[time.Weekday][]*model.Break
	Queue    []*model.Appointment
}

// BacklogMinutes is the provider's remaining committed work, delays included.
// Used as the primary reassignment tie-break: least-loaded provider wins.
func (e *RosterEntry) BacklogMinutes() int {
	total := 0
	for _, apt := range e.Queue {
		total += apt.DurationMinutes + apt.DelayMinutes
	}
	return total
}

// removeFromQueue drops an appointment after it has been reassigned away,
// keeping the in-memory snapshot consistent within a cycle.
func (e *RosterEntry) removeFromQueue(id uuid.UUID) {
	for i, apt := range e.Queue {
		if apt.ID == id {
			e.Queue = append(e.Queue[:i], e.Queue[i+1:]...)
			return
		}
	}
}

// Roster is a point-in-time snapshot of one business's providers.
type Roster struct {
	BusinessID uuid.UUID
	Entries    []*RosterEntry
	FetchedAt  time.Time
}

// Entry looks up a provider's roster entry, nil if absent.
func (r *Roster) Entry(providerID uuid.UUID) *RosterEntry {
	for _, e := range r.Entries {
		if e.Provider.ID == providerID {
			return e
		}
	}
	return nil
}

// SnapshotConfig tunes roster caching. Freshness is the hard bound past
// which a snapshot may no longer drive decisions.
type SnapshotConfig struct {
	TTL       time.Duration
	Freshness time.Duration
}

// SnapshotSource builds and caches roster snapshots per business. Batch
// fetching keeps a planning cycle at a fixed number of queries regardless of
// roster size.
type SnapshotSource struct {
	providers    repository.ProviderRepository
	appointments repository.AppointmentRepository
	cache        *cache.Cache
	freshness    time.Duration
	clock        Clock
}

func NewSnapshotSource(
	providers repository.ProviderRepository,
	appointments repository.AppointmentRepository,
	cfg SnapshotConfig,
	clock Clock,
) *SnapshotSource {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Second
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = 2 * time.Minute
	}
	return &SnapshotSource{
		providers:    providers,
		appointments: appointments,
		cache:        cache.New(cfg.TTL, 2*cfg.TTL),
		freshness:    cfg.Freshness,
		clock:        clock,
	}
}

// Load returns a roster snapshot, served from cache while fresh. A cached
// snapshot past the freshness bound is refetched even if its cache entry
// has not expired, so a TTL misconfigured above Freshness cannot let stale
// data drive decisions. If the store is unreachable, it returns
// ErrStaleSnapshot so the caller defers instead of acting on stale data.
func (s *SnapshotSource) Load(ctx context.Context, businessID uuid.UUID) (*Roster, error) {
	key := businessID.String()
	if cached, ok := s.cache.Get(key); ok {
		if roster := cached.(*Roster); !s.IsStale(roster) {
			return roster, nil
		}
	}

	roster, err := s.fetch(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStaleSnapshot, err)
	}

	s.cache.SetDefault(key, roster)
	return roster, nil
}

// Refresh bypasses the cache. The planner uses it for its single
// post-conflict retry.
func (s *SnapshotSource) Refresh(ctx context.Context, businessID uuid.UUID) (*Roster, error) {
	roster, err := s.fetch(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrStaleSnapshot, err)
	}
	s.cache.SetDefault(businessID.String(), roster)
	return roster, nil
}

// IsStale reports whether a snapshot is too old to drive decisions.
func (s *SnapshotSource) IsStale(roster *Roster) bool {
	return s.clock.Now().Sub(roster.FetchedAt) > s.freshness
}

func (s *SnapshotSource) fetch(ctx context.Context, businessID uuid.UUID) (*Roster, error) {
	providers, err := s.providers.ListByBusiness(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
	}

	hours, err := s.providers.ListWorkingHours(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list working hours: %w", err)
	}
	breaks, err := s.providers.ListBreaks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list breaks: %w", err)
	}
	queue, err := s.appointments.ListPendingOrActive(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}

	entries := make([]*RosterEntry, 0, len(providers))
	for _, p := range providers {
		entry := &RosterEntry{
			Provider: p,
			Hours:    make(map[time.Weekday]*model.WorkingHours),
			Breaks:   make(map[time.Weekday][]*model.Break),
		}
		for _, h := range hours {
			if h.ProviderID == p.ID {
				entry.Hours[h.Weekday] = h
			}
		}
		for _, b := range breaks {
			if b.ProviderID == p.ID {
				entry.Breaks[b.Weekday] = append(entry.Breaks[b.Weekday], b)
			}
		}
		for _, apt := range queue {
			if apt.AssignedProviderID == p.ID {
				entry.Queue = append(entry.Queue, apt)
			}
		}
		entries = append(entries, entry)
	}

	return &Roster{
		BusinessID: businessID,
		Entries:    entries,
		FetchedAt:  s.clock.Now(),
	}, nil
}
