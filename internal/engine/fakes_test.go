package engine

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/apptracker/balancer-api/internal/model"
	apperrors "github.com/apptracker/balancer-api/pkg/errors"
	"github.com/apptracker/balancer-api/pkg/logger"
	"github.com/apptracker/balancer-api/pkg/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAppointments is an in-memory AppointmentRepository with the same
// optimistic concurrency behavior as the SQL implementation.
type memAppointments struct {
	mu   sync.Mutex
	apts map[uuid.UUID]*model.Appointment

	// conflictAssignments forces the next N UpdateAssignment calls to fail
	// with a version conflict, simulating a concurrent writer.
	conflictAssignments int
}

func newMemAppointments() *memAppointments {
	return &memAppointments{apts: make(map[uuid.UUID]*model.Appointment)}
}

func (m *memAppointments) put(apt *model.Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *apt
	m.apts[apt.ID] = &cp
}

func (m *memAppointments) Create(_ context.Context, apt *model.Appointment) error {
	m.put(apt)
	return nil
}

func (m *memAppointments) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apt, ok := m.apts[id]
	if !ok {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	cp := *apt
	return &cp, nil
}

func (m *memAppointments) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Appointment, 0, len(m.apts))
	for _, apt := range m.apts {
		cp := *apt
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memAppointments) ListByProviderDay(_ context.Context, providerID uuid.UUID, day time.Time) ([]*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Appointment
	for _, apt := range m.apts {
		if apt.AssignedProviderID != providerID {
			continue
		}
		y1, m1, d1 := apt.ScheduledStart.Date()
		y2, m2, d2 := day.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			cp := *apt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out, nil
}

func (m *memAppointments) ListPendingOrActive(_ context.Context, businessID uuid.UUID) ([]*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Appointment
	for _, apt := range m.apts {
		if apt.BusinessID == businessID && !apt.Status.Terminal() {
			cp := *apt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.Before(out[j].ScheduledStart) })
	return out, nil
}

func (m *memAppointments) ListActiveBusinessIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, apt := range m.apts {
		if apt.Status.Terminal() {
			continue
		}
		if _, ok := seen[apt.BusinessID]; !ok {
			seen[apt.BusinessID] = struct{}{}
			out = append(out, apt.BusinessID)
		}
	}
	return out, nil
}

func (m *memAppointments) UpdateAssignment(_ context.Context, id, providerID uuid.UUID, shiftedFrom *uuid.UUID, delayMinutes, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictAssignments > 0 {
		m.conflictAssignments--
		return apperrors.ErrVersionConflict
	}
	apt, ok := m.apts[id]
	if !ok {
		return apperrors.NewNotFound("appointment", nil)
	}
	if apt.Version != expectedVersion {
		return apperrors.ErrVersionConflict
	}
	apt.AssignedProviderID = providerID
	apt.ShiftedFromID = shiftedFrom
	apt.DelayMinutes = delayMinutes
	apt.Version++
	return nil
}

func (m *memAppointments) UpdateDelay(_ context.Context, id uuid.UUID, delayMinutes, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	apt, ok := m.apts[id]
	if !ok {
		return apperrors.NewNotFound("appointment", nil)
	}
	if apt.Version != expectedVersion {
		return apperrors.ErrVersionConflict
	}
	apt.DelayMinutes = delayMinutes
	apt.Version++
	return nil
}

func (m *memAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	apt, ok := m.apts[id]
	if !ok {
		return apperrors.NewNotFound("appointment", nil)
	}
	apt.Status = status
	if status.Terminal() {
		apt.DelayMinutes = 0
	}
	apt.Version++
	return nil
}

// memProviders is an in-memory ProviderRepository.
type memProviders struct {
	mu        sync.Mutex
	providers map[uuid.UUID]*model.Provider
	hours     []*model.WorkingHours
	breaks    []*model.Break
	failList  error
}

func newMemProviders() *memProviders {
	return &memProviders{providers: make(map[uuid.UUID]*model.Provider)}
}

func (m *memProviders) Create(_ context.Context, p *model.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *memProviders) Get(_ context.Context, id uuid.UUID) (*model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, apperrors.NewNotFound("provider", nil)
	}
	cp := *p
	return &cp, nil
}

func (m *memProviders) ListByBusiness(_ context.Context, businessID uuid.UUID) ([]*model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	var out []*model.Provider
	for _, p := range m.providers {
		if p.BusinessID == businessID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (m *memProviders) ListWorkingHours(_ context.Context, providerIDs []uuid.UUID) ([]*model.WorkingHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[uuid.UUID]struct{}, len(providerIDs))
	for _, id := range providerIDs {
		ids[id] = struct{}{}
	}
	var out []*model.WorkingHours
	for _, h := range m.hours {
		if _, ok := ids[h.ProviderID]; ok {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memProviders) ListBreaks(_ context.Context, providerIDs []uuid.UUID) ([]*model.Break, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[uuid.UUID]struct{}, len(providerIDs))
	for _, id := range providerIDs {
		ids[id] = struct{}{}
	}
	var out []*model.Break
	for _, b := range m.breaks {
		if _, ok := ids[b.ProviderID]; ok {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memProviders) UpdatePresence(_ context.Context, id uuid.UUID, isOnline bool, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return apperrors.NewNotFound("provider", nil)
	}
	p.IsOnline = isOnline
	p.LastSeen = &lastSeen
	return nil
}

// recordedEvent captures one Auditor emission for assertions.
type recordedEvent struct {
	BusinessID uuid.UUID
	Event      string
	Actor      uuid.UUID
	Payload    model.JSONMap
}

type memAuditor struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *memAuditor) Emit(_ context.Context, businessID uuid.UUID, event string, actor uuid.UUID, payload model.JSONMap) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{BusinessID: businessID, Event: event, Actor: actor, Payload: payload})
}

func (a *memAuditor) byEvent(event string) []recordedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []recordedEvent
	for _, e := range a.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// harness wires the whole engine against in-memory stores.
type harness struct {
	store     *memAppointments
	providers *memProviders
	audit     *memAuditor
	clock     *fakeClock
	log       *logger.Logger
	snapshot  *SnapshotSource
	detector  *Detector
	planner   *Planner
	prop      *Propagator
	engine    *Engine
	metrics   *metrics.Metrics
}

func newHarness(base time.Time) *harness {
	store := newMemAppointments()
	providers := newMemProviders()
	audit := &memAuditor{}
	clock := &fakeClock{now: base}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	m := metrics.NewWith(prometheus.NewRegistry(), "test")

	// A short TTL forces tests through the fetch path without sleeping.
	snapshot := NewSnapshotSource(providers, store, SnapshotConfig{TTL: time.Millisecond, Freshness: time.Minute}, clock)
	detector := NewDetector(store, audit, 5*time.Minute, clock, log)
	planner := NewPlanner(store, snapshot, audit, m, log)
	prop := NewPropagator(store, planner, audit, log)
	eng := New(store, detector, planner, prop, m, clock, Config{}, log)

	return &harness{
		store:     store,
		providers: providers,
		audit:     audit,
		clock:     clock,
		log:       log,
		snapshot:  snapshot,
		detector:  detector,
		planner:   planner,
		prop:      prop,
		engine:    eng,
		metrics:   m,
	}
}

func (h *harness) addProvider(businessID uuid.UUID, skills []string, acceptsTransfers bool) *model.Provider {
	seen := h.clock.Now()
	p := &model.Provider{
		Base:             model.Base{ID: uuid.New()},
		BusinessID:       businessID,
		Name:             "Provider " + uuid.NewString()[:8],
		Email:            "provider@example.com",
		Skills:           skills,
		AcceptsTransfers: acceptsTransfers,
		IsOnline:         true,
		LastSeen:         &seen,
	}
	_ = h.providers.Create(context.Background(), p)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		h.providers.hours = append(h.providers.hours, &model.WorkingHours{
			ProviderID: p.ID,
			Weekday:    wd,
			Open:       "08:00",
			Close:      "18:00",
			IsActive:   true,
		})
	}
	return p
}

func (h *harness) addAppointment(businessID, providerID uuid.UUID, start time.Time, durationMinutes int, skills []string) *model.Appointment {
	apt := &model.Appointment{
		Base:               model.Base{ID: uuid.New()},
		BusinessID:         businessID,
		AssignedProviderID: providerID,
		ClientID:           uuid.New(),
		TreatmentName:      "consult",
		RequiredSkills:     skills,
		ScheduledStart:     start,
		DurationMinutes:    durationMinutes,
		Status:             model.AppointmentStatusPending,
		Version:            1,
	}
	h.store.put(apt)
	return apt
}
