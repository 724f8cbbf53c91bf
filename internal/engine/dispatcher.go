package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/apptracker/balancer-api/pkg/logger"
)

// Dispatcher serializes engine cycles per business. Every business gets
// its own worker goroutine consuming a buffered trigger channel, so two
// cycles for the same business can never interleave while distinct
// businesses proceed in parallel.
type Dispatcher struct {
	engine *Engine
	logger *logger.Logger

	mu      sync.Mutex
	workers map[uuid.UUID]chan struct{}
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
}

func NewDispatcher(engine *Engine, log *logger.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		engine:  engine,
		logger:  log,
		workers: make(map[uuid.UUID]chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Trigger requests a cycle for the business. The channel holds a single
// pending trigger; requests arriving while one is already queued coalesce
// into it, since the queued cycle will observe their state anyway.
func (d *Dispatcher) Trigger(businessID uuid.UUID) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	ch, ok := d.workers[businessID]
	if !ok {
		ch = make(chan struct{}, 1)
		d.workers[businessID] = ch
		d.wg.Add(1)
		go d.run(businessID, ch)
	}
	d.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run(businessID uuid.UUID, ch chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ch:
			if _, err := d.engine.RunCycle(d.ctx, businessID); err != nil {
				if d.ctx.Err() != nil {
					return
				}
				d.logger.ZL.Error().Err(err).
					Str("business_id", businessID.String()).
					Msg("engine cycle failed")
			}
		}
	}
}

// Stop cancels in-flight cycles and waits for every worker to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
