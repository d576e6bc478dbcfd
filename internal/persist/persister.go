// Package persist applies engine change events to durable storage.
//
// Writes are optimistic: the engine's in-memory state is already updated by
// the time an event reaches this package, and a failed write is logged but
// never rolled back. A circuit breaker keeps a misbehaving backend from
// stalling the interactive session.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/scanloom/scanloom/internal/storage"
	"github.com/scanloom/scanloom/pkg/types"
)

// ErrCircuitOpen is returned when the circuit breaker is open and writes
// are being rejected to protect the backend.
var ErrCircuitOpen = errors.New("persistence circuit breaker is open")

// Config holds tuning for the persister.
type Config struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning
	// to half-open. Default: 30 seconds.
	Timeout time.Duration

	// WritesPerSecond throttles writes to the backend. Default: 50.
	WritesPerSecond float64

	// Burst is the rate limiter burst size. Default: 20.
	Burst int

	// QueueSize is the capacity of the pending event queue. Default: 256.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.WritesPerSecond == 0 {
		c.WritesPerSecond = 50
	}
	if c.Burst == 0 {
		c.Burst = 20
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
}

// Persister drains change events into a storage.SceneStore.
type Persister struct {
	store   storage.SceneStore
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	queue   chan types.ChangeEvent
	done    chan struct{}
}

// New creates a persister writing to store. Call Run to start draining.
func New(store storage.SceneStore, cfg Config) *Persister {
	cfg.applyDefaults()

	settings := gobreaker.Settings{
		Name:    "SceneStorePersister",
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("WARNING: persistence circuit breaker %s -> %s", from, to)
		},
	}

	return &Persister{
		store:   store,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), cfg.Burst),
		queue:   make(chan types.ChangeEvent, cfg.QueueSize),
		done:    make(chan struct{}),
	}
}

// Enqueue queues an event for persistence. It never blocks the caller: when
// the queue is full the event is dropped with a log entry, consistent with
// the no-rollback write model.
func (p *Persister) Enqueue(ev types.ChangeEvent) {
	select {
	case p.queue <- ev:
	default:
		log.Printf("ERROR: persistence queue full, dropping %s %s %s", ev.Op, ev.Kind, ev.ID)
	}
}

// Run drains the queue until ctx is cancelled, then flushes what remains.
func (p *Persister) Run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case ev := <-p.queue:
			p.apply(ctx, ev)
		case <-ctx.Done():
			p.flush()
			return
		}
	}
}

// Done is closed once Run has exited.
func (p *Persister) Done() <-chan struct{} {
	return p.done
}

// flush applies remaining queued events with a short grace deadline so
// shutdown does not lose buffered work.
func (p *Persister) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.queue:
			p.apply(ctx, ev)
		default:
			return
		}
	}
}

func (p *Persister) apply(ctx context.Context, ev types.ChangeEvent) {
	if err := p.Write(ctx, ev); err != nil {
		log.Printf("WARNING: failed to persist %s %s %s: %v", ev.Op, ev.Kind, ev.ID, err)
	}
}

// Write applies a single change event synchronously through the rate limiter
// and circuit breaker, returning the outcome to the caller. Request-scoped
// writers (the HTTP handlers) use this so a broken backend surfaces as
// ErrCircuitOpen instead of piling up blocked writes.
func (p *Persister) Write(ctx context.Context, ev types.ChangeEvent) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("persistence throttle interrupted: %w", err)
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.Apply(ctx, ev)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// Apply writes a single change event to the store synchronously. Exposed so
// callers that need confirmation (imports, tests) can bypass the queue.
func (p *Persister) Apply(ctx context.Context, ev types.ChangeEvent) error {
	switch ev.Kind {
	case types.KindMeasurement:
		return p.applyMeasurement(ctx, ev)
	case types.KindAnnotation, types.KindReply:
		return p.applyAnnotation(ctx, ev)
	case types.KindSavedView:
		return p.applySavedView(ctx, ev)
	default:
		return fmt.Errorf("unknown entity kind %q", ev.Kind)
	}
}

func (p *Persister) applyMeasurement(ctx context.Context, ev types.ChangeEvent) error {
	if ev.Op == types.OpDelete {
		return ignoreNotFound(p.store.DeleteMeasurement(ctx, ev.ID))
	}
	m, ok := ev.Entity.(*types.Measurement)
	if !ok {
		return fmt.Errorf("measurement event %s carries %T", ev.ID, ev.Entity)
	}
	if ev.Op == types.OpInsert {
		return p.store.CreateMeasurement(ctx, m)
	}
	return p.store.UpdateMeasurement(ctx, m)
}

func (p *Persister) applyAnnotation(ctx context.Context, ev types.ChangeEvent) error {
	if ev.Op == types.OpDelete {
		return ignoreNotFound(p.store.DeleteAnnotation(ctx, ev.ID))
	}
	a, ok := ev.Entity.(*types.Annotation)
	if !ok {
		return fmt.Errorf("annotation event %s carries %T", ev.ID, ev.Entity)
	}
	if ev.Op == types.OpInsert {
		return p.store.CreateAnnotation(ctx, a)
	}
	return p.store.UpdateAnnotation(ctx, a)
}

func (p *Persister) applySavedView(ctx context.Context, ev types.ChangeEvent) error {
	if ev.Op == types.OpDelete {
		return ignoreNotFound(p.store.DeleteSavedView(ctx, ev.ID))
	}
	v, ok := ev.Entity.(*types.SavedView)
	if !ok {
		return fmt.Errorf("saved view event %s carries %T", ev.ID, ev.Entity)
	}
	if ev.Op == types.OpInsert {
		return p.store.CreateSavedView(ctx, v)
	}
	return p.store.UpdateSavedView(ctx, v)
}

// Deleting something already gone is not a failure worth tripping the
// breaker over.
func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
