package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/tellmenow/internal/metrics"
)

// CoordinatorConfig holds the watcher and recovery timings.
type CoordinatorConfig struct {
	PollInterval time.Duration
	MaxPolls     int
	StaleAfter   time.Duration
}

// Coordinator decides, per observe request, whether to serve a terminal
// snapshot, own the entity and run its pipeline, or watch another owner.
// It keeps no state about entities; every decision is derived from a fresh
// read of the row, and the store's claim is the only synchronization.
type Coordinator struct {
	cfg     CoordinatorConfig
	metrics *metrics.Collector
	now     func() time.Time

	inflight sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg CoordinatorConfig, mc *metrics.Collector) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 150
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	return &Coordinator{cfg: cfg, metrics: mc, now: time.Now}
}

// Wait blocks until every pipeline started by this coordinator has finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

// subject describes one claimable entity to the generic claim-or-watch loop.
// T is the row type, S its status type.
type subject[T any, S comparable] struct {
	kind string
	id   string

	// initial is the claimable status, owned the status a claim moves it to.
	initial S
	owned   S

	// transient statuses are held by a running owner and may go stale.
	fetch     func(ctx context.Context) (*T, error)
	status    func(row *T) S
	terminal  func(status S) bool
	transient func(status S) bool
	claim     func(ctx context.Context, expected, next S) (bool, error)
	snapshot  func(row *T, emit Emit)
	run       func(ctx context.Context, row *T, emit Emit)

	// since returns the timestamp staleness is measured from.
	since func(row *T) time.Time

	// ack is sent by the owner right after a successful claim.
	ack func(emit Emit)
}

// observe runs the claim-or-watch state machine for one observer. It returns
// an error only when the initial read fails, before anything is emitted.
func observe[T any, S comparable](ctx context.Context, c *Coordinator, sub subject[T, S], emit Emit) error {
	log := slog.With(sub.kind+"_id", sub.id)

	row, err := sub.fetch(ctx)
	if err != nil {
		return err
	}
	status := sub.status(row)

	if sub.terminal(status) {
		sub.snapshot(row, emit)
		return nil
	}

	if sub.transient(status) && c.now().Sub(sub.since(row)) > c.cfg.StaleAfter {
		reset, err := sub.claim(ctx, status, sub.initial)
		if err != nil {
			log.Warn("stale reset failed", "status", status, "error", err)
		} else if reset {
			c.metrics.Inc(metrics.CounterStaleReset)
			log.Info("reset stale "+sub.kind, "status", status, "age", c.now().Sub(sub.since(row)).Round(time.Second))
		}
		status = sub.initial
	}

	if status == sub.initial {
		won, err := sub.claim(ctx, sub.initial, sub.owned)
		if err != nil {
			log.Warn("claim failed", "error", err)
		}
		if won {
			c.metrics.Inc(metrics.CounterClaimWon)
			return own(ctx, c, sub, emit)
		}
		c.metrics.Inc(metrics.CounterClaimLost)
		log.Debug("claim lost, watching")

		if row, err = sub.fetch(ctx); err != nil {
			log.Debug("watcher read failed", "error", err)
			return nil
		}
		if sub.terminal(sub.status(row)) {
			sub.snapshot(row, emit)
			return nil
		}
	}

	sub.snapshot(row, emit)
	watch(ctx, c, sub, sub.status(row), emit)
	return nil
}

// own runs the pipeline detached from the observer's context. The observer
// receives events until it disconnects; the pipeline always runs to the end.
func own[T any, S comparable](ctx context.Context, c *Coordinator, sub subject[T, S], emit Emit) error {
	r := newRelay(emit, func() { c.metrics.Inc(metrics.CounterEventDropped) })
	sub.ack(r.send)

	fresh, err := sub.fetch(ctx)
	if err != nil {
		slog.Warn("re-read after claim failed, releasing claim", sub.kind+"_id", sub.id, "error", err)
		if _, rerr := sub.claim(context.WithoutCancel(ctx), sub.owned, sub.initial); rerr != nil {
			slog.Error("failed to release claim", sub.kind+"_id", sub.id, "error", rerr)
		}
		r.drain(ctx)
		return nil
	}

	done := make(chan struct{})
	pipelineCtx := context.WithoutCancel(ctx)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				slog.Error("pipeline panicked", sub.kind+"_id", sub.id, "panic", p)
			}
		}()
		sub.run(pipelineCtx, fresh, r.send)
	}()

	select {
	case <-done:
		r.drain(ctx)
	case <-ctx.Done():
		r.detach()
		<-r.done
		slog.Info("observer disconnected, pipeline continues", sub.kind+"_id", sub.id)
	}
	return nil
}

// watch polls the row until it reaches a terminal status, the poll budget runs
// out, the observer disconnects, or a read fails.
func watch[T any, S comparable](ctx context.Context, c *Coordinator, sub subject[T, S], last S, emit Emit) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for range c.cfg.MaxPolls {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		row, err := sub.fetch(ctx)
		if err != nil {
			slog.Debug("watcher stopped", sub.kind+"_id", sub.id, "error", err)
			return
		}
		status := sub.status(row)
		if status == last {
			continue
		}
		last = status
		sub.snapshot(row, emit)
		if sub.terminal(status) {
			return
		}
	}

	c.metrics.Inc(metrics.CounterWatchTimeout)
	slog.Info("watcher timed out", sub.kind+"_id", sub.id, "polls", c.cfg.MaxPolls)
	emit(timeoutEvent())
}

// relayBuffer bounds the events queued for one observer.
const relayBuffer = 64

// relay forwards pipeline events to an observer on its own goroutine, so a
// slow transport never blocks the pipeline. Events are dropped once the
// observer detaches or its queue is full.
type relay struct {
	events  chan Event
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped func()
}

func newRelay(emit Emit, dropped func()) *relay {
	r := &relay{
		events:  make(chan Event, relayBuffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		dropped: dropped,
	}
	go r.forward(emit)
	return r
}

func (r *relay) forward(emit Emit) {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case e, ok := <-r.events:
			if !ok {
				return
			}
			select {
			case <-r.stop:
				return
			default:
			}
			emit(e)
		}
	}
}

// send queues e without blocking.
func (r *relay) send(e Event) {
	select {
	case <-r.stop:
		return
	default:
	}
	select {
	case r.events <- e:
	default:
		r.dropped()
	}
}

// drain delivers what is still queued and waits for the forwarder, giving up
// when ctx is done. Only call it after the last send.
func (r *relay) drain(ctx context.Context) {
	close(r.events)
	select {
	case <-r.done:
		return
	case <-ctx.Done():
	}
	r.detach()
	<-r.done
}

// detach stops delivery. Queued events are discarded.
func (r *relay) detach() {
	r.once.Do(func() { close(r.stop) })
}
