// Package poller drives periodic, non-overlapping refresh cycles.
//
// A cycle runs, then the poller waits one interval after it completes before
// the next one starts. Cycles never overlap: a manual trigger arriving while a
// cycle is in flight is skipped. The poller is also the single consumer of
// samples pushed by the transport, applying them between cycles.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/pkg/logger"
	"github.com/okian/bikewatch/pkg/metrics"
)

const defaultInterval = time.Second

// TickFunc performs one refresh cycle.
type TickFunc func(ctx context.Context) error

// PushFunc applies one pushed sample.
type PushFunc func(ctx context.Context, s model.Sample)

// Poller runs TickFunc on a fixed delay. It is single use: once stopped it
// cannot be started again.
type Poller struct {
	interval time.Duration
	name     string
	logger   logger.Logger

	pushed <-chan model.Sample
	onPush PushFunc

	mu      sync.Mutex
	started bool

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}
	trigger  chan struct{}
	inFlight atomic.Bool
}

// New creates a poller firing every interval. A non-positive interval falls
// back to one second.
func New(interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	p := &Poller{
		interval: interval,
		name:     "poller",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named(p.name)
	}
	return p
}

// Interval returns the delay between cycles.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start runs the first cycle immediately and keeps cycling in the background
// until Stop is called or ctx is done. The context passed to onTick is not
// cancelled with ctx, so an in-flight cycle is always allowed to finish.
func (p *Poller) Start(ctx context.Context, onTick TickFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.stopped() {
		return ErrStopped
	}
	p.started = true

	go p.run(ctx, onTick)
	return nil
}

// Stop prevents further cycles. An in-flight cycle finishes; Stop does not
// wait for it. Calling Stop more than once is a no-op.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
	})
}

// Wait blocks until the loop has exited. It returns immediately if the
// poller was never started.
func (p *Poller) Wait() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}
	<-p.done
}

// Trigger requests an immediate cycle. It returns false when the request is
// skipped because a cycle is in flight, one is already pending, or the
// poller is stopped.
func (p *Poller) Trigger() bool {
	if p.stopped() || p.inFlight.Load() {
		metrics.RecordCycleSkipped()
		return false
	}
	select {
	case p.trigger <- struct{}{}:
		return true
	default:
		metrics.RecordCycleSkipped()
		return false
	}
}

// Stopped reports whether Stop has been called.
func (p *Poller) Stopped() bool {
	return p.stopped()
}

// Busy reports whether a cycle is in flight.
func (p *Poller) Busy() bool {
	return p.inFlight.Load()
}

func (p *Poller) run(ctx context.Context, onTick TickFunc) {
	defer close(p.done)

	tickCtx := context.WithoutCancel(ctx)
	p.tick(tickCtx, onTick)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	pushed := p.pushed
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-timer.C:
			p.tick(tickCtx, onTick)
			timer.Reset(p.interval)
		case <-p.trigger:
			p.tick(tickCtx, onTick)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.interval)
		case s, ok := <-pushed:
			if !ok {
				pushed = nil
				continue
			}
			if p.stopped() {
				return
			}
			p.onPush(tickCtx, s)
		}
	}
}

func (p *Poller) tick(ctx context.Context, onTick TickFunc) {
	if p.stopped() {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		metrics.RecordCycleSkipped()
		return
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	err := onTick(ctx)
	latency := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordCycle("error", latency)
		p.logger.Warn(ctx, "cycle failed", logger.Error(err))
		return
	}
	metrics.RecordCycle("ok", latency)
}

func (p *Poller) stopped() bool {
	select {
	case <-p.shutdown:
		return true
	default:
		return false
	}
}
