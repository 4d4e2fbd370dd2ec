// Package app composes the fetcher, resolver, history window, countdown gate
// and poller into the dashboard lifecycle: mount, initialize, poll, unmount.
//
// All published state is owned by the Controller and mutated under one lock.
// Every result is checked against the liveness flag and the generation it
// was started for before it is applied, so a late result after Unmount or a
// device switch is discarded rather than observed.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/okian/bikewatch/internal/adapters/poller"
	"github.com/okian/bikewatch/internal/domain/gate"
	"github.com/okian/bikewatch/internal/domain/history"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/pkg/logger"
	"github.com/okian/bikewatch/pkg/metrics"
)

// Default controller configuration.
const (
	defaultPollInterval  = time.Second
	defaultHistoryCount  = 30
	defaultChartMargin   = 5
	defaultStation       = 3
	defaultConfigRefresh = time.Minute
	subscriberBuffer     = 1
)

// Fetcher retrieves device data.
type Fetcher interface {
	FetchSample(ctx context.Context, deviceID string) (model.Sample, error)
	FetchHistory(ctx context.Context, deviceID string, count int) ([]model.Sample, error)
	FetchWeather(ctx context.Context, stationID int) (*model.Weather, error)
	Pushed(ctx context.Context) <-chan model.Sample
}

// Resolver resolves the active configuration and its session start.
type Resolver interface {
	Resolve(ctx context.Context) (model.Config, error)
	StartInstant(cfg model.Config) (time.Time, error)
}

// Controller owns the dashboard state.
type Controller struct {
	fetcher  Fetcher
	resolver Resolver

	interval       time.Duration
	historyCount   int
	margin         int
	station        int
	configRefresh  time.Duration
	deviceOverride string
	trackOverride  string
	now            func() time.Time
	logger         logger.Logger

	pushOnce sync.Once
	pushed   <-chan model.Sample

	mu         sync.Mutex
	alive      bool
	generation uint64
	needsInit  bool
	poller     *poller.Poller
	runCtx     context.Context
	cancel     context.CancelFunc

	status   Status
	cfg      model.Config
	start    time.Time
	gate     *gate.Gate
	sample   *model.Sample
	window   history.Window
	weather  *model.Weather
	stale    bool
	lastErr  string
	configAt time.Time
	updated  time.Time

	subs    map[int]chan Snapshot
	nextSub int
}

// New constructs a Controller with default configuration.
func New(fetcher Fetcher, resolver Resolver, opts ...Option) *Controller {
	c := &Controller{
		fetcher:       fetcher,
		resolver:      resolver,
		interval:      defaultPollInterval,
		historyCount:  defaultHistoryCount,
		margin:        defaultChartMargin,
		station:       defaultStation,
		configRefresh: defaultConfigRefresh,
		now:           time.Now,
		status:        StatusLoading,
		window:        history.New(nil, defaultChartMargin),
		subs:          make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("dashboard")
	}
	c.window = history.New(nil, c.margin)
	return c
}

// Mount starts the lifecycle. The first poll cycle performs initialization:
// resolve the config, build the history window, fetch the first sample,
// seed the gate. Polling continues until Unmount.
func (c *Controller) Mount(ctx context.Context) error {
	c.pushOnce.Do(func() {
		// pushed samples outlive a single mount; the stream ends when the
		// transport is closed
		c.pushed = c.fetcher.Pushed(context.WithoutCancel(ctx))
	})

	c.mu.Lock()
	if c.alive {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.alive = true
	c.generation++
	c.needsInit = true
	c.resetLocked()

	runCtx, cancel := context.WithCancel(ctx)
	c.runCtx = runCtx
	c.cancel = cancel
	p := c.newPollerLocked()
	c.publishLocked()
	gen := c.generation
	c.mu.Unlock()

	metrics.UpdateGeneration(gen)
	c.logger.Info(ctx, "dashboard mounted",
		logger.Duration("interval", c.interval),
		logger.Int("historyCount", c.historyCount),
		logger.Int("margin", c.margin),
	)
	return p.Start(runCtx, c.tick)
}

// Unmount stops polling and disarms the gate. A cycle in flight is allowed
// to finish but its result is discarded.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = false
	c.generation++
	p, cancel := c.poller, c.cancel
	if c.gate != nil {
		c.gate.Disarm()
	}
	c.mu.Unlock()

	p.Stop()
	cancel()
	c.logger.Info(context.Background(), "dashboard unmounted")
}

// Wait blocks until the current poller has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	p := c.poller
	c.mu.Unlock()
	if p != nil {
		p.Wait()
	}
}

// SwitchDevice re-runs the full initialization for another device and track.
// Results still in flight for the previous device are discarded and no data
// of the previous device survives the switch.
func (c *Controller) SwitchDevice(ctx context.Context, deviceID, trackID string) error {
	if deviceID == "" {
		return ErrInvalidDevice
	}

	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return ErrNotMounted
	}
	c.deviceOverride = deviceID
	c.trackOverride = trackID
	c.generation++
	c.needsInit = true
	c.resetLocked()

	// a fatal initialization stopped the previous poller
	restart := c.poller.Stopped()
	if restart {
		c.newPollerLocked()
	}
	c.publishLocked()
	gen, p, runCtx := c.generation, c.poller, c.runCtx
	c.mu.Unlock()

	metrics.UpdateGeneration(gen)
	c.logger.Info(ctx, "switching device",
		logger.String("deviceId", deviceID),
		logger.String("trackId", trackID),
		logger.Bool("restarted", restart),
	)
	if restart {
		return p.Start(runCtx, c.tick)
	}
	p.Trigger()
	return nil
}

// newPollerLocked replaces the poller with a fresh, unstarted one.
func (c *Controller) newPollerLocked() *poller.Poller {
	c.poller = poller.New(c.interval,
		poller.WithName("dashboard-poller"),
		poller.WithPushed(c.pushed, c.applyPushed),
	)
	return c.poller
}

// Refresh requests an immediate cycle. It returns false when the request is
// skipped because a cycle is already in flight.
func (c *Controller) Refresh() bool {
	c.mu.Lock()
	p, alive := c.poller, c.alive
	c.mu.Unlock()
	if !alive {
		return false
	}
	return p.Trigger()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(c.now())
}

// Subscribe returns a channel receiving a snapshot after every change. Slow
// subscribers only see the latest snapshot. cancel releases the channel.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, subscriberBuffer)
	ch <- c.snapshotLocked(c.now())
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// currentLocked reports whether results started for gen may be applied.
func (c *Controller) currentLocked(gen uint64) bool {
	return c.alive && c.generation == gen
}

// resetLocked drops all device state.
func (c *Controller) resetLocked() {
	if c.gate != nil {
		c.gate.Disarm()
	}
	c.status = StatusLoading
	c.cfg = model.Config{}
	c.start = time.Time{}
	c.gate = nil
	c.sample = nil
	c.window = history.New(nil, c.margin)
	c.weather = nil
	c.stale = false
	c.lastErr = ""
	c.configAt = time.Time{}
	c.updated = c.now()
}

// publishLocked fans the current snapshot out to subscribers, replacing any
// snapshot a slow subscriber has not consumed yet.
func (c *Controller) publishLocked() {
	snap := c.snapshotLocked(c.now())
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}

	live := snap.Live()
	metrics.UpdateGateLive(live)
	metrics.UpdateHistory(len(snap.History.Full), len(snap.History.Trimmed))
	if snap.Sample != nil {
		metrics.UpdateLastSample(float64(snap.Sample.Timestamp.UnixMilli()) / 1000)
	}
}
