package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bikewatch/internal/adapters/fetcher"
	"github.com/okian/bikewatch/internal/domain/gate"
	"github.com/okian/bikewatch/internal/domain/history"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/pkg/logger"
	"github.com/okian/bikewatch/pkg/metrics"
)

// cycleResult joins the concurrent fetches of one cycle.
type cycleResult struct {
	sample     model.Sample
	sampleErr  error
	history    []model.Sample
	historyErr error
	weather    *model.Weather
	weatherErr error
}

// err returns the first failure among the fetches that matter for staleness.
// Weather failures are local and never reported.
func (r cycleResult) err() error {
	return errors.Join(r.sampleErr, r.historyErr)
}

// tick runs one poll cycle.
func (c *Controller) tick(ctx context.Context) error {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	needsInit := c.needsInit
	cfg := c.cfg
	cfgDue := c.configRefresh > 0 && c.now().Sub(c.configAt) >= c.configRefresh
	c.mu.Unlock()

	if needsInit {
		return c.initialize(ctx, gen)
	}
	return c.refresh(ctx, gen, cfg, cfgDue)
}

// initialize resolves the config and initializes the dashboard for it.
func (c *Controller) initialize(ctx context.Context, gen uint64) error {
	cfg, err := c.resolveConfig(ctx)
	if err != nil {
		return c.initFailed(ctx, gen, err, errors.Is(err, model.ErrSchema))
	}
	return c.initializeWith(ctx, gen, cfg)
}

// initializeWith fetches history, the first sample and weather concurrently
// for an already resolved cfg, and seeds the gate. Only an unusable
// configuration is fatal; fetch failures of any kind are retried.
func (c *Controller) initializeWith(ctx context.Context, gen uint64, cfg model.Config) error {
	start, err := c.resolver.StartInstant(cfg)
	if err != nil {
		return c.initFailed(ctx, gen, err, errors.Is(err, model.ErrSchema))
	}

	r := c.collect(ctx, cfg.DeviceID)
	if err := r.err(); err != nil {
		return c.initFailed(ctx, gen, err, false)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		metrics.RecordDiscardedResult()
		return nil
	}

	now := c.now()
	c.installGateLocked(start, now, gen)
	c.cfg = cfg
	c.configAt = now
	c.window = history.New(r.history, c.margin)
	sample := r.sample
	c.sample = &sample
	c.weather = r.weather
	c.status = StatusReady
	c.needsInit = false
	c.stale = false
	c.lastErr = ""
	c.updated = now
	c.publishLocked()

	metrics.RecordInitialization("ok")
	c.logger.Info(ctx, "dashboard initialized",
		logger.String("deviceId", cfg.DeviceID),
		logger.String("trackId", cfg.TrackID),
		logger.String("startsAt", start.Format(time.RFC3339)),
		logger.String("gate", c.gate.State().String()),
		logger.Int("history", c.window.Len()),
	)
	return nil
}

// initFailed records an initialization failure. A fatal failure stops
// polling; anything else leaves the dashboard loading for the next tick.
func (c *Controller) initFailed(ctx context.Context, gen uint64, err error, fatal bool) error {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		metrics.RecordDiscardedResult()
		return nil
	}
	c.lastErr = err.Error()
	c.updated = c.now()

	if fatal {
		c.status = StatusFailed
		p := c.poller
		c.publishLocked()
		c.mu.Unlock()

		metrics.RecordInitialization("schema")
		c.logger.Error(ctx, "initialization failed, polling stopped", logger.Error(err))
		p.Stop()
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}

	c.publishLocked()
	c.mu.Unlock()
	metrics.RecordInitialization(fetcher.Kind(err))
	c.logger.Warn(ctx, "initialization failed, retrying next cycle", logger.Error(err))
	return err
}

// refresh runs a steady-state cycle for cfg.
func (c *Controller) refresh(ctx context.Context, gen uint64, cfg model.Config, cfgDue bool) error {
	var cfgErr error
	if cfgDue {
		next, err := c.resolveConfig(ctx)
		switch {
		case err != nil:
			cfgErr = err
		case !next.SameDevice(cfg):
			return c.reinitialize(ctx, gen, next)
		default:
			if err := c.replaceConfig(gen, next); err != nil {
				cfgErr = err
			}
		}
	}

	r := c.collect(ctx, cfg.DeviceID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		metrics.RecordDiscardedResult()
		return nil
	}

	now := c.now()
	if c.gate != nil {
		c.gate.Observe(now)
	}
	if r.sampleErr == nil {
		sample := r.sample
		c.sample = &sample
	}
	if r.historyErr == nil {
		c.window = history.New(r.history, c.margin)
	}
	if r.weather != nil {
		c.weather = r.weather
	}

	err := errors.Join(r.err(), cfgErr)
	if err != nil {
		c.stale = true
		c.lastErr = err.Error()
		metrics.RecordStaleCycle()
	} else {
		c.stale = false
		c.lastErr = ""
	}
	c.updated = now
	c.publishLocked()
	return err
}

// reinitialize drops the current device state and initializes for cfg.
func (c *Controller) reinitialize(ctx context.Context, gen uint64, cfg model.Config) error {
	c.mu.Lock()
	if !c.currentLocked(gen) {
		c.mu.Unlock()
		metrics.RecordDiscardedResult()
		return nil
	}
	c.generation++
	c.needsInit = true
	c.resetLocked()
	c.publishLocked()
	gen = c.generation
	c.mu.Unlock()

	metrics.UpdateGeneration(gen)
	c.logger.Info(ctx, "active device changed, reinitializing",
		logger.String("deviceId", cfg.DeviceID),
		logger.String("trackId", cfg.TrackID),
	)
	return c.initializeWith(ctx, gen, cfg)
}

// replaceConfig swaps in a refreshed config for the same device. A moved
// start instant reseeds the gate.
func (c *Controller) replaceConfig(gen uint64, cfg model.Config) error {
	start, err := c.resolver.StartInstant(cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		return nil
	}
	now := c.now()
	if !start.Equal(c.start) {
		c.installGateLocked(start, now, gen)
	}
	c.cfg = cfg
	c.configAt = now
	return nil
}

// installGateLocked replaces the gate with one seeded for start at now.
func (c *Controller) installGateLocked(start, now time.Time, gen uint64) {
	if c.gate != nil {
		c.gate.Disarm()
	}
	g := gate.New(start, now)
	g.Arm(now)
	c.gate = g
	c.start = start
	go c.watchGate(c.runCtx, g, gen)
}

// watchGate publishes a snapshot when g opens, so the countdown is replaced
// by the live view without waiting for the next cycle.
func (c *Controller) watchGate(ctx context.Context, g *gate.Gate, gen uint64) {
	select {
	case <-ctx.Done():
		return
	case <-g.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) || c.gate != g {
		return
	}
	c.updated = c.now()
	c.publishLocked()
	c.logger.Info(ctx, "session is live")
}

// applyPushed applies a sample pushed between cycles. Samples older than the
// current one are ignored.
func (c *Controller) applyPushed(_ context.Context, s model.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive || c.needsInit || c.status != StatusReady {
		metrics.RecordPushedSample("ignored")
		return
	}
	if c.sample != nil && s.Timestamp.Before(c.sample.Timestamp) {
		metrics.RecordPushedSample("outdated")
		return
	}
	c.sample = &s
	c.updated = c.now()
	c.publishLocked()
	metrics.RecordPushedSample("applied")
}

func (c *Controller) resolveConfig(ctx context.Context) (model.Config, error) {
	cfg, err := c.resolver.Resolve(ctx)
	if err != nil {
		return model.Config{}, err
	}

	c.mu.Lock()
	device, track := c.deviceOverride, c.trackOverride
	c.mu.Unlock()
	return cfg.WithDevice(device, track), nil
}

// collect fetches sample, history and weather concurrently and joins them.
func (c *Controller) collect(ctx context.Context, deviceID string) cycleResult {
	var r cycleResult
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		r.sample, r.sampleErr = c.fetcher.FetchSample(ctx, deviceID)
	}()
	go func() {
		defer wg.Done()
		r.history, r.historyErr = c.fetcher.FetchHistory(ctx, deviceID, c.historyCount)
	}()
	if c.station > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.weather, r.weatherErr = c.fetcher.FetchWeather(ctx, c.station)
		}()
	}
	wg.Wait()

	if r.weatherErr != nil {
		c.logger.Debug(ctx, "weather unavailable", logger.Error(r.weatherErr))
	}
	return r
}
