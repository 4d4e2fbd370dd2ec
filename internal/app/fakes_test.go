package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/internal/domain/session"
)

var sessionStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func records(n int, power float64) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = model.Sample{
			Power:     power,
			Cadence:   90,
			Speed:     30,
			Timestamp: sessionStart.Add(time.Duration(i) * time.Second),
		}
	}
	return out
}

type fakeFetcher struct {
	mu         sync.Mutex
	samples    map[string]model.Sample
	history    map[string][]model.Sample
	weather    *model.Weather
	sampleErr  error
	historyErr error
	weatherErr error

	block   chan struct{}
	entered chan struct{}
	pushed  chan model.Sample

	sampleCalls atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		samples: map[string]model.Sample{
			"taurusx": {Power: 250, Cadence: 90, Speed: 32, Latitude: 40.5, Longitude: -116.9, Timestamp: sessionStart.Add(time.Minute)},
			"phoenix": {Power: 400, Cadence: 100, Speed: 40, Latitude: 41, Longitude: -117, Timestamp: sessionStart.Add(time.Minute)},
		},
		history: map[string][]model.Sample{
			"taurusx": records(20, 250),
			"phoenix": records(8, 400),
		},
	}
}

func (f *fakeFetcher) FetchSample(_ context.Context, deviceID string) (model.Sample, error) {
	f.sampleCalls.Add(1)
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sampleErr != nil {
		return model.Sample{}, f.sampleErr
	}
	s, ok := f.samples[deviceID]
	if !ok {
		return model.Sample{}, fmt.Errorf("%w: unknown device %s", model.ErrNetwork, deviceID)
	}
	return s, nil
}

func (f *fakeFetcher) FetchHistory(_ context.Context, deviceID string, count int) ([]model.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	h := f.history[deviceID]
	if len(h) > count {
		h = h[len(h)-count:]
	}
	return append([]model.Sample(nil), h...), nil
}

func (f *fakeFetcher) FetchWeather(context.Context, int) (*model.Weather, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.weatherErr != nil {
		return nil, f.weatherErr
	}
	if f.weather == nil {
		return nil, nil
	}
	w := *f.weather
	return &w, nil
}

func (f *fakeFetcher) Pushed(context.Context) <-chan model.Sample {
	if f.pushed == nil {
		return nil
	}
	return f.pushed
}

func (f *fakeFetcher) set(fn func(f *fakeFetcher)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeResolver struct {
	mu    sync.Mutex
	cfg   model.Config
	err   error
	at    time.Time
	calls int

	// afterResolve runs once, after the next Resolve has captured its result.
	afterResolve func(r *fakeResolver)
}

func newFakeResolver(start time.Time) *fakeResolver {
	return &fakeResolver{cfg: model.Config{
		DeviceID:         "taurusx",
		TrackID:          "bm",
		SessionDate:      start.Format("2006-01-02"),
		SessionStartTime: start.Format("15:04:05"),
	}}
}

func (r *fakeResolver) Resolve(context.Context) (model.Config, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	cfg, err := r.cfg, r.err
	if fn := r.afterResolve; fn != nil {
		r.afterResolve = nil
		fn(r)
	}
	return cfg, err
}

// StartInstant parses cfg unless a fixed instant was set.
func (r *fakeResolver) StartInstant(cfg model.Config) (time.Time, error) {
	r.mu.Lock()
	at := r.at
	r.mu.Unlock()
	if !at.IsZero() {
		return at, nil
	}
	return session.StartInstant(cfg, time.UTC)
}

func (r *fakeResolver) set(fn func(r *fakeResolver)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}
