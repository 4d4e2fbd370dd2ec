// Package fetcher retrieves samples, history, weather and configuration from
// the remote service through an injected transport. It holds no state beyond
// its dependencies and never retries.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/okian/bikewatch/pkg/logger"
	"github.com/okian/bikewatch/pkg/metrics"
)

// Operation labels used for metrics and logs.
const (
	OpConfig  = "config"
	OpSample  = "sample"
	OpHistory = "history"
	OpWeather = "weather"
)

// Fetcher decodes remote payloads into domain values.
type Fetcher struct {
	transport transport.Transport
	now       func() time.Time
	log       logger.Logger

	pushOnce sync.Once
	pushed   chan model.Sample
}

// New creates a Fetcher over t.
func New(t transport.Transport, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport: t,
		now:       time.Now,
		log:       logger.Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchConfig returns the active configuration.
func (f *Fetcher) FetchConfig(ctx context.Context) (model.Config, error) {
	payload, err := f.call(ctx, OpConfig, func(ctx context.Context) ([]byte, error) {
		return f.transport.GetConfig(ctx)
	})
	if err != nil {
		return model.Config{}, err
	}
	cfg, err := decodeConfig(payload)
	if err != nil {
		metrics.RecordFetchError(OpConfig, "schema")
		return model.Config{}, err
	}
	return cfg, nil
}

// FetchSample returns the current sample of deviceID.
func (f *Fetcher) FetchSample(ctx context.Context, deviceID string) (model.Sample, error) {
	payload, err := f.call(ctx, OpSample, func(ctx context.Context) ([]byte, error) {
		return f.transport.GetData(ctx, deviceID)
	})
	if err != nil {
		return model.Sample{}, err
	}
	s, err := decodeSample(payload, f.now())
	if err != nil {
		metrics.RecordFetchError(OpSample, "schema")
		return model.Sample{}, err
	}
	return s, nil
}

// FetchHistory returns at most count records for deviceID in time order.
// When the service returns more, the most recent count are kept.
func (f *Fetcher) FetchHistory(ctx context.Context, deviceID string, count int) ([]model.Sample, error) {
	if count < 0 {
		count = 0
	}
	payload, err := f.call(ctx, OpHistory, func(ctx context.Context) ([]byte, error) {
		return f.transport.GetHistory(ctx, deviceID, count)
	})
	if err != nil {
		return nil, err
	}
	records, err := decodeHistory(payload, f.now())
	if err != nil {
		metrics.RecordFetchError(OpHistory, "schema")
		return nil, err
	}
	if len(records) > count {
		records = records[len(records)-count:]
	}
	return records, nil
}

// FetchWeather returns the station reading, or nil when the service has no
// data for this caller. Only transport failures are errors.
func (f *Fetcher) FetchWeather(ctx context.Context, stationID int) (*model.Weather, error) {
	start := time.Now()
	payload, found, err := f.transport.GetWeatherSingleStation(ctx, stationID)
	metrics.RecordFetchLatency(OpWeather, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordFetchError(OpWeather, "network")
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, OpWeather, err)
	}
	if !found {
		metrics.RecordWeatherAbsent()
		return nil, nil
	}
	w, err := decodeWeather(payload)
	if err != nil {
		metrics.RecordFetchError(OpWeather, "schema")
		return nil, err
	}
	if w == nil {
		metrics.RecordWeatherAbsent()
	}
	return w, nil
}

// Pushed returns decoded samples the transport receives without a request.
// It returns nil when the transport does not push. The channel closes when
// ctx is done or the transport stops delivering.
func (f *Fetcher) Pushed(ctx context.Context) <-chan model.Sample {
	p, ok := f.transport.(transport.Pusher)
	if !ok {
		return nil
	}
	f.pushOnce.Do(func() {
		f.pushed = make(chan model.Sample)
		go f.decodePushed(ctx, p.Pushed(ctx))
	})
	return f.pushed
}

func (f *Fetcher) decodePushed(ctx context.Context, in <-chan transport.Message) {
	defer close(f.pushed)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			received := msg.Received
			if received.IsZero() {
				received = f.now()
			}
			s, err := decodeSample(msg.Payload, received)
			if err != nil {
				metrics.RecordPushedSample("dropped")
				f.log.Warn(ctx, "dropping undecodable pushed sample", logger.Error(err))
				continue
			}
			select {
			case f.pushed <- s:
				metrics.RecordPushedSample("accepted")
			case <-ctx.Done():
				return
			}
		}
	}
}

func (f *Fetcher) call(ctx context.Context, op string, do func(context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	payload, err := do(ctx)
	metrics.RecordFetchLatency(op, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordFetchError(op, "network")
		f.log.Debug(ctx, "fetch failed", logger.String("op", op), logger.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, op, err)
	}
	return payload, nil
}

// Kind classifies err for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "other"
	}
}
