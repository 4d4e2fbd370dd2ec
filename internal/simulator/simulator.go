// Package simulator fakes the remote bike service. It generates noisy
// telemetry for a set of devices and answers the same requests the real
// service does, over HTTP or MQTT.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/okian/bikewatch/internal/adapters/transport"
	"github.com/okian/bikewatch/internal/domain/model"
)

const (
	defaultHistoryCapacity = 600
	defaultBasePower       = 150
	defaultCadence         = 90
	defaultDevice          = "taurusx"
	defaultTrack           = "bm"
	coordinateStep         = 0.00005
)

// Default start position, the Battle Mountain course.
const (
	defaultLatitude  = 40.5436
	defaultLongitude = -116.9662
)

// Simulator holds the fake service state. It is safe for concurrent use.
type Simulator struct {
	mu       sync.RWMutex
	cfg      model.Config
	devices  map[string]*device
	weather  map[int]float64
	public   bool
	failing  bool
	rng      *rand.Rand
	capacity int
	now      func() time.Time

	subsMu sync.RWMutex
	subs   []func(deviceID string, s model.Sample)
}

type device struct {
	basePower float64
	reserved  bool
	lat, lon  float64
	history   []model.Sample
}

// New creates a simulator with one default device. The session starts at the
// current minute unless WithConfig overrides it.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		devices:  make(map[string]*device),
		weather:  make(map[int]float64),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // telemetry noise
		capacity: defaultHistoryCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.DeviceID == "" {
		now := s.now()
		s.cfg = model.Config{
			DeviceID:         defaultDevice,
			TrackID:          defaultTrack,
			SessionDate:      now.Format("2006-01-02"),
			SessionStartTime: now.Format("15:04"),
		}
	}
	s.ensureDevice(s.cfg.DeviceID)
	return s
}

// SetConfig replaces the served configuration and registers its device.
func (s *Simulator) SetConfig(cfg model.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.ensureDeviceLocked(cfg.DeviceID)
}

// Config returns the served configuration.
func (s *Simulator) Config() model.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// AddDevice registers a device producing telemetry around basePower.
func (s *Simulator) AddDevice(id string, basePower float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.ensureDeviceLocked(id)
	if basePower > 0 {
		d.basePower = basePower
	}
}

// SetReserved makes a device report the reserved power sentinel.
func (s *Simulator) SetReserved(id string, reserved bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDeviceLocked(id).reserved = reserved
}

// SetWeather sets the reading of a station.
func (s *Simulator) SetWeather(stationID int, temperature float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather[stationID] = temperature
}

// SetWeatherPublic controls whether weather is served to callers. The real
// service withholds it from anonymous users.
func (s *Simulator) SetWeatherPublic(public bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public = public
}

// SetFailing makes every request fail until cleared.
func (s *Simulator) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}

// OnSample registers fn to be called with every generated sample.
func (s *Simulator) OnSample(fn func(deviceID string, sample model.Sample)) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs = append(s.subs, fn)
}

// Step generates one sample per device stamped at now.
func (s *Simulator) Step(now time.Time) {
	type generated struct {
		id string
		s  model.Sample
	}

	s.mu.Lock()
	out := make([]generated, 0, len(s.devices))
	for id, d := range s.devices {
		noise := float64(s.rng.Intn(6) - 3)
		power := d.basePower + noise
		if power < 0 {
			power = 0
		}
		cadence := defaultCadence + noise/2
		d.lat += coordinateStep
		d.lon += coordinateStep * (s.rng.Float64() - 0.5)

		sample := model.Sample{
			Power:     power,
			Cadence:   cadence,
			Speed:     power / 8,
			Latitude:  d.lat,
			Longitude: d.lon,
			Timestamp: now.UTC().Truncate(time.Millisecond),
		}
		if d.reserved {
			sample.Power = model.ReservedPower
		}
		d.history = append(d.history, sample)
		if len(d.history) > s.capacity {
			d.history = d.history[len(d.history)-s.capacity:]
		}
		out = append(out, generated{id, sample})
	}
	s.mu.Unlock()

	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	for _, g := range out {
		for _, fn := range s.subs {
			fn(g.id, g.s)
		}
	}
}

// Run steps the simulator every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Step(s.now())
		}
	}
}

// Answer serves one request. It returns the JSON payload and a transport
// status: StatusOK, StatusAbsent, or StatusError with the payload holding
// the error text.
func (s *Simulator) Answer(req transport.Request) ([]byte, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failing {
		return []byte(ErrOutage.Error()), transport.StatusError
	}

	switch req.Op {
	case transport.OpConfig:
		return s.encode(legacyConfig(s.cfg))
	case transport.OpData:
		d, ok := s.devices[req.DeviceID]
		if !ok {
			return []byte(fmt.Sprintf("%s: %s", ErrUnknownDevice, req.DeviceID)), transport.StatusError
		}
		if len(d.history) == 0 {
			return []byte(ErrNoData.Error()), transport.StatusError
		}
		return s.encode(toWire(d.history[len(d.history)-1]))
	case transport.OpHistory:
		d, ok := s.devices[req.DeviceID]
		if !ok {
			return []byte(fmt.Sprintf("%s: %s", ErrUnknownDevice, req.DeviceID)), transport.StatusError
		}
		h := d.history
		if req.Count >= 0 && len(h) > req.Count {
			h = h[len(h)-req.Count:]
		}
		records := make([]wireSample, len(h))
		for i, sample := range h {
			records[i] = toWire(sample)
		}
		return s.encode(records)
	case transport.OpWeather:
		t, ok := s.weather[req.StationID]
		if !s.public || !ok {
			return nil, transport.StatusAbsent
		}
		return s.encode(map[string]float64{"temperature": t})
	default:
		return []byte(fmt.Sprintf("%s: %q", ErrUnknownOp, req.Op)), transport.StatusError
	}
}

func (s *Simulator) encode(v any) ([]byte, string) {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(err.Error()), transport.StatusError
	}
	return b, transport.StatusOK
}

func (s *Simulator) ensureDevice(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDeviceLocked(id)
}

func (s *Simulator) ensureDeviceLocked(id string) *device {
	d, ok := s.devices[id]
	if !ok {
		d = &device{basePower: defaultBasePower, lat: defaultLatitude, lon: defaultLongitude}
		s.devices[id] = d
	}
	return d
}

// legacyConfig renders the configuration with the keys the bike service
// has always used.
func legacyConfig(cfg model.Config) map[string]string {
	return map[string]string{
		"bikeName":  cfg.DeviceID,
		"trackName": cfg.TrackID,
		"date":      cfg.SessionDate,
		"startTime": cfg.SessionStartTime,
	}
}

// wireSample mirrors the service's record shape: coordinates travel as
// strings and timestamps as RFC 3339.
type wireSample struct {
	Power     float64 `json:"power"`
	Cadence   float64 `json:"cadence"`
	Speed     float64 `json:"speed"`
	Latitude  string  `json:"latitude"`
	Longitude string  `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

func toWire(s model.Sample) wireSample {
	return wireSample{
		Power:     s.Power,
		Cadence:   s.Cadence,
		Speed:     s.Speed,
		Latitude:  strconv.FormatFloat(s.Latitude, 'f', -1, 64),
		Longitude: strconv.FormatFloat(s.Longitude, 'f', -1, 64),
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// EncodeSample renders a sample the way the service pushes it.
func EncodeSample(s model.Sample) ([]byte, error) {
	return json.Marshal(toWire(s))
}
