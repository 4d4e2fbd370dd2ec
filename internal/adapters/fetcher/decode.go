package fetcher

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
	"github.com/okian/bikewatch/internal/domain/model"
	"github.com/relvacode/iso8601"
)

// unixMillisThreshold separates Unix seconds from Unix milliseconds. Any value
// above it is read as milliseconds (year 33658 in seconds).
const unixMillisThreshold = 1e12

// configAliases maps the legacy dashboard keys onto Config fields.
var configAliases = map[string]string{
	"bikeName":  "deviceId",
	"trackName": "trackId",
	"date":      "sessionDate",
	"startTime": "sessionStartTime",
}

// flexFloat accepts a JSON number or a string holding one. Non-finite values
// such as "NaN" or "Inf" are rejected; they cannot be published as JSON.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var v float64
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("numeric string %q: %w", s, err)
		}
		v = parsed
	} else if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: non-finite number %s", ErrSchema, b)
	}
	*f = flexFloat(v)
	return nil
}

type wireSample struct {
	Power     *flexFloat      `json:"power"`
	Cadence   *flexFloat      `json:"cadence"`
	Speed     *flexFloat      `json:"speed"`
	Latitude  *flexFloat      `json:"latitude"`
	Longitude *flexFloat      `json:"longitude"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (w wireSample) toSample(received time.Time) (model.Sample, error) {
	fields := []struct {
		name string
		v    *flexFloat
	}{
		{"power", w.Power},
		{"cadence", w.Cadence},
		{"speed", w.Speed},
		{"latitude", w.Latitude},
		{"longitude", w.Longitude},
	}
	for _, f := range fields {
		if f.v == nil {
			return model.Sample{}, fmt.Errorf("%w: missing %s", ErrSchema, f.name)
		}
	}

	ts, err := decodeTimestamp(w.Timestamp, received)
	if err != nil {
		return model.Sample{}, err
	}

	return model.Sample{
		Power:     float64(*w.Power),
		Cadence:   float64(*w.Cadence),
		Speed:     float64(*w.Speed),
		Latitude:  float64(*w.Latitude),
		Longitude: float64(*w.Longitude),
		Timestamp: ts,
	}, nil
}

func decodeTimestamp(raw json.RawMessage, received time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return received, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp: %w", ErrSchema, err)
		}
		t, err := iso8601.ParseString(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %w", ErrSchema, s, err)
		}
		return t, nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp: %w", ErrSchema, err)
	}
	if n > unixMillisThreshold {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	return time.Unix(int64(n), 0).UTC(), nil
}

func decodeSample(payload []byte, received time.Time) (model.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(payload, &w); err != nil {
		return model.Sample{}, fmt.Errorf("%w: sample: %w", ErrSchema, err)
	}
	return w.toSample(received)
}

func decodeHistory(payload []byte, received time.Time) ([]model.Sample, error) {
	var records []wireSample
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrSchema, err)
	}
	out := make([]model.Sample, 0, len(records))
	for i, r := range records {
		s, err := r.toSample(received)
		if err != nil {
			return nil, fmt.Errorf("history record %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeConfig(payload []byte) (model.Config, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.Config{}, fmt.Errorf("%w: config: %w", ErrSchema, err)
	}

	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strcase.ToLowerCamel(k)
		if alias, ok := configAliases[key]; ok {
			key = alias
		}
		switch val := v.(type) {
		case string:
			fields[key] = strings.TrimSpace(val)
		case float64:
			fields[key] = strconv.FormatFloat(val, 'f', -1, 64)
		}
	}

	cfg := model.Config{
		DeviceID:         fields["deviceId"],
		TrackID:          fields["trackId"],
		SessionDate:      fields["sessionDate"],
		SessionStartTime: fields["sessionStartTime"],
	}
	switch {
	case cfg.DeviceID == "":
		return model.Config{}, fmt.Errorf("%w: config: missing deviceId", ErrSchema)
	case cfg.SessionDate == "":
		return model.Config{}, fmt.Errorf("%w: config: missing sessionDate", ErrSchema)
	case cfg.SessionStartTime == "":
		return model.Config{}, fmt.Errorf("%w: config: missing sessionStartTime", ErrSchema)
	}
	return cfg, nil
}

type wireWeather struct {
	Temperature *flexFloat `json:"temperature"`
}

// decodeWeather returns nil for an empty or null payload.
func decodeWeather(payload []byte) (*model.Weather, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || bytes.Equal(payload, []byte("null")) {
		return nil, nil
	}
	var w wireWeather
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("%w: weather: %w", ErrSchema, err)
	}
	if w.Temperature == nil {
		return nil, fmt.Errorf("%w: weather: missing temperature", ErrSchema)
	}
	return &model.Weather{Temperature: float64(*w.Temperature)}, nil
}
