// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"time"
)

// ReservedPower is the power value the device reports when the reading is
// withheld from the public view.
const ReservedPower = -1

// Sample is one timestamped telemetry reading from the bike and wind rig.
// Samples are values: a newer sample supersedes, never mutates, an older one.
type Sample struct {
	Power     float64   `json:"power"`
	Cadence   float64   `json:"cadence"`
	Speed     float64   `json:"speed"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Reserved reports whether the power reading is the reserved sentinel.
func (s Sample) Reserved() bool {
	return s.Power == ReservedPower
}

// Position returns the sample coordinates as [lat, lon].
func (s Sample) Position() [2]float64 {
	return [2]float64{s.Latitude, s.Longitude}
}

// Point projects the sample onto its chart-ready form.
func (s Sample) Point() HistoryPoint {
	return HistoryPoint{
		Time:    s.Timestamp,
		Power:   s.Power,
		Cadence: s.Cadence,
		Speed:   s.Speed,
	}
}

// HistoryPoint is the chart-ready projection of a Sample.
type HistoryPoint struct {
	Time    time.Time
	Power   float64
	Cadence float64
	Speed   float64
}

// Values returns the numeric fields in chart order: unix millis, power, cadence, speed.
func (p HistoryPoint) Values() [4]float64 {
	return [4]float64{float64(p.Time.UnixMilli()), p.Power, p.Cadence, p.Speed}
}

// MarshalJSON encodes the point as a fixed-order numeric array.
func (p HistoryPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Values())
}

// UnmarshalJSON decodes the fixed-order numeric array produced by MarshalJSON.
func (p *HistoryPoint) UnmarshalJSON(b []byte) error {
	var v [4]float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = HistoryPoint{
		Time:    time.UnixMilli(int64(v[0])).UTC(),
		Power:   v[1],
		Cadence: v[2],
		Speed:   v[3],
	}
	return nil
}
