// Package history builds the bounded chart window published to the dashboard.
//
// A Window is rebuilt from an authoritative history fetch on every cycle
// rather than appended to, so the client never drifts from the server's view.
package history

import "github.com/okian/bikewatch/internal/domain/model"

// Window holds the full time-ordered chart points and the interior slice used
// by the mini charts.
//
// Invariant: len(Trimmed) == max(0, len(Full)-2*margin) and
// Trimmed == Full[margin : len(Full)-margin].
type Window struct {
	Full    []model.HistoryPoint `json:"chart"`
	Trimmed []model.HistoryPoint `json:"miniChart"`
	Margin  int                  `json:"margin"`
}

// New projects raw records into a Window, preserving their order. A margin
// larger than half the history yields an empty Trimmed view; a negative
// margin is treated as zero.
func New(raw []model.Sample, margin int) Window {
	if margin < 0 {
		margin = 0
	}

	full := make([]model.HistoryPoint, len(raw))
	for i, s := range raw {
		full[i] = s.Point()
	}

	w := Window{Full: full, Margin: margin}
	if len(full) > 2*margin {
		w.Trimmed = full[margin : len(full)-margin : len(full)-margin]
	} else {
		w.Trimmed = []model.HistoryPoint{}
	}
	return w
}

// Len returns the number of points in the full window.
func (w Window) Len() int {
	return len(w.Full)
}

// Latest returns the newest point, if any.
func (w Window) Latest() (model.HistoryPoint, bool) {
	if len(w.Full) == 0 {
		return model.HistoryPoint{}, false
	}
	return w.Full[len(w.Full)-1], true
}

// Clone returns a deep copy whose slices share nothing with w.
func (w Window) Clone() Window {
	full := append([]model.HistoryPoint(nil), w.Full...)
	out := Window{Full: full, Margin: w.Margin, Trimmed: []model.HistoryPoint{}}
	if len(full) > 2*w.Margin {
		out.Trimmed = full[w.Margin : len(full)-w.Margin : len(full)-w.Margin]
	}
	return out
}
