package simulator

import (
	"net/http"
	"strconv"

	"github.com/okian/bikewatch/internal/adapters/transport"
)

// Handler serves the simulator over HTTP:
//
//	GET /config
//	GET /data/{device}
//	GET /history/{device}?count=N
//	GET /weather/{station}
//
// Withheld weather answers 401 as the real service does for anonymous callers.
func (s *Simulator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, transport.Request{Op: transport.OpConfig})
	})
	mux.HandleFunc("GET /data/{device}", func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, transport.Request{Op: transport.OpData, DeviceID: r.PathValue("device")})
	})
	mux.HandleFunc("GET /history/{device}", func(w http.ResponseWriter, r *http.Request) {
		count, err := strconv.Atoi(r.URL.Query().Get("count"))
		if err != nil || count < 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		s.reply(w, transport.Request{Op: transport.OpHistory, DeviceID: r.PathValue("device"), Count: count})
	})
	mux.HandleFunc("GET /weather/{station}", func(w http.ResponseWriter, r *http.Request) {
		station, err := strconv.Atoi(r.PathValue("station"))
		if err != nil {
			http.Error(w, "invalid station", http.StatusBadRequest)
			return
		}
		s.reply(w, transport.Request{Op: transport.OpWeather, StationID: station})
	})
	return mux
}

func (s *Simulator) reply(w http.ResponseWriter, req transport.Request) {
	payload, status := s.Answer(req)
	switch status {
	case transport.StatusOK:
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	case transport.StatusAbsent:
		w.WriteHeader(http.StatusUnauthorized)
	default:
		http.Error(w, string(payload), http.StatusServiceUnavailable)
	}
}
