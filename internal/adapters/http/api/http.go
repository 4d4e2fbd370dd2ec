// Package api exposes the dashboard snapshot over HTTP and a websocket stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/bikewatch/internal/app"
	"github.com/okian/bikewatch/pkg/logger"
)

const (
	defaultWriteTimeout = 5 * time.Second
	maxBodyBytes        = 1 << 16
)

// Dashboard is the controller surface the handlers depend on.
type Dashboard interface {
	Snapshot() app.Snapshot
	Subscribe() (<-chan app.Snapshot, func())
	Refresh() bool
	SwitchDevice(ctx context.Context, deviceID, trackID string) error
}

// Server wires HTTP routes for the dashboard.
type Server struct {
	dash         Dashboard
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       logger.Logger
	clients      atomic.Int64
}

// NewServer creates a new API server over dash.
func NewServer(dash Dashboard, opts ...Option) *Server {
	s := &Server{
		dash:         dash,
		writeTimeout: defaultWriteTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.HandleFunc("GET /healthz", s.instrument("healthz", NewHealthHandler().HandleHealth))
	mux.HandleFunc("GET /snapshot", s.instrument("snapshot", s.handleSnapshot))
	mux.HandleFunc("GET /ws", s.handleStream)
	mux.HandleFunc("POST /refresh", s.instrument("refresh", s.handleRefresh))
	mux.HandleFunc("POST /device", s.instrument("device", s.handleDevice))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dash.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.dash.Refresh() {
		writeJSON(w, http.StatusAccepted, refreshResponse{Status: "triggered"})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Status: "skipped"})
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	const op = "api.switch_device"

	var req deviceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	err := s.dash.SwitchDevice(r.Context(), req.DeviceID, req.TrackID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.dash.Snapshot())
	case errors.Is(err, app.ErrNotMounted):
		writeError(w, http.StatusServiceUnavailable, "not_mounted", wrapKind(op, ErrNotMounted, err))
	case errors.Is(err, app.ErrInvalidDevice):
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}

type deviceRequest struct {
	DeviceID string `json:"deviceId"`
	TrackID  string `json:"trackId"`
}

func (d *deviceRequest) validate() error {
	d.DeviceID = strings.TrimSpace(d.DeviceID)
	d.TrackID = strings.TrimSpace(d.TrackID)
	if d.DeviceID == "" {
		return errors.New("missing deviceId")
	}
	return nil
}

type refreshResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func wrapKind(op string, kind, err error) error {
	return &kindError{op: op, kind: kind, err: err}
}

// kindError carries the operation that failed alongside its sentinel kind.
type kindError struct {
	op   string
	kind error
	err  error
}

func (e *kindError) Error() string {
	if e.err == nil {
		return e.op + ": " + e.kind.Error()
	}
	return e.op + ": " + e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
