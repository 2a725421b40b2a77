// Package debugapi implements the JSON-over-HTTP debug/inspection
// surface that rtictl talks to: a read-only snapshot of federate
// states, tags, and stop-consensus progress. This RTI carries no RPC
// framework of its own -- the wire protocol between the daemon and
// federates is the fixed binary codec in package wire, so there is
// nothing for a gRPC-style stack to front here. The inspection surface
// is a separate, intentionally small concern and gets the lightest tool
// that fits it.
package debugapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dantte-lp/lf-rti/internal/config"
	"github.com/dantte-lp/lf-rti/internal/federation"
)

// FederateView is one federate's externally-visible snapshot.
type FederateView struct {
	ID              uint16 `json:"id"`
	State           string `json:"state"`
	Completed       int64  `json:"completed_time"`
	CompletedStep   uint32 `json:"completed_microstep"`
	NextEvent       int64  `json:"next_event_time"`
	NextEventStep   uint32 `json:"next_event_microstep"`
	RequestedStop   bool   `json:"requested_stop"`
	ClockSyncActive bool   `json:"clock_sync_active"`
}

// StatusView is the federation-wide snapshot served at /status.
type StatusView struct {
	FederationID string         `json:"federation_id"`
	Size         int            `json:"size"`
	Federates    []FederateView `json:"federates"`
}

// snapshotter is the subset of *federation.Federation the handler needs;
// declared here so tests can substitute a fake without constructing a
// real Federation.
type snapshotter interface {
	ID() string
	N() int
	Snapshot() []federation.Federate
}

// Handler serves the debug/inspection endpoints over plain JSON.
type Handler struct {
	fed      snapshotter
	logLevel *slog.LevelVar
}

// NewHandler wraps fed for HTTP serving. The returned Handler has no
// log-level control endpoint; use NewHandlerWithLevel for that.
func NewHandler(fed *federation.Federation) *Handler {
	return &Handler{fed: fed}
}

// NewHandlerWithLevel wraps fed for HTTP serving and additionally exposes
// POST /loglevel, backed by level.
func NewHandlerWithLevel(fed *federation.Federation, level *slog.LevelVar) *Handler {
	return &Handler{fed: fed, logLevel: level}
}

// Register attaches the debug endpoints to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.handleStatus)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	if h.logLevel != nil {
		mux.HandleFunc("POST /loglevel", h.handleSetLogLevel)
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.fed.Snapshot()
	view := StatusView{
		FederationID: h.fed.ID(),
		Size:         h.fed.N(),
		Federates:    make([]FederateView, len(snap)),
	}
	for i, fed := range snap {
		view.Federates[i] = FederateView{
			ID:              fed.ID,
			State:           fed.State.String(),
			Completed:       int64(fed.Completed.Time),
			CompletedStep:   fed.Completed.Microstep,
			NextEvent:       int64(fed.NextEvent.Time),
			NextEventStep:   fed.NextEvent.Microstep,
			RequestedStop:   fed.RequestedStop,
			ClockSyncActive: fed.ClockSyncEnabled,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// logLevelRequest is the POST /loglevel body.
type logLevelRequest struct {
	Level string `json:"level"`
}

// handleSetLogLevel raises or lowers the process-wide dynamic log level
// without a restart. It never touches federation size, topology, or
// timeouts -- those are fixed for the run's lifetime.
func (h *Handler) handleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.logLevel.Set(config.ParseLogLevel(req.Level))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"level": h.logLevel.Level().String()})
}

// NewServer builds an *http.Server exposing the debug endpoints at addr.
func NewServer(addr string, fed *federation.Federation) *http.Server {
	mux := http.NewServeMux()
	NewHandler(fed).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewServerWithLevel builds an *http.Server exposing the debug endpoints
// at addr, including POST /loglevel backed by level.
func NewServerWithLevel(addr string, fed *federation.Federation, level *slog.LevelVar) *http.Server {
	mux := http.NewServeMux()
	NewHandlerWithLevel(fed, level).Register(mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
