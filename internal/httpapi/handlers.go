// Package httpapi bundles the controller's operational HTTP handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"egodrive/cruise/internal/dispatch"
	"egodrive/cruise/internal/logging"
	"egodrive/cruise/internal/results"
	"egodrive/cruise/internal/telemetry"
)

// Options configures the HandlerSet.
type Options struct {
	Logger        *logging.Logger
	StartedAt     time.Time
	Dispatcher    func() dispatch.Stats
	RecorderStats func() results.Stats
	Summary       func() results.Summary
	Telemetry     func() telemetry.Stats
	TimeSource    func() time.Time
}

// HandlerSet exposes health, readiness, and stats endpoints.
type HandlerSet struct {
	logger        *logging.Logger
	startedAt     time.Time
	dispatcher    func() dispatch.Stats
	recorderStats func() results.Stats
	summary       func() results.Summary
	telemetry     func() telemetry.Stats
	now           func() time.Time
}

// NewHandlerSet fills defaults for the logger, clock, and start time and
// builds the handler set.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = now()
	}
	return &HandlerSet{
		logger:        logger,
		startedAt:     startedAt,
		dispatcher:    opts.Dispatcher,
		recorderStats: opts.RecorderStats,
		summary:       opts.Summary,
		telemetry:     opts.Telemetry,
		now:           now,
	}
}

// Register attaches every handler to the mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/healthz", h.healthz)
	mux.HandleFunc("/readyz", h.readyz)
	mux.HandleFunc("/api/stats", h.stats)
	mux.HandleFunc("/api/results/summary", h.resultsSummary)
}

type healthPayload struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *HandlerSet) healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeJSON(w, http.StatusOK, healthPayload{
		Status:        "ok",
		UptimeSeconds: int64(h.now().Sub(h.startedAt).Seconds()),
	})
}

func (h *HandlerSet) readyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	//1.- The controller is ready once the dispatcher is wired to the bus.
	if h.dispatcher == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statsPayload struct {
	Dispatcher dispatch.Stats  `json:"dispatcher"`
	Recorder   results.Stats   `json:"recorder"`
	Telemetry  telemetry.Stats `json:"telemetry"`
}

func (h *HandlerSet) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload := statsPayload{}
	if h.dispatcher != nil {
		payload.Dispatcher = h.dispatcher()
	}
	if h.recorderStats != nil {
		payload.Recorder = h.recorderStats()
	}
	if h.telemetry != nil {
		payload.Telemetry = h.telemetry()
	}
	h.writeJSON(w, http.StatusOK, payload)
}

func (h *HandlerSet) resultsSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.summary == nil {
		http.Error(w, "summary unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, h.summary())
}

func (h *HandlerSet) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response encode failed", logging.Error(err))
	}
}
