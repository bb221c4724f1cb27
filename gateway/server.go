// Package gateway serves the HTTP API: device state reads, processing log
// reads, manual command overrides, health, and a WebSocket feed of live
// broker traffic.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CalebLauder/rakan-backend/errors"
	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/health"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
	"github.com/CalebLauder/rakan-backend/publisher"
	"github.com/CalebLauder/rakan-backend/store"
)

// ManualOverrideReason marks commands injected through the API rather
// than resolved from an event.
const ManualOverrideReason = "manual override from API"

const defaultLogLimit = 100

// Server is the HTTP gateway. Start is non-blocking; Stop shuts the
// listener down within the given timeout.
type Server struct {
	port      int
	states    store.StateStore
	logs      store.LogStore
	publisher *publisher.Publisher
	monitor   *health.Monitor
	hub       *Hub
	logger    *slog.Logger

	httpServer *http.Server

	lifecycleMu sync.Mutex
	running     atomic.Bool

	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHub attaches a WebSocket hub served at /ws.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithMonitor attaches the health monitor behind /healthz.
func WithMonitor(monitor *health.Monitor) ServerOption {
	return func(s *Server) {
		s.monitor = monitor
	}
}

// NewServer creates a gateway on port backed by the given stores and
// publisher.
func NewServer(port int, states store.StateStore, logs store.LogStore, pub *publisher.Publisher, opts ...ServerOption) *Server {
	s := &Server{
		port:      port,
		states:    states,
		logs:      logs,
		publisher: pub,
		logger:    slog.Default().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devices", s.handleListDevices)
	mux.HandleFunc("GET /devices/{id}", s.handleGetDevice)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("POST /devices/{id}/command", s.handleCommand)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.handleWS)
	}
	return s.instrument(mux)
}

// Start begins serving. The listener runs on its own goroutine; startup
// errors after bind surface in the logs.
func (s *Server) Start(_ context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Gateway", "Start", "server already running")
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)

	go func() {
		s.logger.Info("gateway listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server failed", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down, waiting up to timeout for in-flight
// requests.
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)

	if s.hub != nil {
		s.hub.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown HTTP server")
	}
	s.logger.Info("gateway stopped")
	return nil
}

// instrument counts requests and threads a request id through responses.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requestsTotal.Add(1)
		w.Header().Set("X-Request-ID", requestID(r))
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	states, err := s.states.List(r.Context())
	if err != nil {
		s.logger.Error("list devices failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "state store unavailable")
		return
	}
	if states == nil {
		states = []*event.DeviceState{}
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	state, err := s.states.Get(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, errors.ErrKeyNotFound) {
			s.writeError(w, http.StatusNotFound, "device not found")
			return
		}
		s.logger.Error("get device failed", "deviceId", deviceID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "state store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.logs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("read logs failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "log store unavailable")
		return
	}
	if entries == nil {
		entries = []*event.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// commandRequest is the override body. Value is optional and may be any
// JSON value.
type commandRequest struct {
	Action string `json:"action"`
	Value  any    `json:"value"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Action == "" {
		s.writeError(w, http.StatusBadRequest, "'action' is required")
		return
	}

	cmd := event.CommandFromDecision(&event.Decision{
		DeviceID:  deviceID,
		Action:    req.Action,
		Value:     req.Value,
		Reason:    ManualOverrideReason,
		Timestamp: timestamp.Now(),
	})

	outcome := s.publisher.Publish(r.Context(), cmd)
	if !outcome.Delivered {
		s.logger.Warn("manual command not delivered", "deviceId", deviceID, "error", outcome.Err)
		s.writeError(w, http.StatusBadGateway, "command publish failed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "sent",
		"command": cmd,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	report := s.monitor.Evaluate(r.Context())
	status := http.StatusOK
	if report.Level == health.LevelUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}
