// ABOUTME: HTTP server exposing one played-back run over the real wire protocol.
// ABOUTME: chi routes for state, event stream, stage trees, report, and Prometheus metrics.

package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389-research/watchtower/wire"
)

// DefaultHeartbeatInterval is how often an idle event stream emits a ping.
const DefaultHeartbeatInterval = 15 * time.Second

const defaultAddr = "127.0.0.1:7173"

// ServerConfig holds the configuration for the replay server.
type ServerConfig struct {
	Player            *Player
	Addr              string        // listen address (default: "127.0.0.1:7173")
	Token             string        // when set, API requests must carry "Bearer <Token>"
	HeartbeatInterval time.Duration // default DefaultHeartbeatInterval
	Logf              func(string, ...any)
}

// Server serves a player's run over HTTP. It speaks the same protocol the
// live backend does, so every client layer can run against it unchanged.
type Server struct {
	player    *Player
	token     string
	heartbeat time.Duration
	logf      func(string, ...any)
	router    chi.Router
	httpSrv   *http.Server
}

// NewServer creates a replay server for the given player.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Player == nil {
		return nil, fmt.Errorf("Player must not be nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}

	s := &Server{
		player:    cfg.Player,
		token:     cfg.Token,
		heartbeat: cfg.HeartbeatInterval,
		logf:      cfg.Logf,
	}
	s.router = s.buildRouter()
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		// No write timeout: event streams stay open for the life of the run.
	}
	return s, nil
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	s.logf("replay: serving run=%s addr=%s", s.player.RunID(), s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logf))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/runs/{runID}", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Use(s.requireRun)
		r.Get("/state", s.handleState)
		r.Get("/events", s.handleEvents)
		r.Get("/stages/{stageID}/tree", s.handleTree)
		r.Get("/report", s.handleReport)
	})

	return r
}

// requireToken rejects API requests without the configured bearer token.
// Auth runs before the run-id check so an unauthorized caller learns nothing.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireRun(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "runID") != s.player.RunID() {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "run_id": s.player.RunID()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	metricRequests.WithLabelValues("state").Inc()
	writeJSON(w, http.StatusOK, s.player.State())
}

// handleEvents streams frames as server-sent events: full history first,
// then the live tail, with heartbeat pings while the stream is idle.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	metricRequests.WithLabelValues("events").Inc()

	history, frames, cancel := s.player.SubscribeWithHistory()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metricActiveStreams.Inc()
	defer metricActiveStreams.Dec()

	flusher, canFlush := w.(http.Flusher)
	for _, f := range history {
		io.WriteString(w, f.Encode())
	}
	metricFramesStreamed.Add(float64(len(history)))
	if canFlush {
		flusher.Flush()
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				// Playback finished; close the stream cleanly.
				return
			}
			io.WriteString(w, f.Encode())
			metricFramesStreamed.Inc()
			if canFlush {
				flusher.Flush()
			}
		case <-heartbeat.C:
			io.WriteString(w, wire.Frame{Event: EventPing, Data: "{}"}.Encode())
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	metricRequests.WithLabelValues("tree").Inc()
	stageID := chi.URLParam(r, "stageID")
	tree, ok := s.player.Tree(stageID)
	if !ok {
		writeError(w, http.StatusNotFound, "no tree for stage yet")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	metricRequests.WithLabelValues("report").Inc()
	report, ok := s.player.Report()
	if !ok {
		writeError(w, http.StatusNotFound, "report not ready")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("replay: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
