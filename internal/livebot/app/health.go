package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/version"
)

// HealthSources is what the health endpoints read. Transcripts is required; the
// counters may be nil.
type HealthSources struct {
	Transcripts interface {
		Conversations(ctx context.Context) (int, error)
	}
	Provider      string
	Actions       int
	TrackedActors func() int
}

// HealthServer answers GET /health (database reachable) and GET /status
// (runtime snapshot). It is only started when an address is configured.
type HealthServer struct {
	addr    string
	src     HealthSources
	started time.Time
	routes  *http.ServeMux
	srv     *http.Server
}

// NewHealthServer prepares the routes. Nothing listens until Start.
func NewHealthServer(addr string, src HealthSources) *HealthServer {
	h := &HealthServer{addr: addr, src: src, started: time.Now(), routes: http.NewServeMux()}
	h.routes.HandleFunc("GET /health", h.health)
	h.routes.HandleFunc("GET /status", h.status)
	return h
}

func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.routes.ServeHTTP(w, r)
}

// Start binds addr and serves in the background until ctx ends. A bind
// failure is returned.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("app: health listener on %s: %w", h.addr, err)
	}
	h.srv = &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	slog.Info("app: health endpoints up", "addr", ln.Addr().String())

	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("app: health server", "err", err)
		}
	}()
	context.AfterFunc(ctx, h.Stop)
	return nil
}

// Stop gives in-flight requests two seconds.
func (h *HealthServer) Stop() {
	if h.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.srv.Shutdown(ctx); err != nil {
		slog.Warn("app: health server shutdown", "err", err)
	}
}

// health reports 503 when the transcript store cannot be queried, since no
// turn can be answered without history.
func (h *HealthServer) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.src.Transcripts.Conversations(r.Context()); err != nil {
		respond(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	respond(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Version})
}

type snapshot struct {
	Version       string  `json:"version"`
	Commit        string  `json:"commit"`
	Provider      string  `json:"provider"`
	Actions       int     `json:"actions"`
	Conversations int     `json:"conversations"`
	TrackedActors int     `json:"tracked_actors"`
	Uptime        float64 `json:"uptime_seconds"`
}

func (h *HealthServer) status(w http.ResponseWriter, r *http.Request) {
	s := snapshot{
		Version:  version.Version,
		Commit:   version.GitCommit,
		Provider: h.src.Provider,
		Actions:  h.src.Actions,
		Uptime:   time.Since(h.started).Seconds(),
	}
	n, err := h.src.Transcripts.Conversations(r.Context())
	if err != nil {
		slog.Warn("app: status without conversation count", "err", err)
	}
	s.Conversations = n
	if h.src.TrackedActors != nil {
		s.TrackedActors = h.src.TrackedActors()
	}
	respond(w, http.StatusOK, s)
}

func respond(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
