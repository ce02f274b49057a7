// Package monitor serves Prometheus metrics and the current recording status
// over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whisper-darkly/twitch-recorder/logger"
	"github.com/whisper-darkly/twitch-recorder/recorder"
)

// StatusSource reports a recorder snapshot. *recorder.Recorder satisfies it.
type StatusSource interface {
	Status() recorder.Status
}

// Server exposes /metrics, /healthz and /status.
type Server struct {
	addr string
	log  *logger.Logger

	mu  sync.RWMutex
	src StatusSource

	srv *http.Server
	ln  net.Listener
}

// New creates a server for addr. It does not listen until Start.
func New(addr string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{addr: addr, log: log.With("file", "monitor")}
}

// Track makes src the recorder reported by /status. nil clears it.
func (s *Server) Track(src StatusSource) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/status", s.serveStatus)
	return r
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	src := s.src
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if src == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no recording"})
		return
	}
	if err := json.NewEncoder(w).Encode(src.Status()); err != nil {
		s.log.Warn("encode status: %v", err)
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("monitor server: %v", err)
		}
	}()
	s.log.Info("serving metrics on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
