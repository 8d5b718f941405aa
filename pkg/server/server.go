package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"wabridge/pkg/channels"
	"wabridge/pkg/config"
	"wabridge/pkg/logger"
	"wabridge/pkg/relay"
)

// StatusSource reports the connection lifecycle state for /health.
type StatusSource interface {
	State() channels.ConnState
}

type Server struct {
	server   *http.Server
	listener net.Listener
	config   *config.Config
	holder   *channels.Holder
	status   StatusSource
	images   *resty.Client
}

func NewServer(cfg *config.Config, holder *channels.Holder, status StatusSource) *Server {
	return &Server{
		config: cfg,
		holder: holder,
		status: status,
		images: resty.New().
			SetTimeout(cfg.Gateway.ImageFetchTimeout()).
			SetResponseBodyLimit(int(cfg.Gateway.MaxImageBytes)),
	}
}

// Handler returns the routed gateway with request logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /send-text", s.handleSendText)
	mux.HandleFunc("POST /send-image", s.handleSendImage)
	return s.withRequestLog(s.withCORS(mux))
}

func (s *Server) Start() error {
	addr := s.config.ListenAddr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.InfoCF("server", "Starting HTTP server", map[string]interface{}{
		"addr": ln.Addr().String(),
	})

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("server", "HTTP server failed", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
	}()

	return nil
}

// Addr is the bound listen address once Start has returned.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		logger.InfoC("server", "Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "wabridge WhatsApp bot running\nTime: %s", time.Now().Format(time.RFC3339))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := channels.StateInitializing
	if s.status != nil {
		state = s.status.State()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"connection": string(state),
		"ready":      s.holder.Ready(),
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+relay.TokenHeader)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := map[string]interface{}{
			logger.FieldMethod:     r.Method,
			logger.FieldPath:       r.URL.Path,
			logger.FieldStatus:     status,
			logger.FieldDurationMS: time.Since(start).Milliseconds(),
			logger.FieldBytes:      rec.bytes,
		}
		if status >= http.StatusInternalServerError {
			logger.WarnCF("server", "HTTP request failed", fields)
			return
		}
		logger.DebugCF("server", "HTTP request", fields)
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func secretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
