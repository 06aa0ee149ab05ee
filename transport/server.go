// Package transport binds the dispatcher to HTTP and WebSocket.
//
//	POST /rpc   one JSON-RPC request per HTTP request
//	GET  /ws    JSON-RPC over WebSocket plus pushed notifications/event
//	GET  /healthz
//	POST /admin/reap?threshold=30m  remove idle agents
//	GET  /metrics (when metrics are enabled)
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/grantmesh/dispatch"
	"github.com/hupe1980/grantmesh/logging"
	"github.com/hupe1980/grantmesh/metrics"
)

// MaxRequestBytes bounds a single JSON-RPC request body or frame.
const MaxRequestBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Logger  logging.Logger
	Metrics *metrics.Metrics
	// EventBuffer is the per-connection event queue size.
	EventBuffer int
	// WriteTimeout bounds each WebSocket write.
	WriteTimeout time.Duration
	// PingInterval is the WebSocket keepalive period. Zero disables pings.
	PingInterval time.Duration
}

// Server is the HTTP front of a dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	mux        *http.ServeMux
	logger     logging.Logger
	opts       Options
	upgrader   websocket.Upgrader
}

// NewServer creates a Server with all routes registered.
func NewServer(d *dispatch.Dispatcher, optFns ...func(o *Options)) *Server {
	opts := Options{
		EventBuffer:  64,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	s := &Server{
		dispatcher: d,
		mux:        http.NewServeMux(),
		logger:     logging.OrNoOp(opts.Logger),
		opts:       opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /rpc", s.handleRPC)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.mux.HandleFunc("POST /admin/reap", s.handleReap)
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "grantmesh",
		"agents":  s.dispatcher.Registry().Count(),
	})
}

func (s *Server) handleReap(w http.ResponseWriter, r *http.Request) {
	var threshold time.Duration
	if v := r.URL.Query().Get("threshold"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		threshold = d
	}
	removed := s.dispatcher.ReapIdle(threshold)
	writeJSON(w, http.StatusOK, ReapResult{Removed: removed})
}

// ReapResult is the /admin/reap response.
type ReapResult struct {
	Removed int `json:"removed"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	out := s.dispatcher.HandleMessage(r.Context(), body)
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.logger.Info("transport.listen", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.dispatcher.Hub().Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
