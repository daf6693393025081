// ABOUTME: Dev backend HTTP server: construction, routing and lifecycle
// ABOUTME: Serves the chat wire contract over a store.Store with optional bearer auth

package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/store"
)

// Server serves the chat API.
type Server struct {
	store      store.Store
	responder  Responder
	verifier   auth.TokenVerifier
	chunkDelay time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithResponder replaces EchoResponder.
func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

// WithChunkDelay sets the pause between streamed content deltas.
func WithChunkDelay(d time.Duration) Option {
	return func(s *Server) { s.chunkDelay = d }
}

// WithVerifier requires a bearer token accepted by v on every API route.
func WithVerifier(v auth.TokenVerifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "devserver")
		}
	}
}

// New creates a server over st.
func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:     st,
		responder: EchoResponder{},
		logger:    slog.Default().With("component", "devserver"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /threads", s.handleListThreads)
	api.HandleFunc("GET /thread/{id}/history", s.handleHistory)
	api.HandleFunc("DELETE /thread/{id}", s.handleDeleteThread)
	api.HandleFunc("POST /chat/stream", s.handleChatStream)

	var protected http.Handler = api
	if s.verifier != nil {
		protected = auth.Middleware(s.verifier, s.logger)(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("/", protected)
	return s.logRequests(mux)
}

// Run listens on addr and serves until ctx is cancelled, then shuts down
// gracefully. Open streams are cancelled at shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Request contexts derive from this so shutdown ends long-lived streams
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case err, ok := <-errCh:
		if ok {
			s.logger.Error("server error", "error", err)
			serverErr = err
		}
	}

	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serverErr == nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return serverErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
