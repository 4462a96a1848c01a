package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testexec/reporting"
	"github.com/ethereum/go-ethereum/log"
)

const (
	DefaultAddr = "0.0.0.0:8080"

	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// RunSource provides the summary of the last finished run, nil before the first
type RunSource interface {
	LatestRun() *reporting.RunSummary
}

// ErrorRecorder counts server errors
type ErrorRecorder interface {
	RecordErrorDetails(label string, err error)
}

// Server serves the health check and the latest run summary
type Server struct {
	router *chi.Mux
	source RunSource
	errs   ErrorRecorder
	log    log.Logger
	addr   string

	httpServer *http.Server
	group      *errgroup.Group
}

func New(addr string, source RunSource, errs ErrorRecorder, logger log.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		source: source,
		errs:   errs,
		log:    logger.New("component", "http"),
		addr:   addr,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/runs/latest", s.handleLatestRun)
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	})
	return c.Handler(s.router)
}

// Start binds the listener and serves in the background until Stop
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
	s.group = new(errgroup.Group)
	s.group.Go(func() error {
		s.log.Info("HTTP server listening", "addr", s.addr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "err", err)
			if s.errs != nil {
				s.errs.RecordErrorDetails("http_server", err)
			}
			return err
		}
		return nil
	})
	return nil
}

// Stop shuts the server down and waits for the serve loop to exit
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	if werr := s.group.Wait(); werr != nil {
		err = errors.Join(err, werr)
	}
	s.log.Info("HTTP server stopped")
	return err
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	return s.addr
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("OK")) //nolint:errcheck
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	run := s.source.LatestRun()
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run has finished yet"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
