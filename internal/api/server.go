// Package api exposes the monitor HTTP interface.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/statuswatch/internal/metrics"
	"github.com/JakeFAU/statuswatch/internal/progress"
	"github.com/JakeFAU/statuswatch/internal/store"
)

const (
	requestTimeout = 30 * time.Second
	readyTimeout   = 2 * time.Second
)

// LatestSource reports the most recent samples seen by the hub.
type LatestSource interface {
	Current() uuid.UUID
	Latest() (progress.Sample, bool)
	LastFailure(runID uuid.UUID) (progress.Sample, bool)
}

// ReadyFunc reports whether downstream dependencies are usable.
type ReadyFunc func(ctx context.Context) error

// Option customizes a Server.
type Option func(*Server)

// WithReadiness installs the check behind /readyz.
func WithReadiness(fn ReadyFunc) Option {
	return func(s *Server) {
		s.ready = fn
	}
}

// WithCORS lets browsers on the given origins read the API. No CORS headers
// are sent when origins is empty.
func WithCORS(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// Server wires HTTP handlers to the latest-sample source and the repository.
type Server struct {
	router  chi.Router
	latest  LatestSource
	samples *SamplesHandler
	ready   ReadyFunc
	logger  *zap.Logger

	corsOrigins []string
}

// NewServer constructs a Server with middleware and routes. repo may be nil,
// in which case history routes answer 503.
func NewServer(latest LatestSource, repo store.SampleRepository, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		latest:  latest,
		samples: NewSamplesHandler(repo, logger),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	if len(s.corsOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		}).Handler)
	}
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/progress", s.getProgress)
		r.Get("/runs/{run_id}/samples", s.samples.ListSamples)
		r.Get("/runs/{run_id}/latest", s.samples.LatestSample)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// getProgress returns the newest successful sample of the current run with
// its display projection, plus the newest failure when one was seen.
func (s *Server) getProgress(w http.ResponseWriter, _ *http.Request) {
	if s.latest == nil {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	sample, ok := s.latest.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no progress yet")
		return
	}
	view, err := progress.LookupView(sample.View)
	if err != nil {
		s.logger.Error("unknown view in sample", zap.String("view", sample.View))
		writeError(w, http.StatusInternalServerError, "unknown view")
		return
	}
	resp := progressResponse{
		RunID:      sample.RunID.String(),
		View:       sample.View,
		RecordedAt: sample.TS,
		Complete:   sample.Complete,
		Display:    progress.Project(view, sample),
	}
	if failure, ok := s.latest.LastFailure(sample.RunID); ok && failure.TS.After(sample.TS) {
		resp.LastFailure = &failureDTO{
			At:      failure.TS,
			Outcome: string(failure.Outcome),
			Note:    failure.Note,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type progressResponse struct {
	RunID       string           `json:"run_id"`
	View        string           `json:"view"`
	RecordedAt  time.Time        `json:"recorded_at"`
	Complete    bool             `json:"complete"`
	Display     progress.Display `json:"display"`
	LastFailure *failureDTO      `json:"last_failure,omitempty"`
}

type failureDTO struct {
	At      time.Time `json:"at"`
	Outcome string    `json:"outcome"`
	Note    string    `json:"note"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
