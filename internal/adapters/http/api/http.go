// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/runtest/internal/domain/model"
	"github.com/okian/runtest/pkg/logger"
	"golang.org/x/time/rate"
)

// Default server configuration constants.
const (
	defaultMaxBodyBytes int64 = 10 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Authenticate reports whether secret matches the configured API key.
	Authenticate(ctx context.Context, secret string) bool

	// Evaluate runs the selection and returns the response with its timing.
	Evaluate(ctx context.Context, items model.Items, budget float64) (model.Response, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	runTestHandler *RunTestHandler

	maxBodyBytes int64
	limiter      *rate.Limiter
	logger       logger.Logger
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithMaxBodyBytes caps the size of a request body.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithRateLimit enables a token bucket limiter on POST /runtest.
// A non-positive limit leaves the endpoint unlimited.
func WithRateLimit(limit float64, burst int) ServerOption {
	return func(s *Server) {
		if limit <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
}

// WithLogger sets a custom logger for the server and its handlers.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.runTestHandler = NewRunTestHandler(deps, s.maxBodyBytes, s.logger)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	runTest := s.runTestHandler.HandleRunTest
	if s.limiter != nil {
		runTest = RateLimitMiddleware(s.limiter, runTest)
	}

	mux.HandleFunc("GET /healthz", s.wrap(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", s.wrap(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /runtest", s.wrap(runTest, "runtest"))
}

// wrap applies the common middleware chain, outermost first.
func (s *Server) wrap(h http.HandlerFunc, endpoint string) http.HandlerFunc {
	return MetricsMiddleware(
		RequestIDMiddleware(
			RecoveryMiddleware(s.logger, h),
		),
		endpoint,
	)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
