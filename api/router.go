package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"

	"github.com/isdmx/codejudge/domain"
)

// Judge is the part of the judge the REST surface drives
type Judge interface {
	RunCode(ctx context.Context, code, language, problemID string) ([]domain.TestResult, error)
	SubmitSolution(ctx context.Context, userID, problemID, code, language string) (*domain.Submission, error)
	GetUserSubmissions(ctx context.Context, userID, problemID string) ([]domain.Submission, error)
}

// ProgressReader reads the aggregate progress of a user
type ProgressReader interface {
	GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error)
}

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures the router
type Option func(*handler)

// WithProgress mounts GET /api/v1/progress
func WithProgress(p ProgressReader) Option {
	return func(h *handler) {
		h.progress = p
	}
}

// WithHealthCheck makes /health report 503 while p fails
func WithHealthCheck(p Pinger) Option {
	return func(h *handler) {
		h.health = p
	}
}

// WithRequestTimeout bounds every API request
func WithRequestTimeout(d time.Duration) Option {
	return func(h *handler) {
		h.timeout = d
	}
}

// WithMaxBodyBytes limits the size of request bodies
func WithMaxBodyBytes(n int64) Option {
	return func(h *handler) {
		h.maxBody = n
	}
}

// NewRouter builds the HTTP handler for the REST surface
func NewRouter(logger *zap.Logger, judge Judge, tokenAuth *jwtauth.JWTAuth, opts ...Option) http.Handler {
	h := &handler{
		logger:  logger,
		judge:   judge,
		timeout: 5 * time.Minute,
		maxBody: 1 << 20,
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.healthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(h.timeout))
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(authenticator)

		r.Route("/problems/{id}", func(r chi.Router) {
			r.Post("/run", h.runCode)
			r.Post("/submit", h.submitSolution)
			r.Get("/submissions", h.listSubmissions)
		})

		if h.progress != nil {
			r.Get("/progress", h.getProgress)
		}
	})

	return r
}

// requestLogger writes one entry per request in the zap logger
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// NewServer wraps handler in an http.Server listening on addr
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
