// Package web is the dashboard-facing HTTP surface: job submission and
// lifecycle actions, state reads and a server-sent event stream.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/infra/logging"
	"asset-studio/internal/infra/redis"
	"asset-studio/internal/store"
)

// Scheduler is what the handlers need from the job scheduler.
type Scheduler interface {
	Submit(params model.JobParams) (*model.Job, error)
	SubmitBatch(count int, params model.JobParams) ([]*model.Job, error)
	ProcessQueue()
	Retry(id string) error
	Remove(id string)
	ClearAll()
	Metrics() model.SchedulerMetrics
	Store() *store.Store
}

type Server struct {
	sched        Scheduler
	auth         *AuthManager       // nil disables auth (dev only)
	limiter      *redis.RateLimiter // nil disables submit rate limiting
	submitPerMin int
	dashboardKey string
	log          *zerolog.Logger
}

func NewServer(
	sched Scheduler,
	auth *AuthManager,
	limiter *redis.RateLimiter,
	submitPerMin int,
	dashboardKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		sched:        sched,
		auth:         auth,
		limiter:      limiter,
		submitPerMin: submitPerMin,
		dashboardKey: dashboardKey,
		log:          logger,
	}
}

// Router builds the chi router for the dashboard API.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.With(s.rateLimit).Post("/jobs", s.handleSubmit)
		r.With(s.rateLimit).Post("/jobs/batch", s.handleSubmitBatch)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/{id}/retry", s.handleRetry)
		r.Delete("/jobs/{id}", s.handleRemoveJob)
		r.Delete("/jobs", s.handleClearAll)

		r.Get("/metrics", s.handleMetrics)
		r.Get("/stats", s.handleStats)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// logRequests tags the request context with the chi request id and emits one
// line per request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		log := logging.With(ctx, s.log)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// authMiddleware validates the session token. With no AuthManager configured
// every request passes; cmd/app logs a warning at startup in that case.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the fixed-window redis limiter to submission endpoints.
// When redis is unreachable the request is allowed: the limiter is a shield,
// not a dependency.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := s.limiter.Allow(r.Context(), redis.SubmitKey(r.RemoteAddr), s.submitPerMin, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeError(w, http.StatusTooManyRequests, "submission rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
