package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"crime-scene-platform/internal/infra/logging"
	"crime-scene-platform/internal/infra/metrics"
	"crime-scene-platform/internal/usecase"
)

// Server exposes the producer API: job submission and tracking, the case
// timeline, branches and the materialized snapshots. Reads are open;
// mutations sit behind the bearer key.
type Server struct {
	jobUC      usecase.JobUseCase
	timelineUC usecase.TimelineUseCase
	snapshotUC usecase.SnapshotUseCase
	queues     QueueInspector
	apiKey     string
	log        *zerolog.Logger
}

func NewServer(
	jobUC usecase.JobUseCase,
	timelineUC usecase.TimelineUseCase,
	snapshotUC usecase.SnapshotUseCase,
	queues QueueInspector,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		jobUC:      jobUC,
		timelineUC: timelineUC,
		snapshotUC: snapshotUC,
		queues:     queues,
		apiKey:     apiKey,
		log:        logger,
	}
}

// Router builds the full route tree, including /healthz and /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cases/{caseID}", func(r chi.Router) {
			r.Get("/timeline", s.listTimeline)
			r.Get("/commits/{commitID}", s.getCommit)
			r.Get("/diff", s.diff)
			r.Get("/branches", s.listBranches)
			r.Get("/scene", s.getScene)
			r.Get("/profile", s.getProfile)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAPIKey)
				r.Post("/jobs", s.submitJob)
				r.Post("/commits", s.appendCommit)
				r.Post("/branches", s.createBranch)
				r.Post("/branches/{branchID}/merge", s.mergeBranch)
				r.Post("/branches/{branchID}/switch", s.switchBranch)
				r.Post("/snapshot/rebuild", s.rebuildSnapshot)
			})
		})

		r.Get("/jobs/{jobID}", s.getJob)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)
			r.Post("/jobs/{jobID}/cancel", s.cancelJob)
		})

		r.Get("/queues", s.queueDepths)
	})

	return r
}

// requireAPIKey guards mutating routes with a static bearer key. An empty
// configured key locks those routes entirely.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Unauthorized: malformed token", http.StatusUnauthorized)
			return
		}
		if parts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logging.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
