package app

import (
	"net/http"
	"time"

	"quizengine/internal/app/observability"
	"quizengine/internal/auth"
	"quizengine/internal/exam"
	"quizengine/internal/regrade"
	"quizengine/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handlers groups the HTTP surfaces mounted by NewRouter.
type Handlers struct {
	Auth    *auth.Verifier
	Exam    *exam.Handler
	Regrade *regrade.Handler
	Report  *report.Handler
	Metrics *observability.Collector
}

func NewRouter(cfg Config, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.Metrics != nil {
		r.Use(h.Metrics.Middleware)
	}
	r.Use(observability.Tracing)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", csrfHeaderName},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics.MetricsHandler())
	}

	limiter := NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(RateLimitMiddleware(limiter))
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))
		api.Use(h.Auth.RequireAuth)

		api.Post("/attempts/start", h.Exam.Start)
		api.Get("/attempts/{id}", h.Exam.Get)
		api.Get("/attempts/{id}/status", h.Exam.Status)
		api.Post("/attempts/{id}/check/{questionID}", h.Exam.Check)
		api.Post("/attempts/{id}/skip/{questionID}", h.Exam.Skip)
		api.Post("/attempts/{id}/skip/{questionID}/{nextID}", h.Exam.Skip)
		api.Post("/attempts/{id}/complete", h.Exam.Complete)
		api.Post("/attempts/{id}/quit", h.Exam.Quit)
		api.Get("/answers/{answerID}/result", h.Exam.CodeResult)

		api.Group(func(staff chi.Router) {
			staff.Use(auth.RequireRoles(auth.RoleTeacher, auth.RoleAdmin))
			staff.Post("/regrade", h.Regrade.Submit)
			staff.Get("/regrade/{jobID}", h.Regrade.JobStatus)
			staff.Post("/attempts/{id}/grade/{questionID}", h.Regrade.Grade)
			staff.Post("/papers/{id}/marks/import", h.Regrade.ImportMarks)
			staff.Get("/papers/{id}/marks/export", h.Report.ExportMarks)
			staff.Get("/papers/{id}/summary", h.Report.Summary)
		})
	})

	return r
}
