package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fieldwork-backend-go/internal/config"
	"fieldwork-backend-go/internal/services"
	"fieldwork-backend-go/internal/storage"
)

type Server struct {
	Service *services.Service
	Hub     *services.EventHub
	Blobs   storage.Backend
	Config  config.Config
	Log     *zap.Logger

	baseCtx context.Context
}

func NewServer(svc *services.Service, hub *services.EventHub, cfg config.Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Service: svc,
		Hub:     hub,
		Blobs:   svc.Blobs,
		Config:  cfg,
		Log:     log,
	}
}

// Router builds the HTTP handler. ctx bounds long-lived connections such as
// the event WebSocket.
func (s *Server) Router(ctx context.Context) http.Handler {
	s.baseCtx = ctx
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	if len(s.Config.CorsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.Config.CorsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/media/*", s.MediaContent)
		api.Get("/ws/events", s.EventsSocket)

		api.Group(func(api chi.Router) {
			api.Use(s.OptionalAuth)

			api.Post("/auth/register", s.Register)
			api.With(rateLimit(s.Config.LoginRatePerMinute)).Post("/auth/login", s.Login)
			api.Post("/auth/refresh", s.Refresh)
			api.Post("/auth/logout", s.Logout)
			api.With(RequireAuth).Get("/me", s.Me)

			api.Route("/projects", func(projects chi.Router) {
				projects.Get("/", s.ListProjects)
				projects.Post("/", s.CreateProject)
				projects.Route("/{projectId}", func(project chi.Router) {
					project.Get("/", s.GetProject)
					project.Put("/", s.UpdateProject)
					project.Delete("/", s.DeleteProject)
					project.Post("/approve", s.ApproveProject)
					project.Post("/reject", s.RejectProject)
					project.Post("/like", s.LikeProject)
					project.Post("/comment", s.CommentProject)
					project.Post("/comments", s.CommentProject)
					project.Get("/comments", s.ListProjectComments)
					project.Get("/files", s.ListProjectFiles)
				})
			})

			api.Route("/files", func(files chi.Router) {
				files.Get("/", s.ListFiles)
				files.With(rateLimit(s.Config.UploadRatePerMinute)).Post("/upload", s.UploadFile)
				files.Route("/{fileId}", func(file chi.Router) {
					file.Get("/", s.GetFile)
					file.Delete("/", s.DeleteFile)
					file.Post("/approve", s.ApproveFile)
					file.Post("/reject", s.RejectFile)
					file.Post("/like", s.LikeFile)
					file.Post("/comment", s.CommentFile)
					file.Post("/comments", s.CommentFile)
					file.Get("/comments", s.ListFileComments)
				})
			})

			api.Route("/users", func(users chi.Router) {
				users.Use(RequireAuth)
				users.Get("/", s.ListUsers)
				users.Put("/{userId}/role", s.SetUserRole)
			})

			api.With(RequireAuth).Get("/admin/metrics/history", s.MetricsHistory)
		})
	})
	return r
}

// rateLimit limits requests per client IP; a non-positive limit disables it.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, http.StatusTooManyRequests, "Too many requests")
		}),
	)
}
