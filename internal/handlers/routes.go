package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mydiary/internal/diary"
	"mydiary/internal/metrics"
	mw "mydiary/internal/middleware"
	"mydiary/internal/session"
)

type RouterConfig struct {
	Store     diary.EntryStore
	Auth      *session.Authenticator
	Registry  *diary.Registry
	Workspace diary.Options
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Origins   []string
	Logger    *zap.Logger
}

func NewRouter(c RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.ZapRequestLogger(c.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   c.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.WorkspaceHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{}))
	}

	workspaceHandler := NewWorkspaceHandler(c.Store, c.Auth, c.Registry, c.Workspace, c.Origins, c.Logger)
	authHandler := NewAuthHandler(c.Metrics, c.Logger)
	draftHandler := NewDraftHandler()
	entriesHandler := NewEntriesHandler()
	wsMW := mw.NewWorkspaceMiddleware(c.Registry)

	r.Route("/api", func(api chi.Router) {
		api.Post("/workspaces", workspaceHandler.Create)
		api.Group(func(pr chi.Router) {
			pr.Use(wsMW.RequireWorkspace)

			pr.Post("/auth/signup", authHandler.Signup)
			pr.Post("/auth/login", authHandler.Login)
			pr.Post("/auth/federated/{provider}", authHandler.Federated)
			pr.Post("/auth/logout", authHandler.Logout)

			pr.Get("/workspace", workspaceHandler.Get)
			pr.Delete("/workspace", workspaceHandler.Close)
			pr.Get("/workspace/live", workspaceHandler.Live)
			pr.Put("/workspace/tab", workspaceHandler.SetTab)
			pr.Put("/workspace/overlay", workspaceHandler.SetOverlay)

			pr.Patch("/workspace/draft", draftHandler.UpdateField)
			pr.Post("/workspace/draft/select", draftHandler.Select)
			pr.Post("/workspace/draft/save", draftHandler.Save)
			pr.Post("/workspace/draft/images", draftHandler.AddImage)
			pr.Delete("/workspace/draft/images/{id}", draftHandler.RemoveImage)
			pr.Post("/workspace/draft/attachments", draftHandler.AddAttachment)
			pr.Delete("/workspace/draft/attachments/{id}", draftHandler.RemoveAttachment)

			pr.Delete("/entries/{id}", entriesHandler.Delete)
		})
	})
	return r
}
