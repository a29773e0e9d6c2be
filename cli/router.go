package cli

import (
	"compass/collab"
	"compass/handlers/api/canvas"
	"compass/handlers/api/projects"
	"compass/handlers/auth"
	authMiddleware "compass/middleware"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

type routes struct {
	auth     *auth.Auth
	canvas   canvas.Service
	projects projects.Service
	ai       http.HandlerFunc
	hub      *collab.Hub
}

func setupRouter(rt routes) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.AuthJWT(rt.auth))

		r.Get("/canvas/{projectId}", canvas.HandleGetCanvas(rt.canvas))
		r.Post("/canvas/{projectId}", canvas.HandleSaveCanvas(rt.canvas))

		r.Get("/projects", projects.HandleListProjects(rt.projects))
		r.Post("/projects", projects.HandleCreateProject(rt.projects))
		r.Get("/projects/{projectId}", projects.HandleGetProject(rt.projects))

		if rt.ai != nil {
			r.Post("/ai", rt.ai)
		}
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", rt.auth.HandleLogin)
		r.Get("/callback", rt.auth.HandleCallback)
	})

	if rt.hub != nil {
		r.Mount("/socket.io/", rt.hub.Handler())
	}
	return r
}
