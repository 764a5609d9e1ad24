package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/qiankun25/RuralMuralGenerator/internal/identity"
	"github.com/qiankun25/RuralMuralGenerator/internal/middleware"
)

// Routes builds the full router: API, websocket stream and media serving.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))

	origins := []string{"*"}
	if h.cfg.FrontendURL != "" {
		origins = []string{h.cfg.FrontendURL}
	}
	r.Use(middleware.CORS(origins))
	r.Use(identity.Middleware(h.cfg.IsDevelopment()))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/", h.ListSessions)
			r.Get("/{id}", h.GetSession)
			r.Delete("/{id}", h.DeleteSession)
			r.Post("/{id}/messages", h.PostMessage)
		})

		r.Post("/analyze", h.Analyze)
		r.Post("/design", h.Design)
		r.Post("/refine-design", h.RefineDesign)
		r.Post("/generate-image", h.GenerateImage)
		r.Get("/tasks/{id}", h.GetTask)
	})

	r.Get("/ws/tasks/{id}", h.TaskStream)

	// Generated and mock images are served under /media.
	fileServer := http.StripPrefix("/media", http.FileServer(http.Dir(h.cfg.MediaDir)))
	r.Get("/media/*", func(w http.ResponseWriter, r *http.Request) {
		fileServer.ServeHTTP(w, r)
	})

	return r
}
