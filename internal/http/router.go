package http

import (
	"net/http"

	"voice-search-assistant/internal/app"
	"voice-search-assistant/internal/observability/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		app:     application,
		metrics: metrics.DefaultMetrics,
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/prompts", h.listPrompts)
		r.Get("/languages", h.listLanguages)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.Put("/input", h.setInput)
				r.Post("/keys", h.pressKey)
				r.Post("/submit", h.submit)
				r.Post("/clear", h.clear)
				r.Post("/mic", h.toggleMic)
				r.Put("/language", h.setLanguage)
				r.Get("/suggestions", h.suggestions)
				r.Get("/ws", h.stream)
			})
		})
	})

	return r
}
