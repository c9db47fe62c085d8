package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"playground-gateway/internal/handlers"
	"playground-gateway/internal/metrics"
	"playground-gateway/internal/middleware"
)

// SetupRouter wires the playground routes. Page-data GETs run under a
// hard timeout; action POSTs do not, because the goroutine-based
// timeout middleware cannot share a ResponseWriter with an SSE stream.
// Streaming handlers bound themselves with per-stream contexts instead.
func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, h *handlers.Handler) {

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.MaxBodySize(16 * 1024 * 1024)) // dataset and document uploads

	pageTimeout := middleware.Timeout(15 * time.Second)

	r.Route("/playground", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(pageTimeout)
			r.Get("/chat", h.ChatPage)
			r.Post("/chat/clear", h.ChatClear)
			r.Get("/rag", h.RAGPage)
			r.Post("/rag/clear", h.RAGClear)
			r.Get("/tools", h.ToolsPage)
			r.Post("/tools/clear", h.ToolsClear)
			r.Get("/tools/get_tools", h.ToolsList)
			r.Get("/tools/get_vector_dbs", h.ToolsVectorDBs)
		})

		r.Post("/chat", h.Chat)
		r.Post("/rag", h.RAGUpload)
		r.Post("/rag/query", h.RAGQuery)
		r.Post("/tools", h.ToolsTurn)
	})

	r.Route("/evaluations", func(r chi.Router) {
		r.With(pageTimeout).Get("/app_eval", h.AppEvalPage)
		r.With(pageTimeout).Get("/native_eval", h.NativeEvalPage)
		r.Post("/app_eval", h.AppEval)
		r.Post("/native_eval", h.NativeEval)
	})

	r.Route("/distribution", func(r chi.Router) {
		r.Use(pageTimeout)
		r.Get("/providers", h.Providers)
		r.Get("/resources", h.Resources)
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(pageTimeout)
		r.Get("/", h.Profile)
		r.Get("/logout", h.Logout)
		r.Post("/logout", h.Logout)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/playground/chat", http.StatusFound)
	})

	// health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
