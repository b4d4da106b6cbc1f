package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"naszgpt-backend/internal/handlers"
	"naszgpt-backend/internal/middleware"
	"naszgpt-backend/internal/web"
	"naszgpt-backend/internal/websocket"
)

func New(
	sessions *middleware.SessionManager,
	chatHandler *handlers.ChatHandler,
	chatLimiter *middleware.RateLimiter,
	wsHub *websocket.Hub,
	allowedOrigins string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(allowedOrigins))

	// UI
	r.Get("/", web.Index)
	r.Handle("/static/*", web.Static())

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(sessions.Middleware)

		// WebSocket
		r.Get("/ws", wsHub.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(5 * time.Minute))

			// ──── Session Routes ────
			r.Route("/session", func(r chi.Router) {
				r.Get("/", chatHandler.GetSession)
				r.Delete("/", chatHandler.EndSession)
				r.Put("/exchange-rate", chatHandler.SetExchangeRate)
				r.Delete("/exchange-rate", chatHandler.ClearExchangeRate)
			})

			r.Get("/models", chatHandler.ListModels)

			// ──── Chat Routes ────
			r.Route("/chat", func(r chi.Router) {
				r.Use(chatLimiter.Middleware)
				r.Post("/messages", chatHandler.SendMessage)
			})

			// ──── Attachment Routes ────
			r.Route("/attachments", func(r chi.Router) {
				r.Post("/", chatHandler.UploadAttachment)
				r.Delete("/", chatHandler.RemoveAttachment)
			})

			// ──── Conversation Routes ────
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", chatHandler.ListConversations)
				r.Post("/", chatHandler.CreateConversation)
				r.Get("/{id}", chatHandler.GetConversation)
				r.Put("/{id}", chatHandler.UpdateConversation)
				r.Delete("/{id}", chatHandler.DeleteConversation)
				r.Post("/{id}/activate", chatHandler.ActivateConversation)
				r.Post("/{id}/clear", chatHandler.ClearConversation)
				r.Get("/{id}/usage", chatHandler.ConversationUsage)
			})
		})
	})

	return r
}
