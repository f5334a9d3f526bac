package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"skillpair-backend/internal/handlers"
	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	courseHandler *handlers.CourseHandler,
	matchHandler *handlers.PeerMatchHandler,
	invitationHandler *handlers.PeerInvitationHandler,
	sessionHandler *handlers.PeerSessionHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── User Routes ────
		r.Route("/user", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/me", userHandler.GetMe)
			r.Put("/me", userHandler.UpdateMe)
		})

		// ──── Course Routes ────
		r.Route("/courses", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", courseHandler.List)
			r.Get("/{id}", courseHandler.Get)
			r.Get("/{id}/progress", courseHandler.GetProgress)
			r.Post("/{id}/progress/complete", courseHandler.CompleteLevel)
		})

		// ──── Peer Learning Routes ────
		r.Route("/peer-learning", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Get("/matches/{courseId}/{chapterId}/{levelId}", matchHandler.Matches)
			r.Put("/availability", matchHandler.SetAvailability)

			r.Route("/invitations", func(r chi.Router) {
				r.Post("/", invitationHandler.Create)
				r.Get("/received", invitationHandler.ListReceived)
				r.Get("/sent", invitationHandler.ListSent)
				r.Post("/{id}/respond", invitationHandler.Respond)
				r.Delete("/{id}", invitationHandler.Cancel)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/active", sessionHandler.Active)
				r.Get("/notifications", sessionHandler.Notifications)
				r.Post("/test", sessionHandler.CreateTest)
				r.Get("/{sessionId}", sessionHandler.Get)
				r.Post("/{sessionId}/messages", sessionHandler.PostMessage)
				r.Post("/{sessionId}/questions", sessionHandler.PostQuestion)
				r.Put("/{sessionId}/progress", sessionHandler.UpdateProgress)
				r.Post("/{sessionId}/test-result", sessionHandler.PostTestResult)
				r.Post("/{sessionId}/heartbeat", sessionHandler.Heartbeat)
				r.Post("/{sessionId}/end", sessionHandler.End)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
