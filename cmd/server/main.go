package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skillpair-backend/internal/config"
	"skillpair-backend/internal/database"
	"skillpair-backend/internal/handlers"
	"skillpair-backend/internal/middleware"
	"skillpair-backend/internal/repository"
	"skillpair-backend/internal/router"
	"skillpair-backend/internal/services"
	"skillpair-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting SkillPair Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	courseRepo := repository.NewCourseRepo(pool)
	progressRepo := repository.NewProgressRepo(pool)
	invitationRepo := repository.NewInvitationRepo(pool)
	sessionRepo := repository.NewSessionRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewAuthService(userRepo, redisClients.Tokens, jwtAuth)
	matchingService := services.NewMatchingService(userRepo, courseRepo, progressRepo, cfg.MinMatchScore, cfg.MaxMatches)
	sessionService := services.NewSessionService(sessionRepo, courseRepo)
	notifier := services.NewRedisNotifier(redisClients.Tokens)
	invitationService := services.NewInvitationService(
		invitationRepo, userRepo, courseRepo, sessionService, notifier,
		time.Duration(cfg.InvitationTTLHours)*time.Hour,
	)

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, sessionService, notifier)
	wsHub.SetInvitationService(invitationService)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userRepo)
	courseHandler := handlers.NewCourseHandler(courseRepo, progressRepo)
	matchHandler := handlers.NewPeerMatchHandler(matchingService, userRepo)
	invitationHandler := handlers.NewPeerInvitationHandler(invitationService)
	sessionHandler := handlers.NewPeerSessionHandler(sessionService, invitationService)

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		authHandler,
		userHandler,
		courseHandler,
		matchHandler,
		invitationHandler,
		sessionHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ SkillPair Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
