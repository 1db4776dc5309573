package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/examprep/backend/internal/attempts"
	"github.com/examprep/backend/internal/auth"
	"github.com/examprep/backend/internal/cache"
	"github.com/examprep/backend/internal/config"
	"github.com/examprep/backend/internal/database"
	"github.com/examprep/backend/internal/exams"
	"github.com/examprep/backend/internal/generator"
	"github.com/examprep/backend/internal/middleware"
	"github.com/examprep/backend/internal/notify"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	userStore := auth.NewStore(db)
	if err := auth.BootstrapAdmin(ctx, userStore, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to bootstrap admin: %v", err)
	}

	// Redis is optional: without it pools are read from Postgres each
	// time and live sessions stay in process memory.
	var (
		poolCache exams.PoolCache
		sessions  attempts.SessionStore = attempts.NewMemorySessionStore()
	)
	if cfg.Redis.Enabled() {
		rdb, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		poolCache = cache.NewQuestionCache(rdb, cfg.QuestionCacheTTL)
		sessions = cache.NewSessionStore(rdb, cfg.SessionTTL)
	} else {
		log.Println("WARN: REDIS_ADDR not set, using in-memory attempt sessions")
	}

	mailer, err := notify.NewMailer(ctx, cfg.Email.Region, cfg.Email.FromEmail, cfg.Email.FromName, cfg.Email.AppBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize mailer: %v", err)
	}

	var drafter exams.ExplanationDrafter
	if gen := generator.New(cfg.Generator); gen != nil {
		drafter = gen
	}

	// Initialize services and handlers
	tokens := middleware.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	mw := middleware.New(tokens, userStore)

	examService := exams.NewService(exams.NewStore(db), poolCache)
	attemptService := attempts.NewService(examService, attempts.NewStore(db), sessions, cfg.SessionTTL)

	authHandler := auth.NewHandler(userStore, tokens, mailer)
	examHandler := exams.NewHandler(examService, drafter)
	attemptHandler := attempts.NewHandler(attemptService)

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Authenticated routes; pending users may still read their own account
	protected := api.PathPrefix("").Subrouter()
	protected.Use(mw.AuthMiddleware)
	protected.HandleFunc("/auth/me", authHandler.GetCurrentUser).Methods("GET")

	// Approved users
	approved := api.PathPrefix("").Subrouter()
	approved.Use(mw.AuthMiddleware, mw.RequireApproved)
	examHandler.RegisterRoutes(approved)
	attemptHandler.RegisterRoutes(approved)

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(mw.AuthMiddleware, mw.RequireApproved, mw.RequireAdmin)
	authHandler.RegisterAdminRoutes(admin)
	examHandler.RegisterAdminRoutes(admin)
	attemptHandler.RegisterAdminRoutes(admin)

	// Health check
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
	r.HandleFunc("/health", healthHandler).Methods("GET")
	api.HandleFunc("/health", healthHandler).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go attemptService.StartExpiryWorker(ctx, cfg.ExpirySweep)

	go func() {
		log.Printf("Server starting on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("WARN: graceful shutdown failed: %v", err)
	}
}
