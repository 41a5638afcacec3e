package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/loopcard/backend/internal/audit"
	"github.com/loopcard/backend/internal/cache"
	"github.com/loopcard/backend/internal/config"
	"github.com/loopcard/backend/internal/database"
	"github.com/loopcard/backend/internal/events"
	"github.com/loopcard/backend/internal/handlers"
	mW "github.com/loopcard/backend/internal/middleware"
	"github.com/loopcard/backend/internal/services"
	"github.com/loopcard/backend/internal/store"
)

// @title LoopCard Ledger API
// @version 1.0
// @description Card ledger, stats aggregation, and reconciliation backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	// Set environment variable prefix
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("engine.stats_batch_size", "ENGINE_STATS_BATCH_SIZE")
	viper.BindEnv("engine.stats_workers", "ENGINE_STATS_WORKERS")
	viper.BindEnv("engine.summary_tolerance", "ENGINE_SUMMARY_TOLERANCE")
	viper.BindEnv("supplier.base_url", "SUPPLIER_BASE_URL")
	viper.BindEnv("supplier.api_key", "SUPPLIER_API_KEY")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	engineCfg := config.LoadEngineConfig()
	supplierCfg := config.LoadSupplierConfig()

	// Initialize infrastructure
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var statsCache cache.Client = cache.Noop{}
	var publisher events.Publisher = events.NewMemoryPublisher()
	if redisClient != nil {
		statsCache = cache.NewRedisClient(redisClient)
		publisher = events.NewRedisPublisher(redisClient, engineCfg.EventsChannel)
	}

	// Stores
	ledgerStore := store.NewPostgresLedgerStore(db)
	cardStore := store.NewPostgresCardStore(db)
	userStore := store.NewPostgresUserStore(db)
	consolidationStore := store.NewPostgresConsolidationStore(db)

	// Services
	auditLog := audit.NewLogger()
	statsService := services.NewStatsService(ledgerStore, cardStore, userStore, statsCache, publisher, engineCfg)
	ledgerService := services.NewLedgerService(ledgerStore, cardStore, statsService, auditLog, publisher)
	consolidationService := services.NewConsolidationService(consolidationStore, ledgerStore, auditLog, publisher, engineCfg.SummaryTolerance)
	cardService := services.NewCardService(cardStore, userStore)
	authService := services.NewAuthService(userStore, redisClient)
	syncService := services.NewSupplierSyncService(supplierCfg, ledgerStore, cardStore, ledgerService)

	// Handlers
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	consolidationHandler := handlers.NewConsolidationHandler(consolidationService)
	statsHandler := handlers.NewStatsHandler(statsService, syncService)
	cardHandler := handlers.NewCardHandler(cardService)

	auth := mW.NewAuth(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)

			r.Get("/auth/account", authService.GetUserAccount)

			// Card endpoints
			r.Post("/cards", cardHandler.IssueCard)
			r.Get("/cards/{cardId}", cardHandler.GetCard)
			r.Post("/cards/{cardId}/suspend", cardHandler.SuspendCard)
			r.Post("/cards/{cardId}/reinstate", cardHandler.ReinstateCard)
			r.Get("/cards/{cardId}/entries", ledgerHandler.ListCardEntries)
			r.Get("/cards/{cardId}/stats", statsHandler.CardStats)
			r.Post("/cards/{cardId}/stats/refresh", statsHandler.RefreshCard)

			// Ledger endpoints
			r.Post("/ledger/entries", ledgerHandler.CreateEntry)
			r.Get("/ledger/entries/{id}", ledgerHandler.GetEntry)
			r.Put("/ledger/entries/{id}", ledgerHandler.EditEntry)
			r.Delete("/ledger/entries/{id}", ledgerHandler.DeleteEntry)
			r.Post("/ledger/entries/{id}/restore", ledgerHandler.RestoreEntry)

			// Consolidation endpoints
			r.Post("/consolidations", consolidationHandler.Append)
			r.Get("/consolidations", consolidationHandler.ListChain)
			r.Delete("/consolidations", consolidationHandler.PurgeChain)
			r.Get("/consolidations/{id}", consolidationHandler.Get)
			r.Delete("/consolidations/{id}", consolidationHandler.Delete)

			// Admin endpoints
			r.Post("/admin/stats/refresh", statsHandler.RefreshAll)
			r.Post("/admin/cards/{cardId}/sync", statsHandler.SyncCard)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
