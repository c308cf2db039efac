package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/username/finsight/backend/src/config"
	"github.com/username/finsight/backend/src/database"
	"github.com/username/finsight/backend/src/handlers"
	"github.com/username/finsight/backend/src/logger"
	"github.com/username/finsight/backend/src/processors"
	"github.com/username/finsight/backend/src/services"
	"github.com/username/finsight/backend/src/store"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("FinSight backend server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	db, err := database.Connect(config.Cfg.DatabasePath)
	if err != nil {
		stdlog.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.RunMigrations(db, config.Cfg.DatabasePath); err != nil {
		stdlog.Fatalf("Failed to run migrations: %v", err)
	}

	dataStore := store.NewSQLiteStore(db)
	resultCache := cache.New(config.Cfg.CacheExpiration, config.Cfg.CacheCleanupInterval)

	incomeDetector := processors.NewIncomeDetector(processors.IncomeDetectorConfig{
		AmountToleranceRatio: config.Cfg.AmountToleranceRatio,
		SimilarityThreshold:  config.Cfg.SimilarityThreshold,
		MinConfidenceFloor:   config.Cfg.MinConfidenceFloor,
	})

	incomeService := services.NewIncomeService(dataStore, incomeDetector, resultCache, config.Cfg.AutoPersistConfidence)
	goalService := services.NewGoalService(dataStore, config.Cfg.OnTrackTolerance, decimal.NewFromFloat(config.Cfg.SyncEpsilon))

	incomeHandler := handlers.NewIncomeHandler(incomeService)
	goalHandler := handlers.NewGoalHandler(goalService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "FinSight Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(handlers.AuthMiddleware(config.Cfg.JWTSecret))

			r.Post("/income/detect", incomeHandler.HandleDetectIncome)
			r.Post("/income/confirm", incomeHandler.HandleConfirmIncome)
			r.Post("/income/manual", incomeHandler.HandleDeclareManualIncome)
			r.Get("/income/active", incomeHandler.HandleGetActiveIncome)

			r.Get("/goals", goalHandler.HandleListGoals)
			r.Post("/goals", goalHandler.HandleCreateGoal)
			r.Put("/goals/{id}", goalHandler.HandleUpdateGoal)
			r.Delete("/goals/{id}", goalHandler.HandleDeactivateGoal)
			r.Post("/goals/{id}/accounts", goalHandler.HandleLinkAccount)
			r.Get("/goals/{id}/progress", goalHandler.HandleGetGoalProgress)
			r.Get("/goals/progress", goalHandler.HandleGetAllProgress)
			r.Post("/goals/sync", goalHandler.HandleSyncGoals)
			r.Get("/goals/notifications", goalHandler.HandleGetNotifications)
		})
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
