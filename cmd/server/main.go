package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"lta/internal/analysis"
	"lta/internal/api"
	"lta/internal/cache"
	"lta/internal/config"
	"lta/internal/jaccard"
	"lta/internal/logging"
	"lta/internal/state"
	"lta/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
)

func main() {
	defaults := config.Default()
	if err := defaults.LoadFile(config.DefaultFile, false); err != nil {
		log.Fatalf("Failed to read %s: %v", config.DefaultFile, err)
	}
	if err := defaults.Validate(); err != nil {
		log.Fatal(err)
	}
	if _, err := logging.Setup(1+defaults.Verbose, defaults.Logfiles); err != nil {
		log.Fatal(err)
	}

	// Bootstrap cache, in memory unless LTA_CACHE_DIR is set
	var est jaccard.Estimator = jaccard.Default
	if dir := os.Getenv("LTA_CACHE_DIR"); dir != "" || defaults.CacheDir != "" {
		if dir == "" {
			dir = defaults.CacheDir
		}
		c, err := cache.Open(dir, jaccard.Default)
		if err != nil {
			log.Fatalf("Failed to open cache: %v", err)
		}
		defer c.Close()
		est = c
	}

	// Optional result store
	var rs store.ResultStore
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = defaults.DatabaseURL
	}
	if dbURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		db, err := store.Connect(ctx, store.DataSourceConfig{URL: dbURL})
		if err == nil {
			err = db.Migrate(ctx)
		}
		cancel()
		if err != nil {
			log.WithFields(log.Fields{"error": err}).Warn("database unavailable, runs will not be persisted")
		} else {
			defer db.Close()
			rs = db
		}
	}

	handler := api.NewHandler(analysis.NewCSVService(defaults.Levels), state.State, defaults, est, rs)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS - Allow frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001", "http://localhost:3002", "http://127.0.0.1:3000"},

		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Lipid trafficking analysis backend is running"))
	})

	handler.RegisterRoutes(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}

	log.WithFields(log.Fields{
		"port":      port,
		"threshold": defaults.Threshold,
		"boot_reps": defaults.BootReps,
		"persist":   rs != nil,
	}).Info("starting server")

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
