package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"energy-dispatch/internal/api"
	"energy-dispatch/internal/data"
	"energy-dispatch/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	env := os.Getenv("API_ENV")

	log, err := logging.New(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logging.SetLogger(log)

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ttl := data.DefaultRunTTL
	if v := os.Getenv("RUN_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Fatal("invalid RUN_CACHE_TTL", zap.String("value", v), zap.Error(err))
		}
		ttl = d
	}
	runs := data.NewRunCache(ttl)
	defer runs.Close()

	staticDir := os.Getenv("STATIC_DIR")
	if staticDir == "" {
		staticDir = "./web/dist"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	router := api.NewRouter(api.Options{
		Runs:        runs,
		Logger:      log,
		PresetDir:   os.Getenv("PRESET_DIR"),
		StaticDir:   staticDir,
		CORSOrigins: origins,
	})

	// Start server
	addr := fmt.Sprintf(":%s", port)
	log.Info("starting API server", zap.String("addr", addr), zap.Duration("run_ttl", ttl))
	if err := router.Run(addr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
