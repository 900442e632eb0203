package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"energy-dispatch/internal/api/handlers"
	"energy-dispatch/internal/api/middleware"
	"energy-dispatch/internal/data"
	"energy-dispatch/internal/logging"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configures NewRouter.
type Options struct {
	Runs      *data.RunCache
	Logger    *zap.Logger
	PresetDir string
	// StaticDir is served for non-API routes when it exists.
	StaticDir string
	// CORSOrigins restricts CORS; empty means CORS_ORIGINS or any origin.
	CORSOrigins []string
}

// NewRouter wires the HTTP API.
func NewRouter(opts Options) *gin.Engine {
	log := logging.Or(opts.Logger)
	runs := opts.Runs
	if runs == nil {
		runs = data.NewRunCache(0)
	}

	router := gin.New()
	if len(opts.CORSOrigins) > 0 {
		router.Use(middleware.CORSWithOrigins(opts.CORSOrigins))
	} else {
		router.Use(middleware.CORS())
	}
	router.Use(middleware.Logger(log))
	router.Use(middleware.ErrorHandler(log))

	runHandler := handlers.NewRunHandler(runs, log)
	presetHandler := handlers.NewPresetHandler(opts.PresetDir, log)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "runs": runs.Len()})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/solve", runHandler.Solve)
		v1.POST("/lp", runHandler.ExportLP)

		v1.GET("/runs/:id", runHandler.GetRun)
		v1.GET("/runs/:id/flows.csv", runHandler.GetFlowsCSV)
		v1.GET("/runs/:id/scalars.csv", runHandler.GetScalarsCSV)
		v1.GET("/runs/:id/ledger/:storage", runHandler.GetLedger)
		v1.GET("/runs/:id/summary", runHandler.GetSummary)

		v1.GET("/solvers", handlers.ListSolvers)
		v1.GET("/presets", presetHandler.ListPresets)
	}

	staticDir := opts.StaticDir
	if info, err := os.Stat(staticDir); staticDir != "" && err == nil && info.IsDir() {
		router.Static("/assets", filepath.Join(staticDir, "assets"))
		router.StaticFile("/favicon.ico", filepath.Join(staticDir, "favicon.ico"))
		index := filepath.Join(staticDir, "index.html")
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				middleware.NotFound(c)
				return
			}
			c.File(index)
		})
		log.Info("serving static files", zap.String("dir", staticDir))
	} else {
		router.NoRoute(middleware.NotFound)
	}

	return router
}
