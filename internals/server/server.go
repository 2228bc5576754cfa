package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hushmetrics/hushmetrics/internals/config"
	"github.com/hushmetrics/hushmetrics/internals/database"
	"github.com/hushmetrics/hushmetrics/internals/ingest"
	"github.com/hushmetrics/hushmetrics/internals/monitoring"
	"github.com/hushmetrics/hushmetrics/internals/store"
)

type Server struct {
	logger *slog.Logger
	cfg    config.Config
}

func NewServer(logger *slog.Logger, cfg config.Config) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Server{logger: logger, cfg: cfg}, nil
}

// Start wires the pipeline and runs the HTTP server. A missing database
// or GeoIP file degrades the service instead of stopping it: beacons
// must keep answering 200 no matter what is broken behind them.
func (s *Server) Start() error {
	s.logger.Info("Starting server", slog.String("port", s.cfg.Port))

	gin.SetMode(s.cfg.GinMode)
	stats := monitoring.GetStats()

	var (
		sites     store.SiteStore
		sessions  store.SessionStore
		pageviews store.PageViewStore
		health    func(context.Context) error
	)
	if err := database.Initialize(s.cfg); err != nil {
		s.logger.Error("database unavailable, running memory-only",
			slog.String("error", err.Error()))
		mem := store.NewMemoryStore()
		sites, sessions, pageviews = mem, mem, mem
	} else {
		defer database.Close()
		pg := store.NewPostgresStore(database.Pool)
		sites, sessions, pageviews = pg, pg, pg
		health = database.Health
	}

	var geo ingest.GeoResolver
	if resolver, err := ingest.NewMaxMindResolver(s.cfg.GeoIPDBPath); err != nil {
		s.logger.Warn("GeoIP database not available, locations will be Unknown",
			slog.String("path", s.cfg.GeoIPDBPath),
			slog.String("error", err.Error()))
		geo = ingest.NullResolver{}
	} else {
		defer resolver.Close()
		geo = resolver
	}

	guard := ingest.NewGuard(ingest.GuardOptions{
		Sites:            sites,
		Logger:           s.logger,
		DefaultThreshold: s.cfg.AttackThreshold,
		AdmissionRate:    s.cfg.AdmissionRate,
		AdmissionBurst:   s.cfg.AdmissionBurst,
		OnActivate:       stats.AttackModeActivated,
	})

	handler := ingest.NewHandler(ingest.HandlerOptions{
		Sites:      sites,
		PageViews:  pageviews,
		Reconciler: ingest.NewReconciler(sessions, s.cfg.SessionWindow),
		Guard:      guard,
		Geo:        geo,
		GeoTimeout: s.cfg.GeoTimeout,
		Logger:     s.logger,
		Stats:      stats,
	})

	r := NewRouter(handler, sites, health)
	return r.Run(":" + s.cfg.Port)
}

// NewRouter builds the gin engine with the collection routes. Split out
// so tests can run the full middleware stack against in-memory stores.
// health is optional; memory-only mode has no backend worth probing.
func NewRouter(handler *ingest.Handler, sites store.SiteStore, health func(context.Context) error) *gin.Engine {
	r := gin.Default()

	// Beacons are cross-origin by nature, allow everything.
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "degraded",
					"database": "down",
					"version":  "1.0.0",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": "1.0.0"})
	})

	r.GET("/collect", handler.Collect)
	r.POST("/collect", handler.Collect)
	r.OPTIONS("/collect", handler.Preflight)

	r.GET("/js/:code", serveSnippet(sites))

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitoring.GetStats().Snapshot())
	})

	return r
}
