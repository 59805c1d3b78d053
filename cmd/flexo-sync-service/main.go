package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safnco/sweeping-backend/config"
	"github.com/safnco/sweeping-backend/flexosync"
	"github.com/safnco/sweeping-backend/models"
	"github.com/safnco/sweeping-backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("FLEXO_SYNC_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	engine := flexosync.NewEngine(flexosync.NewDBStore())

	// API endpoints (Flexo reconciliation)
	r.POST("/api/reconcile", flexosync.TriggerHandler(engine))
	r.GET("/api/reconcile/history", flexosync.HistoryHandler())
	r.GET("/api/reconcile/runs/:id", flexosync.RunDetailHandler())

	// Pub/Sub push endpoint for queued runs.
	r.POST("/pubsub/flexo-reconcile", flexosync.PubSubPushHandler(engine))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := config.ConnectFlexoDatabase(); err != nil {
		logger.WithFields(logrus.Fields{"field": "flexo"}).Warn("flexo db not connected at startup: " + err.Error())
	}

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Scheduled sweeps: reconcile everything still Not Yet Interface on an
	// interval. Disabled when the interval is 0.
	tickerCtx, cancelTicker := context.WithCancel(context.Background())
	defer cancelTicker()
	if minutes := intFromEnv("FLEXO_SYNC_INTERVAL_MINUTES", 0); minutes > 0 {
		go runScheduledSweeps(tickerCtx, engine, logger, time.Duration(minutes)*time.Minute)
	}

	select {
	case <-sigCtx.Done():
		cancelTicker()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func runScheduledSweeps(ctx context.Context, engine *flexosync.Engine, logger *logrus.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	brands := splitAndTrim(os.Getenv("FLEXO_SYNC_BRANDS"))
	if len(brands) == 0 {
		logger.WithFields(logrus.Fields{"field": "scheduler"}).Warn("FLEXO_SYNC_BRANDS is empty; scheduled sweeps will do nothing")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, brand := range brands {
			run, err := models.CreateReconcileRun(ctx, brand, "", models.ReconcileTriggeredSchedule, false)
			if err != nil {
				config.LogError(logger, "flexo-sync-service", "runScheduledSweeps", "Error creating scheduled run", brand, err)
				continue
			}
			if _, err := engine.Reconcile(ctx, run, flexosync.Scope{Brand: brand}, flexosync.Options{
				TriggeredBy: models.ReconcileTriggeredSchedule,
			}); err != nil {
				config.LogError(logger, "flexo-sync-service", "runScheduledSweeps", "Scheduled run failed", brand, err)
			}
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}

func intFromEnv(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}
