package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"visitorkiosk/internal/attendclient"
	"visitorkiosk/internal/config"
	"visitorkiosk/internal/handler"
	"visitorkiosk/internal/httpmiddleware"
	"visitorkiosk/internal/kiosk"
	"visitorkiosk/internal/logging"
	"visitorkiosk/internal/metrics"
	"visitorkiosk/internal/outbox"
	"visitorkiosk/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.App, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var (
		redisClient *store.Redis
		box         outbox.Outbox
	)
	if cfg.OutboxBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		box = outbox.NewRedis(redisClient.Client, "kiosk:outbox", cfg.OutboxTTL, 64)
	} else {
		box = outbox.NewInMemory(64)
	}

	sessions := kiosk.NewRegistry(kiosk.Config{
		Client:          attendclient.New(cfg.AttendanceServiceURL, cfg.UpstreamTimeout),
		DocumentBaseURL: cfg.DocumentBaseURL,
		PadWidth:        cfg.SignatureWidth,
		PadHeight:       cfg.SignatureHeight,
		MaxSessions:     cfg.MaxSessions,
		Metrics:         m,
		Logger:          logger,
	}, cfg.SessionTTL, func(id string) {
		if err := box.Discard(context.Background(), id); err != nil {
			logger.Warn("discard session events", "session", id, "error", err)
		}
	})

	h := handler.New(sessions, box, handler.Options{
		SigningKey: cfg.SessionSigningKey,
		Issuer:     cfg.SessionIssuer,
		TokenTTL:   cfg.SessionTTL,
		Logger:     logger,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.Gin(logger, "/healthz", "/metrics"))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	r.GET("/healthz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "outbox": cfg.OutboxBackend, "sessions": sessions.Len()}
		status := http.StatusOK
		if redisClient != nil {
			healthy := redisClient.Healthy(c.Request.Context())
			body["redis"] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	})

	h.Register(r)

	r.StaticFile("/", filepath.Join(cfg.WebDir, "index.html"))
	r.Static("/static", filepath.Join(cfg.WebDir, "static"))

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.UpstreamTimeout > 0 {
		srv.WriteTimeout += cfg.UpstreamTimeout
	} else {
		srv.WriteTimeout = 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", srv.Addr, "attendance_service", cfg.AttendanceServiceURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx, time.Minute)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		// Give outstanding requests 10 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server forced shutdown", "error", err)
		}
		return nil
	})

	err := g.Wait()
	logger.Info("server exited")
	return err
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
