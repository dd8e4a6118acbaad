package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/microai-dao/truststack/internal/auditor/handler"
	"github.com/microai-dao/truststack/internal/event"
	"github.com/microai-dao/truststack/internal/merkle"
	"github.com/microai-dao/truststack/internal/signer"
	"github.com/microai-dao/truststack/internal/verify"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("auditord exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("auditord")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("auditor.port", 8080)
	viper.SetDefault("auditor.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("database.url", "")
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("trust.signing_key", "")
	viper.SetDefault("anchor.chain", "ethereum-sepolia")
	viper.SetDefault("epi.threshold", verify.DefaultEPIThreshold)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Signing key ──────────────────────────────────────────────────────────
	s, err := signer.New(viper.GetString("trust.signing_key"))
	if err != nil {
		return fmt.Errorf("signing key (set TRUST_SIGNING_KEY): %w", err)
	}

	// ── Event store ──────────────────────────────────────────────────────────
	var store event.Store
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}

		pg := event.NewPostgresStore(db, logger)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		store = pg
		logger.Info("event store: postgres")
	} else {
		store = event.NewMemoryStore()
		logger.Warn("event store: in-memory (set DATABASE_URL for persistence)")
	}

	// ── Daily root cache ─────────────────────────────────────────────────────
	var cache merkle.RootCache
	if addr := viper.GetString("redis.addr"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		cache = merkle.NewRedisRootCache(client)
		logger.Info("root cache: redis", zap.String("addr", addr))
	} else {
		cache = merkle.NewMemoryRootCache()
		logger.Info("root cache: in-memory (set REDIS_ADDR to share roots)")
	}

	// ── Wire up layers ───────────────────────────────────────────────────────
	events := event.NewLogger(s, store, logger)
	anchor := merkle.NewDailyAnchor(viper.GetString("anchor.chain"), cache, logger)
	proofs := verify.NewProofVerifier(s)
	decisions := verify.NewDecisionVerifier(s, viper.GetFloat64("epi.threshold"))

	eventHandler := handler.NewEventHandler(events, anchor, logger)
	verifyHandler := handler.NewVerifyHandler(proofs, decisions, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("auditor.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	eventHandler.Register(v1)
	verifyHandler.Register(v1)

	// ── Serve ────────────────────────────────────────────────────────────────
	port := viper.GetInt("auditor.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("auditord HTTP listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down auditord...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("auditord stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
