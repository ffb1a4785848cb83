package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-cms/internal/adapter/cache"
	"github.com/seu-repo/sigec-cms/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/sigec-cms/internal/adapter/http/fiber/middleware"
	v16 "github.com/seu-repo/sigec-cms/internal/adapter/ocpp/v16"
	"github.com/seu-repo/sigec-cms/internal/adapter/queue"
	"github.com/seu-repo/sigec-cms/internal/adapter/storage/memory"
	"github.com/seu-repo/sigec-cms/internal/adapter/storage/postgres"
	"github.com/seu-repo/sigec-cms/internal/adapter/vault"
	wsAdapter "github.com/seu-repo/sigec-cms/internal/adapter/websocket"
	"github.com/seu-repo/sigec-cms/internal/observability/telemetry"
	"github.com/seu-repo/sigec-cms/internal/ports"
	"github.com/seu-repo/sigec-cms/internal/service/session"
	"github.com/seu-repo/sigec-cms/pkg/config"
)

const (
	serviceName    = "sigec-cms"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting SIGEC-CMS",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Resolve secrets from Vault when enabled
	if cfg.Vault.Enabled {
		sm, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to initialize Vault client", zap.Error(err))
		}
		if url, err := sm.GetDatabaseURL(); err == nil && url != "" {
			cfg.Database.URL = url
		} else if err != nil {
			logger.Warn("Vault database secret unavailable", zap.Error(err))
		}
		if secret, err := sm.GetJWTSecret(); err == nil && secret != "" {
			cfg.JWT.Secret = secret
		} else if err != nil {
			logger.Warn("Vault JWT secret unavailable", zap.Error(err))
		}
	}

	// 4. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.OpenTelemetry.Jaeger.Endpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 5. Initialize the Transaction Store (PostgreSQL, or in-memory when no
	// DATABASE_URL is configured)
	var store ports.TransactionStore
	var dbReady func() error
	if cfg.Database.URL != "" {
		db, err := postgres.NewConnection(cfg.Database.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			logger.Fatal("Failed to get underlying SQL DB", zap.Error(err))
		}
		defer sqlDB.Close()

		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(db); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}

		store = postgres.NewTransactionStore(db, logger)
		dbReady = sqlDB.Ping
	} else {
		logger.Warn("No database configured, using in-memory transaction store")
		store = memory.NewTransactionStore(logger)
		dbReady = func() error { return nil }
	}

	// 6. Initialize Cache (Redis, local fallback)
	var appCache ports.Cache
	if cfg.Redis.URL != "" {
		appCache, err = cache.NewRedisCache(cfg.Redis.URL, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
	} else {
		appCache = cache.NewLocalCache(cfg.Cache.CleanupInterval, logger)
	}
	defer appCache.Close()

	// 7. Initialize Message Queue
	var messageQueue queue.MessageQueue
	switch cfg.Queue.Provider {
	case "rabbitmq":
		messageQueue, err = queue.NewRabbitMQQueue(cfg.Queue.RabbitMQ.URL, logger)
	default:
		messageQueue, err = queue.NewNATSQueue(cfg.Queue.NATS.URL, logger)
	}
	if err != nil {
		logger.Fatal("Failed to connect to message queue",
			zap.String("provider", cfg.Queue.Provider),
			zap.Error(err),
		)
	}
	defer messageQueue.Close()

	// 8. Initialize the Lifecycle Engine. The allocator continues above the
	// store's highest persisted id, so restarts never re-issue an id.
	registry := memory.NewConnectorRegistry(cfg.Engine.Connectors...)
	allocator, err := session.NewIDAllocatorForStore(context.Background(), store, cfg.Engine.TransactionIDBase)
	if err != nil {
		logger.Fatal("Failed to seed transaction id allocator", zap.Error(err))
	}
	sessionService := session.NewService(store, registry, allocator, messageQueue, logger)

	// 9. Initialize OCPP 1.6 Server
	ocppServer := v16.NewServer(sessionService, appCache, messageQueue, logger)
	go func() {
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP Server failed", zap.Error(err))
		}
	}()

	// 10. Initialize WebSocket Hub (for real-time updates)
	wsHub := wsAdapter.NewHub()
	go wsHub.Run()
	startEventRelay(messageQueue, wsHub, logger)
	startAuditLog(messageQueue, logger)

	// 11. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS))
	} else {
		app.Use(middleware.DefaultCORS())
	}
	if cfg.RateLimiting.Enabled {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimiting.MaxRequests,
			Expiration: cfg.RateLimiting.Window,
		}))
	}
	if cfg.CircuitBreaker.Enabled {
		app.Use(middleware.CircuitBreaker(cfg.CircuitBreaker, logger))
	}

	// Health Check Endpoints
	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := dbReady(); err != nil {
			return c.Status(503).SendString("Database not ready")
		}
		if err := appCache.Ping(); err != nil {
			return c.Status(503).SendString("Cache not ready")
		}
		return c.SendString("Ready")
	})

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	// API v1 Routes
	v1 := app.Group("/api/v1")
	protected := v1.Group("", middleware.AuthRequired(cfg.JWT.Secret))

	sessionHandler := handlers.NewSessionHandler(sessionService, logger)
	protected.Post("/sessions/start", sessionHandler.Start)
	protected.Post("/sessions/stop", sessionHandler.Stop)
	protected.Get("/sessions", sessionHandler.List)
	protected.Get("/sessions/:id", sessionHandler.Get)
	protected.Get("/connectors", sessionHandler.Connectors)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Real-time updates WebSocket
	app.Get("/ws/updates", websocket.New(func(c *websocket.Conn) {
		wsHub.AddClient(c)
	}))

	// 12. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	// 13. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	ocppServer.Stop()

	logger.Info("Server exited gracefully")
}

// startEventRelay forwards lifecycle events from the message queue to the
// realtime hub, so dashboards see starts, stops and connector status changes
// as they happen.
func startEventRelay(mq queue.MessageQueue, hub *wsAdapter.Hub, logger *zap.Logger) {
	subjects := []string{
		queue.SubjectTransactionStarted,
		queue.SubjectTransactionCompleted,
		queue.SubjectConnectorStatus,
	}
	for _, subject := range subjects {
		subject := subject
		if err := mq.Subscribe(subject, func(data []byte) error {
			envelope := fmt.Sprintf(`{"subject":%q,"event":%s}`, subject, data)
			hub.Broadcast([]byte(envelope))
			return nil
		}); err != nil {
			logger.Error("Failed to subscribe for realtime relay",
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}
}

// startAuditLog records every completed session in the structured log, so
// the history survives even when no downstream consumer is attached.
func startAuditLog(mq queue.MessageQueue, logger *zap.Logger) {
	if err := mq.Subscribe(queue.SubjectTransactionCompleted, func(data []byte) error {
		var event queue.TransactionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return err
		}
		logger.Info("Session completed",
			zap.Int64("transaction_id", event.TransactionID),
			zap.Int("connector_id", event.ConnectorID),
			zap.String("id_tag", event.IdTag),
			zap.Int64("energy_wh", event.EnergyWh),
		)
		return nil
	}); err != nil {
		logger.Error("Failed to subscribe for audit log", zap.Error(err))
	}
}
