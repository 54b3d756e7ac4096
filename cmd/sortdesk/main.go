package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/sortdesk/client/internal/api/handlers"
	"github.com/sortdesk/client/internal/backend"
	"github.com/sortdesk/client/internal/cache/redis"
	"github.com/sortdesk/client/internal/feed"
	"github.com/sortdesk/client/internal/metrics"
	"github.com/sortdesk/client/internal/middleware/ratelimit"
	"github.com/sortdesk/client/internal/middleware/security"
	"github.com/sortdesk/client/internal/middleware/validation"
	"github.com/sortdesk/client/internal/session"
	"github.com/sortdesk/client/internal/storage/sqlite"
	"github.com/sortdesk/client/pkg/config"
	appLogger "github.com/sortdesk/client/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting sortdesk review client", zap.String("backend", cfg.Backend.BaseURL))

	metrics.Init()

	backendTimeout := time.Duration(cfg.Backend.TimeoutSec) * time.Second
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.ResponseHeaderTimeout = backendTimeout

	client, err := backend.NewClient(
		cfg.Backend.BaseURL,
		backendTimeout,
		cfg.Backend.SuggestionLimit,
		backend.WithHTTPClient(&http.Client{Timeout: backendTimeout, Transport: transport}),
	)
	if err != nil {
		appLogger.Fatal("Failed to create backend client", zap.Error(err))
	}

	opts := session.Options{
		FeedPath:       cfg.Feed.Path,
		ReconnectDelay: cfg.Feed.ReconnectDelay,
	}

	var history handlers.DecisionLog
	if cfg.SQLite.Path != "" {
		sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		defer sqliteClient.Close()

		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		opts.Journal = sqliteClient
		history = sqliteClient
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.ConfigTTL)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, config cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			opts.Cache = redisClient
		}
	}

	sess, err := session.New(client, opts)
	if err != nil {
		appLogger.Fatal("Failed to create session", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess.Start(ctx)

	feedURL, _ := feed.URLFromOrigin(client.BaseURL(), cfg.Feed.Path)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.Named("ratelimit"),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		ConnectSources: []string{client.BaseURL(), feedURL},
		IsDevelopment:  cfg.Server.Host == "127.0.0.1" || cfg.Server.Host == "localhost",
	}))

	suggestionsHandler := handlers.NewSuggestionsHandler(sess)
	trainingHandler := handlers.NewTrainingHandler(sess.Training)
	streamHandler := handlers.NewStreamHandler(sess)

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", streamHandler.Upgrade)
	app.Get("/ws", websocket.New(streamHandler.HandleConnection))

	api := app.Group("/api/v1", limiter.Middleware(), validation.Middleware(validation.Config{
		Logger: appLogger.Named("validation"),
	}))

	api.Get("/suggestions", suggestionsHandler.List)
	api.Get("/suggestions/html", suggestionsHandler.HTML)
	api.Post("/suggestions/apply", suggestionsHandler.Apply)

	api.Get("/config", suggestionsHandler.Config)
	api.Get("/notices", suggestionsHandler.Notices)

	api.Get("/training", trainingHandler.List)
	api.Post("/training/samples", trainingHandler.AddSample)
	api.Post("/training/submit", trainingHandler.Submit)

	if history != nil {
		api.Get("/decisions", handlers.NewHistoryHandler(history).Decisions)
	}

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "healthy",
			"feed_state": sess.Feed.State().String(),
			"time":       time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if !sess.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "loading",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	sess.Wait()
	appLogger.Info("Server stopped")
}
