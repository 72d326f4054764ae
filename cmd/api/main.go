package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/api/handlers"
	"github.com/gemfinder/backend/internal/api/middleware/ratelimit"
	"github.com/gemfinder/backend/internal/api/middleware/security"
	"github.com/gemfinder/backend/internal/cache"
	"github.com/gemfinder/backend/internal/llm"
	"github.com/gemfinder/backend/internal/metrics"
	"github.com/gemfinder/backend/internal/planner"
	"github.com/gemfinder/backend/internal/popular"
	"github.com/gemfinder/backend/internal/query"
	"github.com/gemfinder/backend/internal/search"
	"github.com/gemfinder/backend/internal/storage/sqlite"
	"github.com/gemfinder/backend/internal/synthesis"
	"github.com/gemfinder/backend/pkg/config"
	"github.com/gemfinder/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.GetLogger()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		log.Fatal("failed to open sqlite", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.InitSchema(ctx); err != nil {
		cancel()
		log.Fatal("failed to initialize schema", zap.Error(err))
	}
	cancel()

	// redis is the fast cache path; the service runs without it
	var redisLayer *cache.RedisLayer
	var redisPinger handlers.Pinger
	redisLayer, err = cache.NewRedisLayer(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("redis unavailable, caching falls back to sqlite only", zap.Error(err))
		redisLayer = nil
	} else {
		defer redisLayer.Close()
		redisPinger = redisLayer
	}

	recorder := metrics.NewRecorder()

	generator := llm.NewClient(
		cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Temperature,
		cfg.LLM.MaxTokens, cfg.LLM.TimeoutSec).
		WithUsageObserver(recorder)

	researchPlanner := planner.New(generator, planner.Config{
		MinQueries: cfg.Pipeline.MinPlanQueries,
		MaxQueries: cfg.Pipeline.MaxPlanQueries,
	})

	google := search.NewGoogleProvider(cfg.Search.GoogleAPIKey, cfg.Search.GoogleEngineID)
	serp := search.NewSerpProvider(cfg.Search.SerpAPIKey, true)
	executor := search.NewExecutor(google, serp, search.ExecutorConfig{
		ResultsPerQuery: cfg.Search.ResultsPerQuery,
		MaxInFlight:     cfg.Search.MaxInFlight,
		QueryTimeout:    time.Duration(cfg.Search.QueryTimeoutSec) * time.Second,
		FailoverAfter:   cfg.Search.FailoverAfter,
	}).WithObserver(recorder)

	synthEngine := synthesis.New(generator, synthesis.Config{
		MaxDocsPerPhase: cfg.Pipeline.MaxDocsPerPhase,
	})

	adapter := cache.NewAdapter(redisLayer, store, cfg.Cache)
	classifier := query.NewDomainClassifier(cfg.Cache.CommunityDomains, cfg.Cache.ReviewDomains)
	tracker := popular.NewTracker(store)

	engine := query.NewEngine(researchPlanner, executor, synthEngine, adapter, classifier, cfg).
		WithPopularity(tracker).
		WithObserver(recorder)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal error"
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
				message = fe.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": message})
		},
	})

	app.Use(recover.New())
	app.Use(security.Headers(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Environment == "development",
	}))
	app.Use(cors.New())
	app.Use(recorder.HTTPMiddleware())
	app.Use(requestLogger(log))

	searchHandler := handlers.NewSearchHandler(engine)
	miscHandler := handlers.NewMiscHandler(tracker, store, redisPinger)
	wsHandler := handlers.NewWebSocketHandler(engine)

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())

	v1 := app.Group("/api/v1")
	v1.Post("/search", limiter.Middleware(), searchHandler.Search)
	v1.Get("/categories", miscHandler.Categories)
	v1.Post("/calculate-value", miscHandler.CalculateValue)
	v1.Get("/popular", miscHandler.PopularSearches)

	app.Get("/health", miscHandler.Health)
	app.Get("/ready", miscHandler.Ready)
	app.Get("/metrics", metrics.Handler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/search", websocket.New(wsHandler.Handle))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}

func requestLogger(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.IP()))
		return err
	}
}
