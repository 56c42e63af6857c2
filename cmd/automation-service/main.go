package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/config"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/handlers"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/middleware"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/repositories"
	"github.com/Lovjeet1233/kepleroai-automation-service/internal/services"
	"github.com/Lovjeet1233/kepleroai-automation-service/pkg/logger"
	"github.com/Lovjeet1233/kepleroai-automation-service/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer zapLogger.Sync()

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	repos := repositories.New(db, redisClient)
	if err := repos.Migrate(); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	m := metrics.NewRegistry()
	svcs := services.New(repos, redisClient, cfg, m, zapLogger)

	app := newApp(cfg)
	setupRoutes(app, cfg, svcs, repos, m, zapLogger)

	// The listener and scheduler run for the life of the process; the HTTP
	// surface is shut down first so no new work arrives while they stop.
	listenerCtx, stopListener := context.WithCancel(context.Background())
	go func() {
		if err := svcs.Listener.Start(listenerCtx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("Event listener exited", zap.Error(err))
		}
	}()

	if err := svcs.Scheduler.Start(context.Background()); err != nil {
		zapLogger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	zapLogger.Info("Starting automation service", zap.String("addr", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			zapLogger.Error("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Server is shutting down...")

	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	stopListener()
	svcs.Scheduler.Stop()

	zapLogger.Info("Server exited")
}

func newApp(cfg *config.Config) *fiber.App {
	return fiber.New(fiber.Config{
		ServerHeader:          "Keplero-Automation",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           120 * time.Second,
	})
}

func setupRoutes(app *fiber.App, cfg *config.Config, svcs *services.Services, repos *repositories.Repositories, m *metrics.Registry, zapLogger *zap.Logger) {
	h := handlers.New(svcs, repos, zapLogger)
	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, zapLogger)

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Internal-Token",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(fiberlogger.New())
	app.Use(requestMetrics(m))

	app.Get("/health", h.Ping)

	if cfg.Metrics.Enabled {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := app.Group("/api/v1")

	// Service-to-service event ingestion.
	api.Post("/events", auth.RequireInternalToken(cfg.Auth.InternalToken), h.IngestEvent)

	// User-facing automation management.
	automations := api.Group("/automations")
	automations.Use(auth.RequireAuth)
	automations.Post("/", h.CreateAutomation)
	automations.Get("/", h.ListAutomations)
	automations.Get("/:id", h.GetAutomation)
	automations.Put("/:id", h.UpdateAutomation)
	automations.Delete("/:id", h.DeleteAutomation)
	automations.Post("/:id/execute", h.ExecuteAutomation)
	automations.Get("/:id/executions", h.ListExecutions)

	executions := api.Group("/executions")
	executions.Use(auth.RequireAuth)
	executions.Get("/:id", h.GetExecution)
}

func requestMetrics(m *metrics.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		endpoint := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), endpoint, strconv.Itoa(c.Response().StatusCode())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), endpoint).Observe(time.Since(start).Seconds())

		return err
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
