// main.go
//
// The publishing API server. Wires the relational store, the downstream
// worker pool and the HTTP surface together and runs until signalled.

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/ThomasJones4/publishing-api/internal/config"
	"github.com/ThomasJones4/publishing-api/internal/database"
	"github.com/ThomasJones4/publishing-api/internal/downstream"
	"github.com/ThomasJones4/publishing-api/internal/handlers"
	"github.com/ThomasJones4/publishing-api/internal/middleware"
	"github.com/ThomasJones4/publishing-api/internal/services"
)

// @title Publishing API
// @version 2.0.0
// @description Authoritative versioned content store with downstream synchronization

// @host localhost:3000
// @BasePath /
// @schemes http https

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl := zerolog.New(os.Stderr).With().Timestamp().Str("component", "downstream").Logger()

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	draftStore := selectStore("draft-content-store", cfg.DraftStoreURL, cfg.StoreTimeoutSec)
	liveStore := selectStore("live-content-store", cfg.LiveStoreURL, cfg.StoreTimeoutSec)

	broker, err := selectBroker(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to broker: %v", err)
	}
	defer broker.Close()

	queue := downstream.NewMemoryQueue(cfg.QueueDepth, zl)
	dispatcher := &downstream.Dispatcher{
		DB:            db,
		Queue:         queue,
		DraftStore:    draftStore,
		LiveStore:     liveStore,
		Broker:        broker,
		Reporter:      downstream.LogReporter{Logger: zl},
		FallbackOrder: cfg.DependencyFallbackOrder,
		Logger:        zl,
	}
	queue.Start(cfg.WorkerCount, dispatcher)
	defer queue.Stop()

	service := &services.ContentService{
		DB:                 db,
		Downstream:         dispatcher,
		DraftStore:         draftStore,
		ProtectedLinkTypes: cfg.ProtectedLinkTypes,
		ProtectedApps:      cfg.ProtectedApps,
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("publishing_api")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	contentHandler := &handlers.ContentHandler{Service: service}
	legacyHandler := &handlers.LegacyHandler{Service: service}
	editionsHandler := &handlers.EditionsHandler{DB: db}
	healthHandler := &handlers.HealthHandler{Config: cfg, DB: db}

	app.Get("/healthcheck", healthHandler.Healthcheck)

	v2 := app.Group("/v2")
	v2.Use(middleware.VersionMiddleware())
	v2.Put("/content/:content_id", contentHandler.PutContent)
	v2.Post("/content/:content_id/publish", contentHandler.Publish)
	v2.Post("/content/:content_id/unpublish", contentHandler.Unpublish)
	v2.Patch("/links/:content_id", contentHandler.PatchLinks)
	v2.Get("/editions", editionsHandler.GetEditions)

	app.Put("/content/*", legacyHandler.PutDraftContentWithLinks)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"errors": fiber.Map{"base": "[404] Resource Not Found"},
		})
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	// Start server
	port := cfg.Port
	log.Printf("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}

// selectStore returns an HTTP-backed store when a URL is configured and the
// in-memory store otherwise, so the service runs standalone in development.
func selectStore(name, url string, timeoutSec int) downstream.ContentStore {
	if url == "" {
		return downstream.NewMemoryStore(name)
	}
	return downstream.NewHTTPStore(name, url, time.Duration(timeoutSec)*time.Second)
}

func selectBroker(cfg *config.Config) (downstream.Broker, error) {
	if cfg.AMQPURL == "" {
		return downstream.NewMemoryBroker(), nil
	}
	return downstream.NewAMQPBroker(cfg.AMQPURL, cfg.BrokerExchange)
}
