package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/Facturacion-sync/internal/application/syncing"
	"github.com/jhoicas/Facturacion-sync/internal/infrastructure/postgres"
	"github.com/jhoicas/Facturacion-sync/internal/infrastructure/registry"
	httpRouter "github.com/jhoicas/Facturacion-sync/internal/interfaces/http"
	"github.com/jhoicas/Facturacion-sync/pkg/config"
	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	if err := postgres.RunMigrations(cfg.DB.Migrations, cfg.DB.ConnectionString()); err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	documentRepo := postgres.NewDocumentRepository(pool)

	// Cliente del registro: token por client-credentials + HTTP acotado.
	tokens := registry.NewClientCredentialsProvider(
		cfg.Registry.TokenURL, cfg.Registry.ClientID, cfg.Registry.ClientSecret, cfg.Registry.Scopes,
	)
	registryClient := registry.NewClient(cfg.Registry.BaseURL, tokens, cfg.Registry.Timeout)

	// Motor de sincronización: cache → controlador → escritor → poller.
	cache := syncing.NewTypedCache(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.SweepIntervalMins)*time.Minute, log)
	cache.Start()
	defer cache.Stop()

	controllerCfg := syncing.ControllerConfig{
		PageSize:             cfg.Sync.PageSize,
		MaxPages:             cfg.Sync.MaxPages,
		MaxRetries:           cfg.Sync.MaxRetries,
		MaxConsecutiveErrors: cfg.Sync.MaxConsecutiveErrors,
		StaleRunThreshold:    cfg.Sync.StaleRunThreshold,
		StalePageMin:         cfg.Sync.StalePageMin,
		FallbackLimit:        cfg.Sync.FallbackLimit,
		BasePageDelay:        500 * time.Millisecond,
		SlowPageDelay:        2 * time.Second,
		LowRemainingMark:     10,
	}
	controller := syncing.NewController(
		registryClient, tokens, documentRepo, syncing.NewBackoffPolicy(), controllerCfg, log,
	)

	writer := syncing.NewBatchWriter(documentRepo, syncing.NewWriteBackoffPolicy(), syncing.WriterConfig{
		BatchSize:  cfg.Sync.BatchSize,
		ChunkSize:  cfg.Sync.ChunkSize,
		MaxRetries: cfg.Sync.WriteRetries,
	}, log)

	poller := syncing.NewPoller(registryClient, writer, syncing.PollerConfig{
		PollInterval:       time.Duration(cfg.Sync.PollIntervalSeconds) * time.Second,
		BetweenSubmissions: time.Second,
		InteractiveBound:   cfg.Sync.PollInteractiveBound,
		BackgroundBound:    cfg.Sync.PollBackgroundBound,
	}, log)

	engine := syncing.NewEngine(cache, controller, writer, poller, registryClient, documentRepo, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 120, // una corrida de sync puede tardar
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(httpRouter.RequestIDMiddleware())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación Sync API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Engine:    engine,
		Store:     documentRepo,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
