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

	"github.com/jhoicas/Facturacion-api/internal/application/auth"
	"github.com/jhoicas/Facturacion-api/internal/application/billing"
	"github.com/jhoicas/Facturacion-api/internal/application/worker"
	"github.com/jhoicas/Facturacion-api/internal/infrastructure/audit"
	infrapdf "github.com/jhoicas/Facturacion-api/internal/infrastructure/pdf"
	"github.com/jhoicas/Facturacion-api/internal/infrastructure/postgres"
	infrasunat "github.com/jhoicas/Facturacion-api/internal/infrastructure/sunat"
	httpRouter "github.com/jhoicas/Facturacion-api/internal/interfaces/http"
	"github.com/jhoicas/Facturacion-api/pkg/config"
	"github.com/jhoicas/Facturacion-api/pkg/logger"
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
		Str("sunat_env", cfg.SUNAT.Env).
		Msg("iniciando aplicación")

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(rootCtx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	establishmentRepo := postgres.NewEstablishmentRepository(pool)
	documentRepo := postgres.NewDocumentRepository(pool)
	cancellationRepo := postgres.NewCancellationRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// Cliente SUNAT: en entorno dev simula aceptación sin red.
	submitter, err := infrasunat.NewSubmitter(cfg.SUNAT, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cliente SUNAT")
	}

	publisher := audit.NewLogPublisher(log)
	defer publisher.Close()

	// Procesador + pool de envíos asíncronos con carriles por secuencia.
	processor := billing.NewSubmitProcessor(documentRepo, cancellationRepo, companyRepo, submitter, publisher, log)
	workerPool := worker.NewPool(worker.Config{
		Lanes:       cfg.Worker.Lanes,
		QueueDepth:  cfg.Worker.QueueDepth,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
		BackoffMax:  cfg.Worker.BackoffMax,
	}, processor, log)

	dispatcher := billing.NewDispatcher(
		establishmentRepo, companyRepo, documentRepo, cancellationRepo,
		submitter, workerPool, publisher, cfg.Worker.SyncTimeout, log,
	)

	createDocumentUC := billing.NewCreateDocumentUseCase(
		txRunner, companyRepo, establishmentRepo, documentRepo, dispatcher, log,
	)
	cancellationUC := billing.NewCancellationUseCase(
		txRunner, documentRepo, cancellationRepo, dispatcher, publisher, log,
	)
	pdfUC := billing.NewPDFUseCase(documentRepo, companyRepo, infrapdf.NewMarotoPDFGenerator())
	authUC := auth.NewAuthUseCase(userRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	// Consumidores del pool.
	go func() {
		if err := workerPool.Run(rootCtx); err != nil && rootCtx.Err() == nil {
			log.Error().Err(err).Msg("worker pool finalizado")
		}
	}()

	// Rescan periódico: reencola pendientes varados (reinicios, tareas perdidas).
	go func() {
		ticker := time.NewTicker(cfg.Worker.RescanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				olderThan := time.Now().Add(-cfg.Worker.RescanInterval)
				if err := processor.RescanPending(rootCtx, workerPool, olderThan, 500); err != nil {
					log.Error().Err(err).Msg("rescan de pendientes")
				}
			}
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:            authUC,
		CreateDocument:    createDocumentUC,
		CancellationUC:    cancellationUC,
		PDFUC:             pdfUC,
		CompanyRepo:       companyRepo,
		EstablishmentRepo: establishmentRepo,
		JWTSecret:         cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
