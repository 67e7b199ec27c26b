package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ticketforge/ticket-bot/internal/api/gateway"
	httptransport "github.com/ticketforge/ticket-bot/internal/api/http"
	"github.com/ticketforge/ticket-bot/internal/api/http/handlers"
	"github.com/ticketforge/ticket-bot/internal/config"
	"github.com/ticketforge/ticket-bot/internal/events"
	"github.com/ticketforge/ticket-bot/internal/observability"
	"github.com/ticketforge/ticket-bot/internal/persistence"
	"github.com/ticketforge/ticket-bot/internal/platform"
	"github.com/ticketforge/ticket-bot/internal/repository"
	"github.com/ticketforge/ticket-bot/internal/service"
	"github.com/ticketforge/ticket-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	rdb := persistence.NewRedis(cfg.Redis, logger)
	defer rdb.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	panelRepo := repository.NewPanelRepository(pool)
	caseRepo := repository.NewCaseRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	deletionRepo := repository.NewDeletionRepository(pool)
	settingsRepo := repository.NewCachedSettings(repository.NewSettingsRepository(pool), rdb.Client, logger)

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		logger.Fatal("failed to build discord session", zap.Error(err))
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMembers

	client, err := platform.NewDiscord(session, platform.JSONEmbedFormatter{})
	if err != nil {
		logger.Fatal("failed to build platform client", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	readiness := observability.NewReadiness("gateway")
	dispatcher := events.NewInMemoryDispatcher(logger)

	transcripts := service.NewTranscriptArchiver(ticketRepo, settingsRepo, client, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   ticketRepo,
		PanelRepo:    panelRepo,
		SettingsRepo: settingsRepo,
		CatalogRepo:  catalogRepo,
		DeletionRepo: deletionRepo,
		Client:       client,
		Transcripts:  transcripts,
		Dispatcher:   dispatcher,
		Defaults:     cfg.Defaults,
		Logger:       logger,
	})
	caseService := service.NewCaseService(service.CaseDependencies{
		CaseRepo:   caseRepo,
		TicketRepo: ticketRepo,
		PanelRepo:  panelRepo,
		Client:     client,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	panelService := service.NewPanelService(panelRepo, client, dispatcher, logger)
	service.NewNotificationService(dispatcher, settingsRepo, client, logger).RegisterHandlers()

	interactions := gateway.NewInteractionHandler(ticketService, caseService, logger)
	interactions.Register(session)
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		readiness.MarkReady("gateway")
		logger.Info("gateway ready")
	})

	if err := session.Open(); err != nil {
		logger.Fatal("failed to open gateway connection", zap.Error(err))
	}
	defer session.Close()

	if err := gateway.RegisterCommands(session, ""); err != nil {
		logger.Error("command registration failed", zap.Error(err))
	}

	cleanup := worker.NewCleanupWorker(deletionRepo, ticketRepo, client, rdb.Client, cfg.Cleanup, metrics, logger)
	go cleanup.Run(ctx)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb, readiness),
		Panels:  handlers.NewPanelsHandler(panelService),
		Metrics: metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
