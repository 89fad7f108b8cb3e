package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/resolvemeq/agent-service/internal/agent"
	"github.com/resolvemeq/agent-service/internal/analysis"
	httptransport "github.com/resolvemeq/agent-service/internal/api/http"
	"github.com/resolvemeq/agent-service/internal/api/http/handlers"
	"github.com/resolvemeq/agent-service/internal/auth"
	"github.com/resolvemeq/agent-service/internal/config"
	"github.com/resolvemeq/agent-service/internal/events"
	"github.com/resolvemeq/agent-service/internal/locking"
	"github.com/resolvemeq/agent-service/internal/notify"
	"github.com/resolvemeq/agent-service/internal/observability"
	"github.com/resolvemeq/agent-service/internal/persistence"
	"github.com/resolvemeq/agent-service/internal/repository"
	"github.com/resolvemeq/agent-service/internal/scheduler"
	"github.com/resolvemeq/agent-service/internal/service"
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
	ticketStore := repository.NewTicketStore(pool)
	interactionRepo := repository.NewInteractionRepository(pool)
	articleRepo := repository.NewArticleRepository(pool)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	locker := locking.NewRedisLocker(rdb.Client)
	followUps := scheduler.New(rdb.Client, cfg.Agent.PollInterval(), metrics, logger)
	analyzer := analysis.NewHTTPClient(cfg.Analysis, logger)

	executor := agent.NewExecutor(ticketStore, followUps, dispatcher, metrics, logger, cfg.Agent)
	engine := agent.NewEngine(cfg.Agent, agent.EngineDependencies{
		Store:        ticketStore,
		Interactions: interactionRepo,
		Analyzer:     analyzer,
		Executor:     executor,
		Scheduler:    followUps,
		Locker:       locker,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})
	followUps.SetHandler(engine.HandleFollowUp)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Store:        ticketStore,
		Interactions: interactionRepo,
		Engine:       engine,
		Scheduler:    followUps,
		Dispatcher:   dispatcher,
		Logger:       logger,
	})
	notifier := notify.FromConfig(cfg.Notify, logger)
	service.NewNotificationService(dispatcher, notifier, cfg.Notify, logger)
	kbService := service.NewKBService(dispatcher, articleRepo, logger)

	go func() {
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("engine stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := followUps.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("follow-up scheduler stopped", zap.Error(err))
		}
	}()

	authMiddleware := auth.NewMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret), cfg.Auth.BotAPIKeyHash)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, rdb, followUps),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService),
		KB:             handlers.NewKBHandler(kbService),
		AuthMiddleware: authMiddleware,
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
