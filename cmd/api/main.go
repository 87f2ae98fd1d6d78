package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/parkwise/pcn-service/internal/api/http"
	"github.com/parkwise/pcn-service/internal/api/http/handlers"
	"github.com/parkwise/pcn-service/internal/auth"
	"github.com/parkwise/pcn-service/internal/automation"
	"github.com/parkwise/pcn-service/internal/challenge"
	"github.com/parkwise/pcn-service/internal/config"
	"github.com/parkwise/pcn-service/internal/events"
	"github.com/parkwise/pcn-service/internal/notify"
	"github.com/parkwise/pcn-service/internal/observability"
	"github.com/parkwise/pcn-service/internal/persistence"
	"github.com/parkwise/pcn-service/internal/reminder"
	"github.com/parkwise/pcn-service/internal/repository"
	"github.com/parkwise/pcn-service/internal/service"
	"github.com/parkwise/pcn-service/internal/worker"
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

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	vehicleRepo := repository.NewVehicleRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	correspondenceRepo := repository.NewCorrespondenceRepository(pool)
	priceIncreaseRepo := repository.NewPriceIncreaseRepository(pool)
	challengeJobRepo := repository.NewChallengeJobRepository(pool)
	reminderRepo := repository.NewReminderRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	authService := service.NewAuthService(*cfg, userRepo)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	transport := notify.NewLogTransport(logger)
	runGuard := reminder.NewRedisRunGuard(redis.Client, cfg.Reminder.GuardTTL())
	scheduler := reminder.NewScheduler(reminderRepo, transport, runGuard, dispatcher, logger)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:         ticketRepo,
		VehicleRepo:        vehicleRepo,
		CorrespondenceRepo: correspondenceRepo,
		PriceIncreaseRepo:  priceIncreaseRepo,
		Reminders:          scheduler,
		Dispatcher:         dispatcher,
		Logger:             logger,
	})

	automationClient := automation.NewHTTPClient(cfg.Worker.BaseURL, cfg.Worker.Token, cfg.Worker.Timeout(), logger)
	orchestrator := challenge.NewOrchestrator(challenge.Dependencies{
		TicketRepo:  ticketRepo,
		VehicleRepo: vehicleRepo,
		JobRepo:     challengeJobRepo,
		Worker:      automationClient,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	notificationService := service.NewNotificationService(dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	app := fiber.New(fiber.Config{DisableStartupMessage: cfg.App.Env == "production"})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Challenges:     handlers.NewChallengesHandler(orchestrator),
		Reminders:      handlers.NewRemindersHandler(scheduler, cfg.Reminder.RunToken),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
