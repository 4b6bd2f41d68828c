package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/marketplace-service/internal/api/http"
	"github.com/spec-kit/marketplace-service/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/config"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/identity"
	"github.com/spec-kit/marketplace-service/internal/observability"
	"github.com/spec-kit/marketplace-service/internal/persistence"
	"github.com/spec-kit/marketplace-service/internal/policy"
	"github.com/spec-kit/marketplace-service/internal/realtime"
	"github.com/spec-kit/marketplace-service/internal/repository"
	"github.com/spec-kit/marketplace-service/internal/service"
	"github.com/spec-kit/marketplace-service/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	pol, err := loadPolicy(cfg.Policy)
	if err != nil {
		logger.Fatal("failed to load authorization policy", zap.Error(err))
	}

	db := repository.NewDB(pg.PoolHandle(), cfg.Postgres.OperationTimeout(), logger)
	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	chatRepo := repository.NewChatRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	gateway := newGateway(cfg, db, logger)
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	registry := realtime.NewRegistry(cfg.Chat.SendBuffer, metrics, logger)
	var broadcaster service.Broadcaster = registry
	var redisPinger handlers.Pinger
	if cfg.Chat.RedisFanout {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("chat fan-out starts without redis, delivery stays local until it recovers", zap.Error(err))
		}
		defer redis.Close()
		bridge := realtime.NewRedisBridge(redis.Client, registry, logger)
		broadcaster = bridge
		redisPinger = redis
		worker.StartChatBridge(ctx, bridge, logger)
	}

	userService := service.NewUserService(service.UserDependencies{
		UserRepo:   userRepo,
		Gateway:    gateway,
		Policy:     pol,
		Dispatcher: dispatcher,
		Root:       cfg.Bootstrap,
		Logger:     logger,
	})
	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo: userRepo,
		Gateway:  gateway,
		Logger:   logger,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo: requestRepo,
		UserRepo:    userRepo,
		Policy:      pol,
		Dispatcher:  dispatcher,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Policy:     pol,
		Dispatcher: dispatcher,
	})
	chatService := service.NewChatService(service.ChatDependencies{
		ChatRepo:    chatRepo,
		UserRepo:    userRepo,
		Requests:    requestService,
		Broadcaster: broadcaster,
		Policy:      pol,
		Dispatcher:  dispatcher,
		Logger:      logger,
		PageLen:     cfg.Chat.DefaultPageLen,
		MaxPageLen:  cfg.Chat.MaxPageLen,
	})
	auditService := service.NewAuditService(dispatcher, auditRepo, pol, logger)
	worker.StartAuditWorker(auditService)

	root, err := userService.BootstrapRootUser(ctx)
	if err != nil {
		logger.Fatal("failed to bootstrap root user", zap.Error(err))
	}
	logger.Info("root user ready", zap.String("user_id", root.ID))

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redisPinger,
		}),
		Auth:           handlers.NewAuthHandler(userService, authService),
		Users:          handlers.NewUsersHandler(userService),
		Requests:       handlers.NewRequestsHandler(requestService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Chats:          handlers.NewChatHandler(chatService, registry, logger, cfg.Chat.PingInterval()),
		Audit:          handlers.NewAuditHandler(auditService),
		AuthMiddleware: auth.NewAuthMiddleware(authService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)
	cancel()

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func loadPolicy(cfg config.PolicyConfig) (*policy.Policy, error) {
	if cfg.File != "" {
		return policy.Load(cfg.File)
	}
	return policy.Default()
}

func newGateway(cfg *config.Config, db *repository.DB, logger *zap.Logger) identity.Gateway {
	if cfg.Identity.Provider == "keycloak" {
		return identity.NewKeycloakGateway(cfg.Identity, logger)
	}
	logger.Warn("using local identity provider")
	return identity.NewLocalGateway(cfg.Auth, repository.NewLocalIdentityRepository(db))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
