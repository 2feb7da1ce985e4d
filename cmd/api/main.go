package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/loomhouse/api/internal/handlers"
	"github.com/loomhouse/api/internal/platform/auth"
	"github.com/loomhouse/api/internal/platform/config"
	pfirestore "github.com/loomhouse/api/internal/platform/firestore"
	"github.com/loomhouse/api/internal/platform/httpx"
	"github.com/loomhouse/api/internal/platform/jobs"
	"github.com/loomhouse/api/internal/platform/metrics"
	"github.com/loomhouse/api/internal/platform/observability"
	"github.com/loomhouse/api/internal/platform/requestctx"
	"github.com/loomhouse/api/internal/platform/secrets"
	"github.com/loomhouse/api/internal/repositories"
	firestoreRepo "github.com/loomhouse/api/internal/repositories/firestore"
	"github.com/loomhouse/api/internal/repositories/memory"
	sheetsRepo "github.com/loomhouse/api/internal/repositories/sheets"
	"github.com/loomhouse/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	level, _, _ := config.Lookup("API_LOG_LEVEL")
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	secretsProject, _, _ := config.Lookup("API_SECRETS_PROJECT_ID")
	if secretsProject == "" {
		secretsProject, _, _ = config.Lookup("API_FIREBASE_PROJECT_ID")
	}
	resolver := secrets.NewResolver(ctx, secretsProject, nil, secrets.WithLogger(logger.Named("secrets")))
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	events := observability.EventLogger(logger)

	var firestoreProvider *pfirestore.Provider
	if cfg.Store.Backend == config.BackendFirestore || cfg.Pricing.Source == config.PricingSourceFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if cfg.Store.Backend != config.BackendFirestore {
			defer func() {
				if err := firestoreProvider.Close(); err != nil {
					logger.Warn("firestore close error", zap.Error(err))
				}
			}()
		}
	}

	var (
		healthChecks []repositories.DependencyCheck
		notifier     services.OrderNotifier
	)
	if cfg.Notifications.Enabled && cfg.PubSub.NotificationsTopic != "" {
		pubsubClient, topic, err := newNotificationTopic(ctx, cfg.PubSub)
		if err != nil {
			logger.Fatal("failed to initialise pubsub", zap.Error(err))
		}
		defer func() {
			topic.Stop()
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubNotificationPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise notification publisher", zap.Error(err))
		}
		notifier, err = services.NewOrderNotifier(services.OrderNotifierDeps{
			Publisher: publisher,
			StoreName: cfg.Notifications.StoreName,
			Currency:  cfg.Notifications.Currency,
			Language:  cfg.Notifications.Language,
		})
		if err != nil {
			logger.Fatal("failed to initialise order notifier", zap.Error(err))
		}
		healthChecks = append(healthChecks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 3 * time.Second,
			Check: func(ctx context.Context) error {
				_, err := topic.Exists(ctx)
				return err
			},
		})
	} else if cfg.Notifications.Enabled {
		notifier = services.NewLogOrderNotifier(observability.EventLogger(logger.Named("notifications")))
	}

	registry, err := newRegistry(ctx, cfg, firestoreProvider, healthChecks)
	if err != nil {
		logger.Fatal("failed to initialise order store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("order store close error", zap.Error(err))
		}
	}()

	pricingSource, err := newPricingSource(cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise pricing source", zap.Error(err))
	}

	metricsRegistry := metrics.NewRegistry()

	pricingService, err := services.NewPricingService(services.PricingServiceDeps{
		Source: pricingSource,
		TTL:    cfg.Pricing.CacheTTL,
		Clock:  time.Now,
		Logger: observability.EventLogger(logger.Named("pricing")),
	})
	if err != nil {
		logger.Fatal("failed to initialise pricing service", zap.Error(err))
	}
	if _, err := pricingService.Config(ctx, false); err != nil {
		logger.Warn("pricing config not loaded at startup", zap.Error(err))
	}

	submissionService, err := services.NewOrderSubmissionService(services.OrderSubmissionServiceDeps{
		Orders:   registry.Orders(),
		Items:    registry.OrderItems(),
		Pricing:  pricingService,
		Notifier: notifier,
		Metrics:  metricsRegistry,
		Clock:    time.Now,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order submission service", zap.Error(err))
	}
	queryService, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders:  registry.Orders(),
		Items:   registry.OrderItems(),
		Metrics: metricsRegistry,
		Logger:  events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order query service", zap.Error(err))
	}
	statusService, err := services.NewOrderStatusService(services.OrderStatusServiceDeps{
		Orders:   registry.Orders(),
		Items:    registry.OrderItems(),
		Notifier: notifier,
		Metrics:  metricsRegistry,
		Clock:    time.Now,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise order status service", zap.Error(err))
	}

	actionHandlers := handlers.NewActionHandlers(handlers.ActionHandlersDeps{
		Pricing:      pricingService,
		Submission:   submissionService,
		Queries:      queryService,
		Status:       statusService,
		EnforceRoles: cfg.Auth.Enabled,
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.InjectLogger(logger.Named("http")),
	}
	if cfg.Auth.Enabled {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, 0)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator := auth.NewAuthenticator(verifier, auth.WithRoleClaim(cfg.Auth.RoleClaim))
		middlewares = append(middlewares, authenticator.Middleware)
	} else {
		logger.Warn("firebase auth disabled; admin actions are open")
	}
	middlewares = append(middlewares,
		observability.RequestLogger,
		metricsRegistry.Middleware(func(_ *http.Request, header http.Header) string {
			return observability.SanitizeAction(header.Get(httpx.ActionHeader))
		}),
		observability.Recoverer,
	)

	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo(startedAt)),
		handlers.WithHealthReporter(registry.Health()),
	)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(health),
		handlers.WithMetricsHandler(metricsRegistry.Handler()),
		handlers.WithActionRoutes(actionHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("starting http server",
			zap.String("backend", cfg.Store.Backend),
			zap.String("pricingSource", cfg.Pricing.Source),
			zap.Bool("auth", cfg.Auth.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRegistry(ctx context.Context, cfg config.Config, provider *pfirestore.Provider, extra []repositories.DependencyCheck) (repositories.Registry, error) {
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		return firestoreRepo.NewRegistry(provider, extra...)
	case config.BackendSheets:
		client, err := sheetsRepo.NewClient(ctx, cfg.Sheets)
		if err != nil {
			return nil, err
		}
		return sheetsRepo.NewRegistry(client, cfg.Sheets.OrdersTab, cfg.Sheets.ItemsTab, extra...)
	case config.BackendMemory:
		return memory.NewRegistry(memory.ShapeRow), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newPricingSource(cfg config.Config, provider *pfirestore.Provider) (repositories.PricingConfigRepository, error) {
	if cfg.Pricing.Source == config.PricingSourceFirestore {
		return firestoreRepo.NewPricingConfigRepository(provider)
	}
	if err := cfg.Pricing.Static.Validate(); err != nil {
		return nil, fmt.Errorf("static pricing: %w", err)
	}
	return memory.StaticPricingConfig{Config: cfg.Pricing.Static}, nil
}

func newNotificationTopic(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Client, *pubsub.Topic, error) {
	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	return client, client.Topic(cfg.NotificationsTopic), nil
}

func buildInfo(startedAt time.Time) handlers.BuildInfo {
	lookup := func(key, fallback string) string {
		if value, ok, _ := config.Lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return fallback
	}
	return handlers.BuildInfo{
		Version:     lookup("API_BUILD_VERSION", "dev"),
		CommitSHA:   lookup("API_BUILD_COMMIT_SHA", "unknown"),
		Environment: lookup("API_ENVIRONMENT", "local"),
		StartedAt:   startedAt,
	}
}
