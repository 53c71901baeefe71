package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dejobratic/orderflow/internal/config"
	"github.com/dejobratic/orderflow/internal/database"
	"github.com/dejobratic/orderflow/internal/orders/adapters"
	httpadapter "github.com/dejobratic/orderflow/internal/orders/adapters/http"
	orderspostgres "github.com/dejobratic/orderflow/internal/orders/adapters/postgres"
	"github.com/dejobratic/orderflow/internal/orders/adapters/remote"
	ordersapp "github.com/dejobratic/orderflow/internal/orders/app"
	ordersmetrics "github.com/dejobratic/orderflow/internal/orders/metrics"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/dejobratic/orderflow/internal/orders/sweeper"
	"github.com/dejobratic/orderflow/internal/payments/gateway"
	"github.com/dejobratic/orderflow/internal/payments/oauth"
	"github.com/dejobratic/orderflow/internal/payments/vault"
	vaultpostgres "github.com/dejobratic/orderflow/internal/payments/vault/postgres"
	"github.com/dejobratic/orderflow/internal/payments/webhook"
	"github.com/dejobratic/orderflow/internal/rabbitmq"
	"github.com/dejobratic/orderflow/internal/telemetry"
	eventspostgres "github.com/dejobratic/orderflow/internal/webhookevents/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := telemetry.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger(level).With("service", cfg.Service.Name)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter(cfg.Service.Name)
	ordersMetrics, err := ordersmetrics.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create orders metrics: %w", err)
	}
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create database metrics: %w", err)
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create http metrics: %w", err)
	}
	gatewayMetrics, err := gateway.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create gateway metrics: %w", err)
	}
	publishMetrics, err := rabbitmq.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create publish metrics: %w", err)
	}
	webhookMetrics, err := webhook.NewMetrics(meter)
	if err != nil {
		return fmt.Errorf("create webhook metrics: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("create database pool: %w", err)
	}
	defer pool.Close()
	if err := dbMetrics.ObservePool(pool); err != nil {
		return fmt.Errorf("observe database pool: %w", err)
	}

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations", "path", cfg.Database.MigrationsPath)
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("migrations completed successfully")
	}

	repo := adapters.NewObservableRepository(orderspostgres.NewRepository(pool), dbMetrics)

	cipher, err := vault.NewCipher(cfg.Payments.VaultSecret)
	if err != nil {
		return fmt.Errorf("create credential cipher: %w", err)
	}
	gatewayCfg := gateway.Config{
		BaseURL:           cfg.Payments.BaseURL,
		AuthURL:           cfg.Payments.AuthURL,
		ClientID:          cfg.Payments.ClientID,
		ClientSecret:      cfg.Payments.ClientSecret,
		RedirectURI:       cfg.Payments.RedirectURI,
		NotificationURL:   cfg.Payments.NotificationURL,
		BackURL:           cfg.Payments.BackURL,
		Currency:          cfg.Payments.Currency,
		Timeout:           cfg.Payments.Timeout,
		RequestsPerSecond: cfg.Payments.RequestsPerSecond,
		Burst:             cfg.Payments.Burst,
	}
	oauthClient := gateway.NewOAuthClient(gatewayCfg, nil, gatewayMetrics, logger)
	credentials := vault.New(vaultpostgres.NewStore(pool), cipher, logger, vault.WithRefresher(oauthClient))
	paymentClient := gateway.NewClient(gatewayCfg, credentials, nil, gatewayMetrics, logger)

	notifier, closeNotifier, err := newNotifier(cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var (
		accounts ports.AccountDirectory
		catalog  ports.ProductCatalog
	)
	if cfg.Auth.UsersURL != "" {
		accounts = remote.NewAccountDirectory(cfg.Auth.UsersURL, cfg.Auth.ServiceToken, cfg.Auth.RemoteTimeout)
	}
	if cfg.Auth.CatalogURL != "" {
		catalog = remote.NewCatalog(cfg.Auth.CatalogURL, cfg.Auth.ServiceToken, cfg.Auth.RemoteTimeout)
	}

	executor := ordersapp.NewExecutor(
		adapters.NewObservableNotifier(notifier, publishMetrics),
		accounts,
		repo,
		logger,
		ordersapp.ExecutorConfig{SellerEmail: cfg.Payments.SellerEmail},
	)

	service := ordersapp.NewService(ordersapp.Dependencies{
		Repo:    repo,
		Gateway: paymentClient,
		Catalog: catalog,
		Effects: executor,
		Logger:  logger,
		Metrics: ordersMetrics,
	})

	reconciler := webhook.NewReconciler(paymentClient, repo, service, logger)
	processor := webhook.NewProcessor(
		webhook.NewVerifier(cfg.Webhook.Secret, webhook.WithTolerance(cfg.Webhook.Tolerance)),
		reconciler,
		eventspostgres.NewStore(pool),
		webhookMetrics,
		logger,
	)

	linker := oauth.NewLinker(oauthClient, credentials, oauth.NewStateSigner(cfg.Payments.StateKey, cfg.Payments.StateTTL), logger)

	abandonment := sweeper.New(repo, service, sweeper.Config{
		Window:    cfg.Sweeper.Window,
		BatchSize: cfg.Sweeper.BatchSize,
	}, ordersMetrics, logger, nil)

	router := httpadapter.NewRouter(httpadapter.RouterConfig{
		Handler: httpadapter.NewHandler(service, reconciler, abandonment, linker, logger),
		Auth:    httpadapter.NewAuthenticator(cfg.Auth.JWTKey, cfg.Auth.Issuer),
		Webhook: webhook.NewHandler(processor, logger),
		Health: func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
		Ready: func(w http.ResponseWriter, r *http.Request) {
			if err := database.CheckHealth(r.Context(), pool); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
			respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		},
		Metrics: httpMetrics,
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Sweeper.Enabled {
		g.Go(func() error {
			logger.Info("abandonment sweeper starting", "interval", cfg.Sweeper.Interval, "window", cfg.Sweeper.Window)
			return abandonment.Run(gctx, cfg.Sweeper.Interval)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		} else {
			logger.Info("http server stopped")
		}
		if err := executor.Wait(shutdownCtx); err != nil {
			logger.Warn("pending notifications abandoned", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func newNotifier(cfg config.RabbitMQConfig, logger *slog.Logger) (ports.Notifier, func(), error) {
	if cfg.URL == "" {
		logger.Warn("RABBITMQ_URL not set, notifications are only logged")
		return rabbitmq.NewNoopDispatcher(logger), func() {}, nil
	}

	conn, err := rabbitmq.Dial(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	closeFn := func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close rabbitmq connection", "error", err)
		}
	}
	return rabbitmq.NewDispatcher(conn.Channel(), cfg.Exchange, logger), closeFn, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
