package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	gRPC "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	httpadapter "github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/adapters/http"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/app"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/domain"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/provider"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/repository/memory"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/repository/postgres"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/security"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/payment_service/tokencache"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/config"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/database"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/fieldcrypto"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/httpclient"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/logger"
	"github.com/Mak8Tech/mobile-wallet-zm/internal/platform/messagebroker"
)

const (
	serviceName     = "payment-service"
	healthService   = "mobile_wallet.PaymentService"
	shutdownTimeout = 15 * time.Second
)

func httpClientConfig(cfg *config.Config) httpclient.Config {
	return httpclient.Config{
		Timeout:            cfg.RequestTimeout(),
		Retries:            cfg.RequestRetries,
		RetryDelay:         time.Duration(cfg.RequestRetryDelayMS) * time.Millisecond,
		BackoffMultiplier:  cfg.RequestBackoffMultiplier,
		MaxRetryDelay:      time.Duration(cfg.RequestMaxRetryDelayMS) * time.Millisecond,
		BreakerMaxFailures: uint32(cfg.BreakerMaxFailures),
		BreakerOpenTimeout: time.Duration(cfg.BreakerOpenSeconds) * time.Second,
	}
}

func openRepository(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (domain.TransactionRepository, func(), error) {
	if strings.EqualFold(cfg.StoreDriver, "memory") {
		appLogger.Warn("Using in-memory transaction store; data is lost on restart")
		return memory.NewTransactionRepository(), func() {}, nil
	}

	cipher, err := fieldcrypto.FromBase64Key(cfg.FieldEncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("field encryption key: %w", err)
	}
	if _, ok := cipher.(fieldcrypto.Nop); ok {
		appLogger.Warn("FIELD_ENCRYPTION_KEY not set; phone numbers and payloads are stored in plaintext")
	}

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN, database.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := database.ApplySchema(ctx, dbPool, postgres.Schema...); err != nil {
		dbPool.Close()
		return nil, nil, err
	}
	appLogger.Info("Successfully connected to PostgreSQL")
	return postgres.NewPgTransactionRepository(dbPool, cipher, appLogger), dbPool.Close, nil
}

func openTokenStore(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) (tokencache.Store, func(), error) {
	if strings.EqualFold(cfg.TokenCacheStore, "memory") {
		return tokencache.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	appLogger.Info("Successfully connected to Redis", "addr", cfg.RedisAddr)
	return tokencache.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Payment service starting...",
		"http_port", cfg.HTTPPort,
		"metrics_port", cfg.MetricsPort,
		"grpc_health_port", cfg.GRPCHealthPort,
		"default_provider", cfg.DefaultProvider,
		"log_level", cfg.LogLevel,
	)

	repo, closeRepo, err := openRepository(mainCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to open transaction store", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	tokenStore, closeTokens, err := openTokenStore(mainCtx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to open token store", "error", err)
		os.Exit(1)
	}
	defer closeTokens()
	tokens := tokencache.New(tokenStore, cfg.TokenTTL(), appLogger)

	var events domain.EventPublisher = domain.NopEventPublisher{}
	if cfg.NATSUrl != "" {
		natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			appLogger.Warn("NATS unavailable; transaction events will not be published", "error", err)
		} else {
			defer natsClient.Close()
			events = app.NewNatsEventPublisher(natsClient, appLogger)
			appLogger.Info("Successfully connected to NATS", "url", cfg.NATSUrl)
		}
	}

	var (
		adapters  []domain.PaymentProvider
		verifiers = make(map[domain.Provider]security.SignatureVerifier, len(domain.Providers))
	)
	for _, name := range domain.Providers {
		pc, _ := cfg.Provider(string(name))
		if pc.APIKey == "" {
			appLogger.Warn("Provider credentials not configured; calls will fail authentication", "provider", name)
		}
		client := httpclient.New(string(name), httpClientConfig(cfg), appLogger,
			httpclient.WithRetryHook(provider.RetryMetricsHook(name)))
		adapter, err := provider.New(string(name), provider.Config{
			BaseURL:         pc.BaseURL,
			APIKey:          pc.APIKey,
			APISecret:       pc.APISecret,
			Environment:     pc.Environment,
			SubscriptionKey: pc.SubscriptionKey,
			Currency:        cfg.Currency,
			CountryCode:     cfg.CountryCode,
			DialingCode:     cfg.DialingCode,
			CallbackURL:     strings.TrimRight(cfg.CallbackURL, "/") + "/" + string(name),
		}, provider.Deps{
			HTTP:   client,
			Repo:   repo,
			Tokens: tokens,
			Events: events,
			Logger: appLogger,
		})
		if err != nil {
			appLogger.Error("Failed to build provider", "provider", name, "error", err)
			os.Exit(1)
		}
		adapters = append(adapters, adapter)

		verifier, err := security.NewVerifier(string(name), security.Credentials{ClientID: pc.APIKey, Secret: pc.WebhookSecret}, appLogger)
		switch {
		case errors.Is(err, security.ErrMissingSecret):
			appLogger.Warn("Webhook secret not configured; signed webhooks will be rejected", "provider", name)
		case err != nil:
			appLogger.Error("Failed to build webhook verifier", "provider", name, "error", err)
			os.Exit(1)
		default:
			verifiers[name] = verifier
		}
	}

	dispatcher, err := app.NewDispatcher(cfg.DefaultProvider, adapters...)
	if err != nil {
		appLogger.Error("Failed to initialise provider dispatcher", "error", err)
		os.Exit(1)
	}
	if !cfg.VerifyWebhookSignatures {
		appLogger.Warn("Webhook signature verification is DISABLED")
	}
	webhookService := app.NewWebhookService(dispatcher, verifiers, cfg.VerifyWebhookSignatures, appLogger)
	adminService := app.NewAdminService(repo, events, appLogger)

	g, groupCtx := errgroup.WithContext(mainCtx)

	// --- gRPC health server ---
	grpcMetrics := grpcprom.NewServerMetrics(grpcprom.WithServerHandlingTimeHistogram())
	if err := prometheus.DefaultRegisterer.Register(grpcMetrics); err != nil {
		appLogger.Warn("Failed to register gRPC Prometheus metrics", "error", err)
	}
	grpcServer := gRPC.NewServer(
		gRPC.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		gRPC.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	grpcListenAddress := fmt.Sprintf(":%d", cfg.GRPCHealthPort)
	grpcListener, err := net.Listen("tcp", grpcListenAddress)
	if err != nil {
		appLogger.Error("Failed to listen for gRPC", "address", grpcListenAddress, "error", err)
		os.Exit(1)
	}
	g.Go(func() error {
		appLogger.Info("gRPC health server starting", "address", grpcListenAddress)
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, gRPC.ErrServerStopped) {
			appLogger.Error("gRPC server failed to serve", "error", err)
			return err
		}
		appLogger.Info("gRPC server shut down gracefully.")
		return nil
	})

	// --- API HTTP server ---
	router := httpadapter.NewRouter(httpadapter.RouterConfig{
		Payments:    dispatcher,
		Lookup:      repo,
		Webhooks:    webhookService,
		Admin:       adminService,
		Permissions: httpadapter.ClaimsPermissionChecker{},
		JWTSecret:   []byte(cfg.AdminJWTSecret),
		Limits: httpadapter.RateLimits{
			Payment: cfg.RateLimitPaymentPerMinute,
			Status:  cfg.RateLimitStatusPerMinute,
			Webhook: cfg.RateLimitWebhookPerMinute,
			Admin:   cfg.RateLimitAdminPerMinute,
		},
		Logger: appLogger,
	})
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr, "providers", dispatcher.Providers())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	// --- Metrics HTTP server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}
	g.Go(func() error {
		appLogger.Info("Metrics HTTP server starting", "address", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("Metrics HTTP server shut down gracefully.")
		return nil
	})

	// --- Graceful shutdown ---
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown of servers...")
		healthServer.Shutdown()

		shutdownCtx, cancelShutdownTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdownTimeout()

		var shutdownErrors error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("http shutdown: %w", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Metrics HTTP server graceful shutdown failed", "error", err)
			shutdownErrors = errors.Join(shutdownErrors, fmt.Errorf("metrics http shutdown: %w", err))
		}
		grpcServer.GracefulStop()
		appLogger.Info("gRPC server has finished GracefulStop.")
		return shutdownErrors
	})

	appLogger.Info("Payment service is ready and running.")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
	}
	appLogger.Info("Payment service shut down successfully.")
}
