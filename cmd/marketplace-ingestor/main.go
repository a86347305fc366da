package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-marketplace-ledger/internal/adapter"
	"github.com/feral-file/ff-marketplace-ledger/internal/api/server"
	"github.com/feral-file/ff-marketplace-ledger/internal/config"
	"github.com/feral-file/ff-marketplace-ledger/internal/domain"
	"github.com/feral-file/ff-marketplace-ledger/internal/ingestor"
	"github.com/feral-file/ff-marketplace-ledger/internal/leaderboard"
	"github.com/feral-file/ff-marketplace-ledger/internal/ledger"
	"github.com/feral-file/ff-marketplace-ledger/internal/logger"
	"github.com/feral-file/ff-marketplace-ledger/internal/messaging"
	"github.com/feral-file/ff-marketplace-ledger/internal/providers/jetstream"
	"github.com/feral-file/ff-marketplace-ledger/internal/store"
	"github.com/feral-file/ff-marketplace-ledger/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIngestorConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "marketplace-ingestor",
			"network": cfg.Network,
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Marketplace Ingestor", zap.String("network", cfg.Network))

	network, err := cfg.SelectedNetwork()
	if err != nil {
		logger.FatalCtx(ctx, "Failed to resolve network", zap.Error(err))
	}

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize adapters
	clock := adapter.NewClock()

	// Initialize store
	dataStore := store.NewPGStore(db, clock)

	// Notifications are optional
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = jetstream.NewPublisher(ctx, jetstream.Config{
			URL:             cfg.NATS.URL,
			StreamName:      cfg.NATS.StreamName,
			MaxReconnects:   cfg.NATS.MaxReconnects,
			ReconnectWait:   cfg.NATS.ReconnectWait,
			ConnectionName:  cfg.NATS.ConnectionName,
			DuplicateWindow: cfg.NATS.DuplicateWindow,
		}, adapter.NewNatsJetStream())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create NATS publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer publisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS JetStream", zap.String("stream", cfg.NATS.StreamName))
	} else {
		logger.WarnCtx(ctx, "NATS url not configured, ledger notifications are disabled")
	}

	// So is the leaderboard
	var board leaderboard.Leaderboard
	if cfg.Redis.Addr != "" {
		redisClient := adapter.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() {
			_ = redisClient.Close()
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.WarnCtx(ctx, "Redis unreachable, leaderboard updates will fail until it recovers", zap.Error(err))
		}
		board = leaderboard.NewRedisLeaderboard(redisClient, cfg.Network)
	} else {
		logger.WarnCtx(ctx, "Redis address not configured, leaderboard is disabled")
	}

	xpLedger := ledger.New(ledger.Config{
		Network:          cfg.Network,
		OperationTimeout: cfg.Ledger.OperationTimeout,
	}, dataStore, publisher, board, clock)

	marketplaceIngestor := ingestor.New(ingestor.Config{
		Network:                cfg.Network,
		Chain:                  network.Chain(),
		RPCURL:                 network.RPCURL,
		ContractAddress:        network.ContractAddress,
		ChainID:                network.ChainID,
		BackfillWindow:         cfg.Ingestor.BackfillWindow,
		PollInterval:           cfg.Ingestor.PollInterval,
		HandlerRetryInterval:   cfg.Ingestor.HandlerRetryInterval,
		HandlerRetryMaxElapsed: cfg.Ingestor.HandlerRetryMaxElapsed,
		ResubscribeInterval:    cfg.Ingestor.ResubscribeInterval,
		RequestsPerSecond:      cfg.Ingestor.RPCRequestsPerSecond,
		MaxBlockRange:          cfg.Ingestor.MaxBlockRange,
		BlockHeadTTL:           cfg.Ingestor.BlockHeadTTL,
		BlockHeadStaleWindow:   cfg.Ingestor.BlockHeadStaleWindow,
	}, adapter.NewEthClientDialer(), xpLedger, dataStore, clock)

	errCh := make(chan error, 3)

	// Start the ingestor; only an unresolved endpoint or contract is fatal
	startupBackoff := backoff.NewExponentialBackOff()
	startupBackoff.MaxElapsedTime = 0
	err = backoff.RetryNotify(func() error {
		err := marketplaceIngestor.Start(ctx)
		if errors.Is(err, domain.ErrEndpointUnresolved) || errors.Is(err, domain.ErrContractUnresolved) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(startupBackoff, ctx), func(err error, next time.Duration) {
		logger.WarnCtx(ctx, "Failed to start ingestor, retrying",
			zap.Error(err),
			zap.Duration("next_retry", next))
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to start ingestor", zap.Error(err))
	}
	defer marketplaceIngestor.Stop()

	// Reconciliation sweeper
	var reconciler sweeper.Reconciler
	if cfg.Reconciler.Enabled {
		reconciler = sweeper.NewReconciler(sweeper.ReconcilerConfig{
			Network:        cfg.Network,
			Interval:       cfg.Reconciler.Interval,
			BackfillWindow: cfg.Ingestor.BackfillWindow,
			AuditLimit:     cfg.Reconciler.AuditLimit,
		}, marketplaceIngestor, dataStore, clock)

		go func() {
			if err := reconciler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", reconciler.Name(), err)
			}
		}()
	}

	// Ops server
	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(server.Config{
			Debug:        cfg.Debug,
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		}, dataStore, marketplaceIngestor)

		go func() {
			if err := srv.Start(); err != nil {
				errCh <- fmt.Errorf("ops server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err)
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("component", "ops server"))
		}
	}
	if reconciler != nil {
		if err := reconciler.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("component", reconciler.Name()))
		}
	}

	marketplaceIngestor.Stop()
	cancel()

	// Use non-context logger for final shutdown message since context is already canceled
	logger.Info("Marketplace Ingestor stopped")
}
