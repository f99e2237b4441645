// navoracle runs one aggregation cycle and exits: build the snapshot,
// push it, report. Intended for cron or one-shot manual runs; the
// long-lived API lives in navserver.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/adapter"
	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/client"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/infrastructure/chain"
	"github.com/detradefund/stack-mon-prime/internal/pkg/logger"
	"github.com/detradefund/stack-mon-prime/internal/pkg/metrics"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
	"github.com/detradefund/stack-mon-prime/internal/pricing"
	"github.com/detradefund/stack-mon-prime/internal/repository"
	"github.com/detradefund/stack-mon-prime/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zapLogger, err := logger.Build(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer zapLogger.Sync()

	metrics.MustRegisterMetrics()

	registry, err := config.NewRegistry(cfg)
	if err != nil {
		return err
	}

	provider := chain.NewEVMClientProvider(registry, cfg.RpcClient, zapLogger)
	defer provider.Close()

	cowClient := client.NewCoWClient(cfg.Quote, registry, zapLogger)
	pendleClient := client.NewPendleClient(cfg.Pendle, zapLogger)
	converter := pricing.NewService(registry, provider, cowClient, pendleClient, zapLogger)

	adapters := []port.ProtocolAdapter{
		adapter.NewSpotAdapter(registry, provider, converter, zapLogger),
		adapter.NewSkyAdapter(registry, provider, converter, zapLogger),
		adapter.NewPendleAdapter(registry, provider, converter, zapLogger),
		adapter.NewConvexAdapter(cfg.Pools.Convex, registry, provider, converter, zapLogger),
		adapter.NewEquilibriaAdapter(cfg.Pools.Equilibria, registry, provider, converter, pendleClient, zapLogger),
	}

	mongoURI, err := cfg.MongoURI()
	if err != nil {
		return err
	}
	store, err := repository.NewMongoStore(context.Background(), mongoURI, cfg.Mongo, zapLogger)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	aggregator := service.NewAggregator(adapters, provider, registry, cfg.Fund, cfg.Runner, zapLogger)
	runner := service.NewRunner(aggregator, store, cfg.Fund, cfg.Runner, zapLogger)

	outcome, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	zapLogger.Info("Snapshot recorded",
		zap.String("snapshot_id", outcome.SnapshotID),
		zap.String("nav", outcome.NAV),
		zap.Int("failures", outcome.Failures),
		zap.String("duration", outcome.Duration))
	return nil
}
