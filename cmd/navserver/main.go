package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/detradefund/stack-mon-prime/internal/adapter"
	"github.com/detradefund/stack-mon-prime/internal/app/port"
	"github.com/detradefund/stack-mon-prime/internal/client"
	"github.com/detradefund/stack-mon-prime/internal/config"
	"github.com/detradefund/stack-mon-prime/internal/infrastructure/chain"
	"github.com/detradefund/stack-mon-prime/internal/infrastructure/restapi"
	"github.com/detradefund/stack-mon-prime/internal/pkg/logger"
	"github.com/detradefund/stack-mon-prime/internal/pkg/metrics"
	"github.com/detradefund/stack-mon-prime/internal/pkg/utils"
	"github.com/detradefund/stack-mon-prime/internal/pricing"
	"github.com/detradefund/stack-mon-prime/internal/repository"
	"github.com/detradefund/stack-mon-prime/internal/service"
)

func main() {
	// .env is optional; real deployments inject the environment.
	_ = godotenv.Load()

	cfgPath := utils.GetEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.Build(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	metrics.MustRegisterMetrics()

	registry, err := config.NewRegistry(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to build registry", zap.Error(err))
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
		zapLogger.Fatal("Store configuration incomplete", zap.Error(err))
	}
	store, err := repository.NewMongoStore(context.Background(), mongoURI, cfg.Mongo, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to snapshot store", zap.Error(err))
	}
	defer store.Close(context.Background())

	aggregator := service.NewAggregator(adapters, provider, registry, cfg.Fund, cfg.Runner, zapLogger)
	runner := service.NewRunner(aggregator, store, cfg.Fund, cfg.Runner, zapLogger)

	router := gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.Use(utils.ZapLoggerMiddleware(zapLogger))
	router.Use(gin.Recovery())

	snapshotHandler := restapi.NewSnapshotHandler(store, zapLogger)
	runHandler := restapi.NewRunHandler(runner, os.Getenv("RUN_TRIGGER_TOKEN"), zapLogger)
	restapi.SetupRoutes(router, snapshotHandler, runHandler)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	pprofRouter := router.Group("/debug/pprof")
	{
		pprofRouter.GET("/", gin.WrapF(pprof.Index))
		pprofRouter.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofRouter.GET("/profile", gin.WrapF(pprof.Profile))
		pprofRouter.POST("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofRouter.GET("/trace", gin.WrapF(pprof.Trace))
		pprofRouter.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
		pprofRouter.GET("/block", gin.WrapH(pprof.Handler("block")))
		pprofRouter.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
		pprofRouter.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofRouter.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
		pprofRouter.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	}

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		zapLogger.Info("Server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}
