package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sigilum/chainrisk/internal/api"
	"github.com/sigilum/chainrisk/internal/config"
	"github.com/sigilum/chainrisk/internal/database"
	"github.com/sigilum/chainrisk/internal/inference"
	"github.com/sigilum/chainrisk/internal/ingest"
	"github.com/sigilum/chainrisk/internal/logging"
	"github.com/sigilum/chainrisk/internal/models"
	"github.com/sigilum/chainrisk/internal/pricing"
	"github.com/sigilum/chainrisk/internal/services"
	"github.com/sigilum/chainrisk/internal/telemetry"
)

func main() {
	// Local development convenience; absent .env files are fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)

	stopTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	if err := inference.InitializeRuntime(cfg.Model.RuntimeLibraryPath); err != nil {
		log.Fatalf("Failed to initialize inference runtime: %v", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	timeout := cfg.Indexers.RequestTimeout()
	providers := []pricing.Provider{
		pricing.NewCryptoCompareProvider("", cfg.Pricing.CryptoCompareAPIKey, timeout),
		pricing.NewDeFiLlamaProvider("", timeout),
		pricing.NewCoinGeckoProvider("", timeout),
		pricing.NewJupiterProvider("", timeout),
	}
	moralis := pricing.NewMoralisProvider("", cfg.Pricing.MoralisAPIKey, timeout)
	if cfg.Pricing.MoralisAPIKey != "" {
		providers = append(providers, moralis)
	}

	quoteCache := pricing.NewRedisQuoteCache(redis.Client, cfg.Pricing.QuoteCacheTTL())
	oracle := pricing.NewOracle(providers, quoteCache, logger)
	converter := pricing.NewConverter(oracle, moralis)

	engines := map[models.ChainType]services.Classifier{
		models.ChainBitcoin:  inference.NewEngine(models.ChainBitcoin, logger),
		models.ChainEthereum: inference.NewEngine(models.ChainEthereum, logger),
		models.ChainSolana:   inference.NewEngine(models.ChainSolana, logger),
		models.ChainLedger:   inference.NewEngine(models.ChainLedger, logger),
	}

	svc := services.NewAnalysisService(services.AnalysisServiceDeps{
		Bitcoin:   ingest.NewBitcoinIngestor(cfg.Indexers.BitcoinBaseURL, timeout, logger),
		Ethereum:  ingest.NewEthereumIngestor(cfg.Indexers.EthereumBaseURL, cfg.Indexers.EthereumAPIKey, timeout, logger),
		Solana:    ingest.NewSolanaIngestor(cfg.Indexers.SolanaBaseURL, cfg.Indexers.SolanaAPIKey, timeout, logger),
		Ledger:    ingest.NewLedgerIngestor(cfg.Indexers.LedgerBaseURL, timeout, logger),
		Converter: converter,
		Engines:   engines,
		Store:     services.NewModelStore(logger),
		State:     database.NewStateRepository(db.Pool),
		Logger:    logger,
	})

	// Reload persisted models and price history before accepting traffic.
	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := svc.RestoreState(restoreCtx); err != nil {
		log.Fatalf("Failed to restore persisted state: %v", err)
	}
	cancelRestore()

	snapshotCtx, stopSnapshots := context.WithCancel(context.Background())
	go persistSnapshots(snapshotCtx, svc, cfg.Pricing.SnapshotInterval(), logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware(telemetry.ServiceName))
	router.Use(api.RequestID(), api.RequestLogger(logger))
	router.Use(api.CORS(cfg.Server.AllowedOrigins))
	api.SetupRoutes(router, db, redis, svc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.LogStartup("chainrisk", "1.0.0", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.LogShutdown("chainrisk", "signal received")

	stopSnapshots()

	// Persist the price cache so historical quotes survive the restart.
	saveCtx, cancelSave := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.PersistPriceSnapshot(saveCtx); err != nil {
		logger.WithError(err).Error("Failed to persist price snapshot on shutdown")
	}
	cancelSave()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := stopTelemetry(ctx); err != nil {
		logger.WithError(err).Warn("Failed to flush telemetry")
	}

	log.Println("Server exited")
}

// persistSnapshots periodically saves the oracle's quote cache so a crash
// loses at most one interval of fetched prices.
func persistSnapshots(ctx context.Context, svc *services.AnalysisService, every time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saveCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := svc.PersistPriceSnapshot(saveCtx); err != nil {
				logger.WithError(err).Warn("Failed to persist price snapshot")
			}
			cancel()
		}
	}
}
