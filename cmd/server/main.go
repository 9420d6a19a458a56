package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/handler"
	"github.com/GoPolymarket/bulkgate/internal/manager"
	"github.com/GoPolymarket/bulkgate/internal/middleware"
	"github.com/GoPolymarket/bulkgate/internal/pkg/logger"
	"github.com/GoPolymarket/bulkgate/internal/repository"
	"github.com/GoPolymarket/bulkgate/internal/service"
	"github.com/GoPolymarket/bulkgate/internal/signer"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence
	// Batches: Postgres > Redis > Memory
	var batchRepo service.BatchRepo
	var cleaner service.BatchCleaner
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			repo, err := repository.NewPostgresBatchRepo(db)
			if err == nil {
				logger.Info("Connected to PostgreSQL")
				batchRepo, cleaner = repo, repo
			} else {
				logger.Error("Failed to prepare batches table", "error", err)
			}
		} else {
			logger.Error("Failed to connect to DB", "error", err)
		}
	}

	idemTTL := time.Duration(cfg.Server.IdempotencyTTLSeconds) * time.Second
	var idemStore middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis")
			if batchRepo == nil {
				ttl := time.Duration(cfg.Redis.BatchTTLSeconds) * time.Second
				batchRepo = repository.NewRedisBatchRepo(redisClient, ttl, cfg.Redis.KeyPrefix+":")
			}
			idemStore = repository.NewRedisIdempotencyStore(redisClient, idemTTL, cfg.Redis.KeyPrefix+":")
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
		}
	}
	if batchRepo == nil {
		mem := service.NewMemoryBatchStore()
		batchRepo, cleaner = mem, mem
		logger.Warn("Batches are kept in memory and lost on restart")
	}
	if idemStore == nil {
		idemStore = middleware.NewInMemIdempotencyStore(idemTTL)
	}

	// 3. Initialize Core Services
	domain := signer.SeaportDomain(cfg.Chain.ChainID, cfg.Chain.SeaportAddress)
	var hotSigner *signer.Signer
	if cfg.Signer.PrivateKey != "" {
		hotSigner, err = signer.NewSigner(cfg.Signer.PrivateKey, domain)
		if err != nil {
			log.Fatalf("Failed to load signer key: %v", err)
		}
		logger.Info("Server-side signing enabled", "address", hotSigner.Address().Hex())
	}

	var contracts service.ContractSigVerifier
	if cfg.Chain.RPCURL != "" {
		verifier, err := service.NewEIP1271Verifier(
			cfg.Chain.RPCURL,
			time.Duration(cfg.Chain.EIP1271CacheSeconds)*time.Second,
			time.Duration(cfg.Chain.EIP1271TimeoutMs)*time.Millisecond,
			cfg.Chain.EIP1271Retries,
		)
		if err != nil {
			log.Fatalf("Failed to initialize EIP-1271 verifier: %v", err)
		}
		contracts = verifier
	}

	bulkSvc := service.NewBulkOrderService(cfg, batchRepo, hotSigner, contracts)
	if cfg.Chain.CheckCounters {
		if cfg.Chain.RPCURL == "" {
			log.Fatal("chain.check_counters requires chain.rpc_url")
		}
		counters, err := manager.NewCounterManager(cfg.Chain.RPCURL, domain.VerifyingContract,
			time.Duration(cfg.Chain.CounterCacheSeconds)*time.Second)
		if err != nil {
			log.Fatalf("Failed to initialize counter manager: %v", err)
		}
		bulkSvc.WithCounters(counters)
	}

	// 4. Setup Router
	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(cfg, bulkSvc, idemStore)

	// 5. Retention sweeps
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if cleaner != nil && cfg.Database.BatchRetentionDays > 0 {
		go runCleanup(ctx, cleaner,
			time.Duration(cfg.Database.BatchRetentionDays)*24*time.Hour,
			time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("bulkgate started",
			"port", cfg.Server.Port,
			"chain_id", cfg.Chain.ChainID,
			"seaport", domain.VerifyingContract.Hex(),
			"read_only", cfg.Server.ReadOnly,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}

func runCleanup(ctx context.Context, cleaner service.BatchCleaner, retention, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cleaner.Cleanup(ctx, retention)
			if err != nil {
				logger.Error("batch cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("expired batches removed", "count", n)
			}
		}
	}
}
