package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharding-system/internal/server"
	"github.com/sharding-system/pkg/classifier"
	"github.com/sharding-system/pkg/config"
	"github.com/sharding-system/pkg/datasource"
	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/health"
	"github.com/sharding-system/pkg/hashing"
	"github.com/sharding-system/pkg/iterator"
	"github.com/sharding-system/pkg/logging"
	"github.com/sharding-system/pkg/lookupcache"
	"github.com/sharding-system/pkg/lookupservice"
	"github.com/sharding-system/pkg/observability"
	"github.com/sharding-system/pkg/poolset"
	"github.com/sharding-system/pkg/registry"
	"github.com/sharding-system/pkg/router"
	"github.com/sharding-system/pkg/security"
	"github.com/sharding-system/pkg/txmanager"
	"github.com/sharding-system/pkg/validator"

	"go.uber.org/zap"
)

// @title Sharding Router Admin API
// @version 1.0
// @description Admin HTTP surface for the multi-tenant SQL sharding router: directory CRUD, shard/health introspection, and batch tenant iteration.
// @termsOfService http://swagger.io/terms/
// @contact.name API Support
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/router.json"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	procLogger, err := logging.NewLogger(cfg.Logging.ToLogConfig())
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer procLogger.Close()
	if cfg.Logging.LokiEndpoint != "" {
		procLogger.AddExporter(logging.NewLokiExporter(logging.LokiExporterConfig{
			Endpoint: cfg.Logging.LokiEndpoint,
			Labels:   map[string]string{"service": "sharding-router"},
		}))
	}
	logger := procLogger.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.New(cfg.ShardDescriptors(), cfg.Replica.Selection)
	if err != nil {
		logger.Fatal("failed to build shard registry", zap.Error(err))
	}

	pools, err := poolset.New(ctx, reg, poolset.Config{
		MaxOpenConns:    cfg.Pool.MaximumPoolSize,
		MaxIdleConns:    cfg.Pool.MinimumIdle,
		ConnMaxLifetime: cfg.Pool.MaxLifetime(),
		ConnMaxIdleTime: cfg.Pool.IdleTimeout(),
		AcquireTimeout:  cfg.Pool.ConnectionTimeout(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to build connection pool set", zap.Error(err))
	}
	defer pools.Close()

	if err := pools.OpenGlobal(ctx, cfg.GlobalEndpoint()); err != nil {
		logger.Fatal("failed to open global database pool", zap.Error(err))
	}

	store, err := directory.Open(ctx, cfg.GlobalDB.URL)
	if err != nil {
		logger.Fatal("failed to open directory store", zap.Error(err))
	}
	defer store.Close()

	cache, err := buildCache(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build lookup cache", zap.Error(err))
	}

	lookup := lookupservice.New(store, cache, reg, logger)

	classes := classifier.New(cfg.Validation.Entities)
	onViolation := observability.ValidationLevel(string(cfg.Validation.Strictness))
	v := validator.New(classes, cfg.Validation.Strictness, logger, onViolation)

	rtr := router.New(reg, pools, config.GlobalEndpointID, logger, func() {
		observability.ReplicaFallbackTotal.Inc()
	})
	txMgr := txmanager.New(rtr)
	ds := datasource.New(rtr, v, txMgr)

	// Smoke-check the assembled routing stack against the global endpoint
	// before accepting admin traffic.
	if conn, err := ds.GetConnection(ctx, false); err != nil {
		logger.Warn("startup smoke check: global endpoint unreachable", zap.Error(err))
	} else {
		logger.Info("startup smoke check passed", zap.String("endpoint_id", conn.EndpointID()))
	}

	it := iterator.New(store, logger)

	healthController := health.NewController(reg, pools, logger, health.Config{})
	go healthController.Start(ctx)

	authManager := security.NewAuthManager(cfg.Server.JWTSecret, 0)
	audit, err := security.NewAuditLogger(cfg.Server.AuditLogPath)
	if err != nil {
		logger.Fatal("failed to open audit log", zap.Error(err))
	}
	defer audit.Close()

	srv := server.New(server.Deps{
		Config:      cfg,
		AuthManager: authManager,
		Audit:       audit,
		Lookup:      lookup,
		Registry:    reg,
		Iterator:    it,
		Health:      healthController,
		Logger:      logger,
	})
	srv.StartAsync()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown error", zap.Error(err))
	}
}

func buildCache(cfg *config.Config, logger *zap.Logger) (lookupcache.Cache, error) {
	switch cfg.Cache.Type {
	case config.CacheNone:
		return lookupcache.Noop{}, nil
	case config.CacheDistributed:
		return lookupcache.NewDistributed(lookupcache.DistributedConfig{
			Endpoints:   cfg.Cache.DistributedEndpoint,
			KeyPrefix:   cfg.Cache.KeyPrefix,
			TTL:         time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			NegativeTTL: time.Duration(cfg.Cache.NegativeTTLSeconds) * time.Second,
			Logger:      logger,
			OnDegraded:  observability.CacheDegraded,
		})
	default: // CacheLocal
		return lookupcache.NewLocal(lookupcache.LocalConfig{
			MaxSize:     cfg.Cache.MaxSize,
			TTL:         time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			NegativeTTL: time.Duration(cfg.Cache.NegativeTTLSeconds) * time.Second,
			HashFunc:    hashing.NewHashFunction(cfg.Cache.HashFunction),
		}), nil
	}
}
