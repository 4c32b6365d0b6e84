package main // Entry point package

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/config"
	"github.com/velosim/sim-fleet-console/internal/database"
	"github.com/velosim/sim-fleet-console/internal/dispatch"
	"github.com/velosim/sim-fleet-console/internal/handler"
	"github.com/velosim/sim-fleet-console/internal/logger"
	"github.com/velosim/sim-fleet-console/internal/middleware"
	"github.com/velosim/sim-fleet-console/internal/provider"
	"github.com/velosim/sim-fleet-console/internal/queue"
	"github.com/velosim/sim-fleet-console/internal/ratelimit"
	"github.com/velosim/sim-fleet-console/internal/repository"
	"github.com/velosim/sim-fleet-console/internal/router"
	queuepublisher "github.com/velosim/sim-fleet-console/internal/service"
	"github.com/velosim/sim-fleet-console/internal/syncer"
	"github.com/velosim/sim-fleet-console/internal/vault"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set the environment
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat, "sim-fleet-console")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zlog.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()

	v, err := vault.NewFromHex(cfg.VaultKeyHex)
	if err != nil {
		zlog.Fatal("vault init failed", zap.Error(err))
	}

	// Repositories over the shared pool.
	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	accountRepo := repository.NewAccountRepo(db)
	fleetRepo := repository.NewFleetRepo(db)
	simRepo := repository.NewSimRepo(db)
	scopeRepo := repository.NewScopeRepo(db)
	logRepo := repository.NewCommandLogRepo(db)

	// Provider access: one token cache and one typed client shared across
	// tenants; credentials travel per call.
	tokens := provider.NewTokenCache(cfg.ProviderTokenURL, zlog)
	client := provider.NewClient(cfg.ProviderBaseURL, tokens, zlog)

	tenants := make([]provider.Tenant, 0, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		tenants = append(tenants, provider.Tenant{
			Label:        t.Label,
			ClientID:     t.ClientID,
			ClientSecret: t.ClientSecret,
			Scope:        t.Scope,
			Audience:     t.Audience,
		})
	}

	orch := syncer.New(accountRepo, fleetRepo, simRepo, scopeRepo, client, v,
		tenants, cfg.FleetConcurrency, zlog)

	limiter := ratelimit.New()
	var publisher dispatch.EventPublisher
	if cfg.RabbitURL != "" {
		publisher = queuepublisher.New(cfg.RabbitURL, zlog)
	}
	disp := dispatch.New(simRepo, accountRepo, logRepo, client, publisher, limiter, v,
		dispatch.Options{
			RateLimit:  cfg.DispatchLimit,
			RateWindow: time.Duration(cfg.DispatchWindowS) * time.Second,
		}, zlog)

	// Reconciliation consumer: matches dispatched commands against the
	// provider's command log and records terminal statuses.
	if cfg.RabbitURL != "" {
		rec := queue.NewReconcileService(logRepo, accountRepo, v, client, zlog)
		go func() {
			if err := queue.StartReconcileConsumer(cfg.RabbitURL, rec, zlog); err != nil {
				zlog.Error("reconcile consumer stopped", zap.Error(err))
			}
		}()
	}

	// Redis is optional; a nil client degrades both middlewares to no-ops.
	rdb := config.NewRedisClient()
	if rdb == nil {
		zlog.Warn("redis unreachable, response cache disabled")
	}
	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewRateLimit(config.LoadRateLimitConfig(), limiter))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, userRepo, tokenRepo), cfg.JWTSecret)
	router.RegisterConsole(e, cfg.JWTSecret,
		handler.NewSyncHandler(orch, scopeRepo),
		handler.NewDispatchHandler(disp, scopeRepo),
		handler.NewBrowseHandler(accountRepo, fleetRepo, simRepo, logRepo, scopeRepo),
		cacheMW)

	addr := ":" + cfg.Port
	zlog.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}
