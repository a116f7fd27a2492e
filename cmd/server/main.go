package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agenttrader/internal/broker"
	"agenttrader/internal/config"
	cronrunner "agenttrader/internal/cron"
	"agenttrader/internal/db"
	"agenttrader/internal/handler"
	"agenttrader/internal/ingest"
	"agenttrader/internal/logger"
	gormrepository "agenttrader/internal/repository/gorm"
	"agenttrader/internal/risk"
	"agenttrader/internal/service"
	"agenttrader/internal/strategy"
)

func main() {
	cfgPath := os.Getenv("AT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AT_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	coordinator := risk.NewCoordinator(store, logger, cfg.Risk.LockTimeout)
	paperBroker := broker.NewPaper(store, logger)

	unitQty := decimal.NewFromInt(1)
	if qty, err := decimal.NewFromString(cfg.Runner.UnitQty); err == nil && qty.IsPositive() {
		unitQty = qty
	} else if cfg.Runner.UnitQty != "" {
		logger.Warn("bad runner.unit_qty, using 1", zap.String("raw", cfg.Runner.UnitQty))
	}
	runner := strategy.NewRunner(store, coordinator, paperBroker, logger, strategy.Config{
		BarLookback:  cfg.Runner.BarLookback,
		FlowLookback: time.Duration(cfg.Runner.FlowLookbackMinutes) * time.Minute,
		SMAWindow:    cfg.Runner.SMAWindow,
		UnitQty:      unitQty,
		DryRun:       cfg.Runner.DryRun,
	})

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	feed := &ingest.Stream{Logger: logger, Repo: store, URL: cfg.Ingest.FeedURL}

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Feed: feed}
	healthHandler.Register(engine)
	riskHandler := &handler.RiskHandler{Repo: store, Coordinator: coordinator}
	riskHandler.Register(engine)
	decisionHandler := &handler.DecisionHandler{Repo: store}
	decisionHandler.Register(engine)
	strategyHandler := &handler.StrategyHandler{Repo: store}
	strategyHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Runner.Enabled {
		if err := runner.EnsureStrategy(ctx,
			strategy.FlowTrendName, "Naive flow trend",
			cfg.Runner.AccountID, cfg.Runner.StrategyID,
			cfg.Runner.Symbols, true); err != nil {
			logger.Warn("seed strategy row failed", zap.Error(err))
		}
	}

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled && cfg.Runner.Enabled {
		_, err := cronRunner.Add(cfg.Cron.StrategyScan, func(ctx context.Context) {
			if err := runner.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("strategy scan failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register strategy scan failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Ingest.Enabled {
		go func() {
			if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("market data feed stopped", zap.Error(err))
			}
		}()
	}

	if cfg.Positions.Enabled {
		positionManager := &service.PositionManager{
			Repo:    store,
			Logger:  logger,
			MaxHold: cfg.Positions.MaxHold,
		}
		go func() {
			if err := positionManager.Run(ctx, cfg.Positions.SweepInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("position manager stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	feed.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
