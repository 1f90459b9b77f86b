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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"teamsync/internal/cache"
	"teamsync/internal/client/github"
	"teamsync/internal/client/linear"
	"teamsync/internal/collector"
	"teamsync/internal/config"
	cronrunner "teamsync/internal/cron"
	"teamsync/internal/db"
	"teamsync/internal/handler"
	"teamsync/internal/ingest"
	"teamsync/internal/logger"
	gormrepository "teamsync/internal/repository/gorm"
	"teamsync/internal/service"
	"teamsync/internal/vault"

	_ "teamsync/docs"
)

func main() {
	cfgPath := os.Getenv("TS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("TS_ENV_ONLY"); envOnlyRaw != "" {
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
	if err := db.Ping(dbConn); err != nil {
		logger.Fatal("db unreachable", zap.Error(err))
	}

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	vaultSvc := vault.New(cfg.Vault)
	if !vaultSvc.Ready() {
		logger.Warn("vault key missing, credentials will be stored unencrypted")
	}

	cacheStore, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Fatal("cache init failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	activitySvc := &service.ActivityService{Repo: store, Logger: logger}
	accountSvc := &service.AccountService{Repo: store, TrialDays: cfg.Trial.Days}

	slackCollector := &collector.SlackCollector{
		APIURL:       cfg.Slack.BaseURL,
		HTTP:         &http.Client{Timeout: cfg.Slack.Timeout},
		MaxRetry:     cfg.Sync.RetryAttempts,
		Backoff:      cfg.Sync.RetryBackoff,
		ReplyWorkers: cfg.Sync.ReplyWorkers,
	}
	linearCollector := &collector.LinearCollector{
		Client: &linear.Client{
			BaseURL:  cfg.Linear.BaseURL,
			HTTP:     &http.Client{Timeout: cfg.Linear.Timeout},
			MaxRetry: cfg.Sync.RetryAttempts,
			Backoff:  cfg.Sync.RetryBackoff,
			PageSize: cfg.Linear.PageSize,
		},
		Cache:    cacheStore,
		CacheTTL: cfg.Cache.TTL,
	}
	githubCollector := &collector.GitHubCollector{
		Client: &github.Client{
			BaseURL:  cfg.GitHub.BaseURL,
			HTTP:     &http.Client{Timeout: cfg.GitHub.Timeout},
			MaxRetry: cfg.Sync.RetryAttempts,
			Backoff:  cfg.Sync.RetryBackoff,
			PageSize: cfg.GitHub.PageSize,
		},
		Cache:    cacheStore,
		CacheTTL: cfg.Cache.TTL,
	}

	orchestrator := ingest.NewOrchestrator(store, vaultSvc, activitySvc, cfg.Sync, logger,
		slackCollector, linearCollector, githubCollector)
	queue := ingest.NewQueue(orchestrator, cfg.Sync, logger)
	sweeper := ingest.NewSweeper(store, queue, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequestLogMiddleware(logger))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	tenantHandler := &handler.TenantHandler{Account: accountSvc, Repo: store, Logger: logger}
	tenantHandler.Register(engine)
	configHandler := &handler.ConfigHandler{Repo: store, Logger: logger}
	configHandler.Register(engine)
	credentialHandler := &handler.CredentialHandler{Repo: store, Vault: vaultSvc, Logger: logger}
	credentialHandler.Register(engine)
	syncHandler := &handler.SyncHandler{
		Queue:       queue,
		Repo:        store,
		Logger:      logger,
		WaitTimeout: cfg.Sync.WaitTimeout,
		DeepWindow:  cfg.Sync.DeepWindow,
	}
	syncHandler.Register(engine)
	activityHandler := &handler.ActivityHandler{Service: activitySvc, Logger: logger}
	activityHandler.Register(engine)

	if cfg.Metrics.Enabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	baseCtx := ctx

	go func() {
		if err := queue.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("ingest queue stopped", zap.Error(err))
		}
	}()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, baseCtx)
		hourlySources := append([]string(nil), cfg.Cron.HourlySources...)
		_, err = cronRunner.Add("hourly_sync", cfg.Cron.HourlySync, func(ctx context.Context) {
			if _, err := sweeper.EnqueueDueRuns(ctx, hourlySources); err != nil {
				logger.Warn("hourly sync sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register hourly sync failed", zap.Error(err))
		}
		dailySources := append([]string(nil), cfg.Cron.DailySources...)
		deepWindow := cfg.Sync.DeepWindow
		_, err = cronRunner.Add("daily_sync", cfg.Cron.DailySync, func(ctx context.Context) {
			if _, err := sweeper.EnqueueDueRuns(ctx, dailySources, ingest.WithWindow(deepWindow)); err != nil {
				logger.Warn("daily sync sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register daily sync failed", zap.Error(err))
		}
		_, err = cronRunner.Add("trial_sweep", cfg.Cron.TrialSweep, func(ctx context.Context) {
			if _, err := sweeper.ExpireTrials(ctx); err != nil {
				logger.Warn("trial sweep failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register trial sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
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
