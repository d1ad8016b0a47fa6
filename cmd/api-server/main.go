package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bloomcare/midwife-scheduling/internal/api"
	"github.com/bloomcare/midwife-scheduling/internal/config"
	"github.com/bloomcare/midwife-scheduling/internal/db"
	"github.com/bloomcare/midwife-scheduling/internal/lock"
	"github.com/bloomcare/midwife-scheduling/internal/logging"
	"github.com/bloomcare/midwife-scheduling/internal/notification"
	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store: postgres when a DSN is configured, in-memory otherwise.
	var (
		store visit.Store
		avail visit.AvailabilityIndex
	)
	routerCfg := api.RouterConfig{Logger: logger, Env: cfg.Env, Version: version}

	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres")

		pg := visit.NewPgStore(pgPool, visit.SystemClock)
		store, avail = pg, pg
		routerCfg.PgPool = pgPool
	} else {
		mem := visit.NewMemoryStore(visit.SystemClock)
		store, avail = mem, mem
		logger.Info("running on the in-memory store")
	}

	// Lock: Redis when configured, in-process mutex otherwise.
	var locker lock.Locker = lock.NewMutexLocker()
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis")

		locker = lock.NewRedisProviderLocker(rdb, cfg.LockTTL)
		routerCfg.Redis = rdb
	}

	svc := visit.NewService(visit.ServiceOptions{
		Store:     store,
		Avail:     avail,
		Notifier:  notification.NewLogNotifier(logger),
		Locker:    locker,
		Logger:    logger,
		DefaultTZ: cfg.DefaultTimezone,
	})
	defer svc.Reminders().Stop()

	routerCfg.Service = svc

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()

	logger.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
