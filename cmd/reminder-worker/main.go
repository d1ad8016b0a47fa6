package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bloomcare/midwife-scheduling/internal/config"
	"github.com/bloomcare/midwife-scheduling/internal/db"
	"github.com/bloomcare/midwife-scheduling/internal/lock"
	"github.com/bloomcare/midwife-scheduling/internal/logging"
	"github.com/bloomcare/midwife-scheduling/internal/notification"
	"github.com/bloomcare/midwife-scheduling/internal/visit"
)

// The reminder worker sweeps the visit store for due, unsent reminders and
// dispatches them. It covers pg-backed deployments where no api-server
// instance holds in-process reminder timers.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.New(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if cfg.PostgresDSN == "" {
		logger.Fatal("POSTGRES_DSN is required: the reminder worker only makes sense against a shared store")
	}

	logger.Info("reminder-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	var locker lock.Locker = lock.NewMutexLocker()
	if cfg.RedisAddr != "" {
		rdb, err := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal("redis connection error", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedisProviderLocker(rdb, cfg.LockTTL)
	}

	pg := visit.NewPgStore(pgPool, visit.SystemClock)
	svc := visit.NewService(visit.ServiceOptions{
		Store:     pg,
		Avail:     pg,
		Notifier:  notification.NewLogNotifier(logger),
		Locker:    locker,
		Logger:    logger,
		DefaultTZ: cfg.DefaultTimezone,
	})

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *visit.Service, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := svc.DispatchDueReminders(runCtx)
	if err != nil {
		logger.Error("reminder sweep error", zap.Error(err))
		return
	}
	logger.Info("reminder sweep complete",
		zap.Int("sent", sent),
		zap.Duration("took", time.Since(start)))
}
