package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/db"
	"github.com/hyeonlog/contact-hub/internal/logger"
	"github.com/hyeonlog/contact-hub/internal/metrics"
	"github.com/hyeonlog/contact-hub/internal/outbox"
	"github.com/hyeonlog/contact-hub/internal/queue"
	"github.com/hyeonlog/contact-hub/internal/repository"
)

var reconcilerCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Sweep the outbox and guarantee delivery of sync jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		zlog := logger.L()
		defer func() { _ = zlog.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		queueClient := queue.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Queue.MaxRetry)
		defer func() { _ = queueClient.Close() }()

		outboxRepo := repository.NewOutboxRepository(dbx)
		rec := outbox.NewReconciler(outboxRepo, queueClient, cfg.Outbox, zlog)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> reconciler started pending=%s retry=%s reclaim=%s",
			cfg.Outbox.PendingInterval, cfg.Outbox.RetryInterval, cfg.Outbox.ReclaimInterval)

		return rec.Run(ctx)
	},
}
