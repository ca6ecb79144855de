package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/db"
	"github.com/hyeonlog/contact-hub/internal/es"
	httpSrv "github.com/hyeonlog/contact-hub/internal/http"
	"github.com/hyeonlog/contact-hub/internal/logger"
	"github.com/hyeonlog/contact-hub/internal/queue"
	"github.com/hyeonlog/contact-hub/internal/repository"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		zlog := logger.L()
		defer func() { _ = zlog.Sync() }()

		mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		redisClient, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = redisClient.Close() }()

		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return fmt.Errorf("elasticsearch connect: %w", err)
		}
		index := es.NewContactIndex(esClient, cfg.Elasticsearch.Index, zlog)

		fieldsRepo := repository.NewFieldDefinitionsRepository(mysqlDB)
		defs, err := fieldsRepo.ListActive(cmd.Context())
		if err != nil {
			return fmt.Errorf("load field definitions: %w", err)
		}
		if err := index.Ensure(cmd.Context(), defs); err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}

		queueClient := queue.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Queue.MaxRetry)
		defer func() { _ = queueClient.Close() }()

		server := httpSrv.NewServer(cfg, mysqlDB, redisClient, index, queueClient, zlog)

		errCh := make(chan error, 1)
		go func() {
			log.Printf("starting http on %s", cfg.HTTP.Addr)
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Printf("signal received: %s, shutting down...", sig)
		case err := <-errCh:
			if err != nil {
				log.Printf("http server exited: %v", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
