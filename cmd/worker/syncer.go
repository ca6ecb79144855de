package worker

import (
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/es"
	"github.com/hyeonlog/contact-hub/internal/logger"
	"github.com/hyeonlog/contact-hub/internal/metrics"
	"github.com/hyeonlog/contact-hub/internal/queue"
)

var syncerCmd = &cobra.Command{
	Use:   "syncer",
	Short: "Consume sync jobs and apply them to the search index",
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

		esClient, err := es.NewClient(cfg.Elasticsearch)
		if err != nil {
			return fmt.Errorf("elasticsearch connect: %w", err)
		}
		index := es.NewContactIndex(esClient, cfg.Elasticsearch.Index, zlog)

		concurrency := cfg.Queue.Concurrency
		if concurrency <= 0 {
			concurrency = 16
		}
		liveWeight, reindexWeight := cfg.Queue.LiveWeight, cfg.Queue.ReindexWeight
		if liveWeight <= 0 {
			liveWeight = 5
		}
		if reindexWeight <= 0 {
			reindexWeight = 1
		}

		srv := asynq.NewServer(
			asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
			asynq.Config{
				Concurrency: concurrency,
				Queues: map[string]int{
					queue.QueueLive:    liveWeight,
					queue.QueueReindex: reindexWeight,
				},
			},
		)

		mux := queue.NewMux(queue.NewSyncer(index, zlog))

		log.Printf(">> syncer started concurrency=%d queues=%s:%d,%s:%d",
			concurrency, queue.QueueLive, liveWeight, queue.QueueReindex, reindexWeight)

		// Run blocks until SIGINT/SIGTERM and drains in-flight tasks.
		return srv.Run(mux)
	},
}
