// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartQueueDepthUpdater samples the work and uws queue lengths on an
// interval and publishes them to the QueueDepth gauge.
func StartQueueDepthUpdater(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger) {
	interval := cfg.Queue.ResultPollInterval * 4
	if interval <= 0 {
		interval = 2 * time.Second
	}
	queues := []string{cfg.Queue.WorkQueueName, cfg.Queue.UWSQueueName}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, q := range queues {
					n, err := rdb.LLen(ctx, q).Result()
					if err != nil {
						log.Debug("queue depth poll error", String("queue", q), Err(err))
						continue
					}
					QueueDepth.WithLabelValues(q).Set(float64(n))
				}
			}
		}
	}()
}
