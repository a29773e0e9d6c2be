package cli

import (
	"compass/cache"
	"compass/config"
	"compass/queue"
	"compass/stores"
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// deps are the shared server resources, opened once per command.
type deps struct {
	store   stores.Store
	cache   cache.Cache
	redis   *redis.Client
	broker  queue.Broker
	backend queue.Backend
}

func retention(cfg config.QueueConfig) queue.Retention {
	return queue.Retention{
		CompletedAge: cfg.CompletedRetention.Duration(),
		CompletedMax: cfg.CompletedMax,
		FailedMax:    cfg.FailedMax,
	}
}

func workerOptions(cfg config.QueueConfig) queue.Options {
	return queue.Options{
		Concurrency:   cfg.Concurrency,
		RatePerSecond: cfg.RatePerSecond,
		Attempts:      cfg.Attempts,
		Backoff:       cfg.Backoff.Duration(),
	}
}

func openDeps(ctx context.Context, cfg *config.Config) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	if d.store, err = stores.GetStore(ctx, cfg.Storage); err != nil {
		return nil, err
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		d.redis = redis.NewClient(opts)
		if err := d.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logrus.WithField("addr", opts.Addr).Info("Connected to redis")
		d.cache = cache.NewRedisCacheFromClient(d.redis)
	} else {
		d.cache = cache.NewMemoryCache()
	}

	switch cfg.Queue.Backend {
	case "redis":
		if d.redis == nil {
			return nil, fmt.Errorf("queue backend redis needs REDIS_URL")
		}
		d.broker = queue.NewRedisBroker(d.redis, retention(cfg.Queue))
		d.backend = queue.NewQueuedBackend(d.broker)
	case "memory", "":
		d.broker = queue.NewMemoryBroker(retention(cfg.Queue))
		d.backend = queue.NewQueuedBackend(d.broker)
	case "direct":
		d.backend = queue.NewDirectBackend(queue.NewUpsertHandler(d.store))
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
	logrus.WithField("backend", cfg.Queue.Backend).Info("Use persistence backend")
	return d, nil
}

func (d *deps) close() {
	if d.cache != nil {
		if err := d.cache.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close cache")
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis")
		}
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	}
}
