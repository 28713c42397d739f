package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Key prefixes owned by the service. Kept in sync with internal/ratelimit and
// internal/repository.
const (
	rateLimitKeyPattern     = "lambdaauth:rl:*"
	identityCacheKeyPattern = "lambdaauth:identity:*"
	maxScanKeys             = 10000
)

type redisCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	bucketsDesc *prometheus.Desc
	cachedDesc  *prometheus.Desc
}

func newRedisCollector(rdb *redis.Client, logger *slog.Logger) *redisCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisCollector{
		rdb:    rdb,
		logger: logger,
		bucketsDesc: prometheus.NewDesc(
			"lambdaauth_rate_limit_buckets",
			"Current number of live rate limit buckets.",
			nil,
			nil,
		),
		cachedDesc: prometheus.NewDesc(
			"lambdaauth_identity_cache_entries",
			"Current number of cached identities.",
			nil,
			nil,
		),
	}
}

func (c *redisCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bucketsDesc
	ch <- c.cachedDesc
}

func (c *redisCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	buckets, err := countKeys(ctx, c.rdb, rateLimitKeyPattern)
	if err != nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}
	cached, err := countKeys(ctx, c.rdb, identityCacheKeyPattern)
	if err != nil {
		c.logger.Warn("prometheus redis collector failed", "err", err)
		return
	}

	emitGauge(ch, c.bucketsDesc, float64(buckets))
	emitGauge(ch, c.cachedDesc, float64(cached))
}

func countKeys(ctx context.Context, rdb *redis.Client, pattern string) (int, error) {
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return 0, err
		}
		n += len(keys)
		cursor = next
		if cursor == 0 || n >= maxScanKeys {
			return n, nil
		}
	}
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerRedisCollectorOnce sync.Once

func RegisterRedisCollector(rdb *redis.Client, logger *slog.Logger) {
	registerRedisCollectorOnce.Do(func() {
		prometheus.MustRegister(newRedisCollector(rdb, logger))
	})
}
