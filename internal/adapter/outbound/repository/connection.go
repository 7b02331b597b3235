package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig holds the settings needed to open the PostgreSQL pool.
// Schema is mandatory: every query in this package addresses tables
// through the search_path rather than qualifying them inline.
type DatabaseConfig struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	Schema          string
	MaxConnections  int
	MinConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	SSLMode         string
}

// Validate reports the first missing or out-of-range field.
func (c DatabaseConfig) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("host is required")
	case c.Port <= 0 || c.Port > 65535:
		return errors.New("port must be between 1 and 65535")
	case c.Database == "":
		return errors.New("database is required")
	case c.Username == "":
		return errors.New("username is required")
	case c.Schema == "":
		return errors.New("schema is required")
	}
	return nil
}

// connString renders the config as a keyword/value DSN. SSLMode defaults
// to disable when unset.
func (c DatabaseConfig) connString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s search_path=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, sslMode, c.Schema,
	)
}

// NewDatabaseConnection opens a pgx pool for the configured database and
// verifies it with a ping. The pgvector codec is registered on every new
// connection so vector columns scan into pgvector.Vector values directly.
func NewDatabaseConnection(config DatabaseConfig) (*pgxpool.Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(config.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = 10
	if config.MaxConnections > 0 {
		poolConfig.MaxConns = int32(config.MaxConnections)
	}
	if config.MinConnections > 0 {
		poolConfig.MinConns = int32(config.MinConnections)
	}
	if config.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.ConnMaxIdleTime
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return pool, nil
}

// Health metric caching defaults. Caching stays off unless a caller opts
// in through WithCache.
const (
	DefaultCacheTTL     = 5 * time.Second
	DefaultCacheEnabled = false
)

// HealthCheckCacheConfig controls reuse of collected health metrics.
type HealthCheckCacheConfig struct {
	TTL     time.Duration
	Enabled bool
}

// IsValid reports whether the configuration actually caches anything.
func (c HealthCheckCacheConfig) IsValid() bool {
	return c.Enabled && c.TTL > 0
}

// metricsCache memoizes one HealthMetrics snapshot for the configured TTL.
type metricsCache struct {
	config   HealthCheckCacheConfig
	mu       sync.Mutex
	snapshot *HealthMetrics
	takenAt  time.Time
}

func newMetricsCache(config HealthCheckCacheConfig) *metricsCache {
	return &metricsCache{config: config}
}

// get returns the cached snapshot while it is still fresh, otherwise runs
// fetch and stores the result. Concurrent callers serialize on the fetch,
// so the database sees at most one collection per TTL window.
func (c *metricsCache) get(ctx context.Context, fetch func(context.Context) *HealthMetrics) *HealthMetrics {
	if !c.config.IsValid() {
		return fetch(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && time.Since(c.takenAt) < c.config.TTL {
		return c.snapshot
	}

	c.snapshot = fetch(ctx)
	c.takenAt = time.Now()
	return c.snapshot
}

// HealthMetrics is a point-in-time snapshot of pool state.
type HealthMetrics struct {
	TotalConnections  int32
	ActiveConnections int32
	IdleConnections   int32
	ResponseTime      time.Duration
}

// HealthCheckerOption configures a DatabaseHealthChecker.
type HealthCheckerOption func(*DatabaseHealthChecker)

// WithCache enables metric caching with the given configuration.
func WithCache(config HealthCheckCacheConfig) HealthCheckerOption {
	return func(hc *DatabaseHealthChecker) {
		hc.cache = newMetricsCache(config)
	}
}

// DatabaseHealthChecker answers liveness probes against the pool and
// collects connection statistics for health reports.
type DatabaseHealthChecker struct {
	pool  *pgxpool.Pool
	cache *metricsCache
}

// NewDatabaseHealthChecker wraps the pool. A nil pool is tolerated and
// reports unhealthy, which keeps startup probes usable when the database
// never came up.
func NewDatabaseHealthChecker(pool *pgxpool.Pool, opts ...HealthCheckerOption) *DatabaseHealthChecker {
	hc := &DatabaseHealthChecker{
		pool:  pool,
		cache: newMetricsCache(HealthCheckCacheConfig{TTL: DefaultCacheTTL, Enabled: DefaultCacheEnabled}),
	}
	for _, opt := range opts {
		opt(hc)
	}
	return hc
}

// IsHealthy reports whether the database answers a ping.
func (h *DatabaseHealthChecker) IsHealthy(ctx context.Context) bool {
	if h.pool == nil {
		return false
	}
	return h.pool.Ping(ctx) == nil
}

// GetMetrics returns current pool statistics, or nil without a pool.
// Results are reused for the cache TTL when caching was enabled.
func (h *DatabaseHealthChecker) GetMetrics(ctx context.Context) *HealthMetrics {
	return h.cache.get(ctx, h.collect)
}

// collect measures ping latency and reads the pool counters. The ping
// error is ignored here; an unreachable database still yields a snapshot
// carrying the observed latency.
func (h *DatabaseHealthChecker) collect(ctx context.Context) *HealthMetrics {
	if h.pool == nil {
		return nil
	}

	start := time.Now()
	_ = h.pool.Ping(ctx)
	elapsed := time.Since(start)

	stats := h.pool.Stat()
	return &HealthMetrics{
		TotalConnections:  stats.TotalConns(),
		ActiveConnections: stats.AcquiredConns(),
		IdleConnections:   stats.IdleConns(),
		ResponseTime:      elapsed,
	}
}
