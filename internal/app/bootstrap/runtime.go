package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	appconfig "github.com/autoflowlabs/consultancy-crm/internal/config"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, falling back to memory stores", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// ConnectPostgres opens a pool when url is set. An empty url returns nil so the
// caller runs on in-memory repositories.
func ConnectPostgres(ctx context.Context, url string, logger *logging.Logger) (*pgxpool.Pool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres")
	return pool, nil
}

// SQLFromPool exposes the pool through database/sql for the reporting queries.
func SQLFromPool(pool *pgxpool.Pool) *sql.DB {
	if pool == nil {
		return nil
	}
	return stdlib.OpenDBFromPool(pool)
}

// SchedulingDefaults seeds the settings store from environment overrides.
func SchedulingDefaults(cfg *appconfig.Config) scheduling.Settings {
	settings := scheduling.DefaultSettings()
	if cfg == nil {
		return settings
	}
	if tz := strings.TrimSpace(cfg.BusinessTimezone); tz != "" {
		settings.Timezone = tz
	}
	if cfg.SlotGranularityMinutes > 0 {
		settings.GranularityMinutes = cfg.SlotGranularityMinutes
	}
	if cfg.MaxRecommendations > 0 {
		settings.MaxRecommendations = cfg.MaxRecommendations
	}
	return settings
}

// BuildSessionCreator picks Stripe when a secret key is configured. Otherwise
// checkout links point at the built-in fake checkout page and fake is true.
func BuildSessionCreator(cfg *appconfig.Config, logger *logging.Logger) (creator billing.SessionCreator, fake bool) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && strings.TrimSpace(cfg.StripeSecretKey) != "" {
		return billing.NewStripeSessionCreator(cfg.StripeSecretKey), false
	}
	base := "http://localhost:8080"
	if cfg != nil && cfg.PublicBaseURL != "" {
		base = cfg.PublicBaseURL
	}
	logger.Warn("STRIPE_SECRET_KEY not set, using fake checkout", "base_url", base)
	return billing.FakeSessionCreator{BaseURL: base}, true
}
