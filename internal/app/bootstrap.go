package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"ragmine/internal/config"
)

type Dependencies struct {
	DB          *sql.DB
	Weaviate    *weaviate.Client
	NSQProducer *nsq.Producer
	Redis       *redis.Client
}

// Bootstrap opens and verifies every external connection the service
// needs. Postgres is mandatory; Weaviate is only dialed when the engine
// is enabled, and Redis is skipped entirely without an address.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	deps := &Dependencies{DB: db}

	if engineEnabled(cfg, "weaviate") {
		wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
		wClient, err := weaviate.NewClient(wCfg)
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		deps.Weaviate = wClient
	}

	nsqCfg := nsq.NewConfig()
	producer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	createTopics(cfg.NSQDHTTP)

	if cfg.RedisAddr != "" {
		deps.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := deps.Redis.Ping(ctx).Err(); err != nil {
			// Cache is an optimization; a dead Redis must not stop boot.
			slog.Warn("redis unreachable, query cache disabled", "addr", cfg.RedisAddr, "error", err)
			deps.Redis = nil
		}
	}

	return deps, nil
}

func engineEnabled(cfg *config.Config, kind string) bool {
	for _, e := range cfg.EnabledEngines {
		if e == kind {
			return true
		}
	}
	return false
}

// createTopics pre-creates every topic via the nsqd HTTP API so that
// consumers querying lookupd do not 404 before the first publish.
func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		for _, topic := range config.Topics {
			create(topic)
		}
	}()
}
