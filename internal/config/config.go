package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"ragmine"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"ragmine"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Externally managed retrieval index (create/delete of the index itself
	// happens outside this service; we only read and write documents).
	ManagedIndexURL    string `envconfig:"MANAGED_INDEX_URL"`
	ManagedIndexAPIKey string `envconfig:"MANAGED_INDEX_API_KEY"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	HostedEmbedURL  string `envconfig:"HOSTED_EMBED_URL"`
	EmbedRPS        int    `envconfig:"EMBED_RPS" default:"10"`
	EmbedMaxRetries int    `envconfig:"EMBED_MAX_RETRIES" default:"4"`

	EnabledEngines []string `envconfig:"ENABLED_ENGINES" default:"pgvector,weaviate"`

	DefaultChunkSize    int     `envconfig:"DEFAULT_CHUNK_SIZE" default:"1000"`
	DefaultChunkOverlap float64 `envconfig:"DEFAULT_CHUNK_OVERLAP" default:"0.1"`
	MaxCrawlDepth       int     `envconfig:"MAX_CRAWL_DEPTH" default:"3"`
	MaxCrawlPages       int     `envconfig:"MAX_CRAWL_PAGES" default:"200"`

	IngestionConcurrency int    `envconfig:"INGESTION_CONCURRENCY" default:"8"`
	MigrationPath        string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"100"`
	UploadDir       string `envconfig:"RAGMINE_UPLOAD_DIR" default:"./uploads"`

	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may also be set in the shell, so a missing .env is fine.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if len(c.EnabledEngines) == 0 {
		return fmt.Errorf("%w: ENABLED_ENGINES", ErrMissingRequired)
	}
	for _, e := range c.EnabledEngines {
		switch strings.TrimSpace(e) {
		case "pgvector", "weaviate", "managed":
		default:
			return fmt.Errorf("unknown engine kind %q in ENABLED_ENGINES", e)
		}
	}
	if c.DefaultChunkOverlap < 0 || c.DefaultChunkOverlap >= 1 {
		return fmt.Errorf("DEFAULT_CHUNK_OVERLAP must be in [0,1)")
	}
	return nil
}
