package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"claims"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"claims"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	OCRURL       string `envconfig:"OCR_URL" default:"http://ocr:8884"`

	// VectorBackend selects where policy chunks live: "memory" keeps an
	// in-process index, "weaviate" uses an external cluster.
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"memory"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	PolicyDir       string `envconfig:"POLICY_DIR" default:"./policies"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`

	ChunkMaxChars     int `envconfig:"CHUNK_MAX_CHARS" default:"2000"`
	ChunkOverlapChars int `envconfig:"CHUNK_OVERLAP_CHARS" default:"200"`
	SearchTopK        int `envconfig:"SEARCH_TOP_K" default:"5"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
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
	if c.VectorBackend != "memory" && c.VectorBackend != "weaviate" {
		return fmt.Errorf("%w: VECTOR_BACKEND must be memory or weaviate", ErrMissingRequired)
	}
	if c.ChunkOverlapChars >= c.ChunkMaxChars {
		return fmt.Errorf("%w: CHUNK_OVERLAP_CHARS must be smaller than CHUNK_MAX_CHARS", ErrMissingRequired)
	}
	return nil
}
