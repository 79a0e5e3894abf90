package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the docpipe server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Extraction ExtractionConfig
	Pipeline   PipelineConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	MaxUploadSize int64
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type StorageConfig struct {
	// Backend is "fs" or "memory"; memory is only meant for dev/test.
	Backend string
	Root    string
}

type ExtractionConfig struct {
	Provider  string
	Timeout   time.Duration
	Tesseract TesseractConfig
	OpenAI    OpenAIConfig
}

type TesseractConfig struct {
	Language string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type PipelineConfig struct {
	JobWorkers        int
	MaxExtractions    int
	PerJobExtractions int
	MaxAttempts       int
	RetryBackoffBase  time.Duration
	RetryBackoffCap   time.Duration
	SubmitQueueSize   int
	JobStateCacheTTL  time.Duration
}

var validProviders = map[string]bool{
	"tesseract": true,
	"openai":    true,
	"mock":      true,
}

var validStorageBackends = map[string]bool{
	"fs":     true,
	"memory": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:          envInt("DOCPIPE_PORT", 8080),
			Env:           envString("DOCPIPE_ENV", "development"),
			MaxUploadSize: int64(envInt("DOCPIPE_MAX_UPLOAD_BYTES", 32<<20)),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			Backend: envString("STORAGE_BACKEND", "fs"),
			Root:    envString("STORAGE_ROOT", "/var/lib/docpipe/blobs"),
		},
		Extraction: ExtractionConfig{
			Provider: os.Getenv("EXTRACTION_PROVIDER"),
			Timeout:  envDurationSecs("EXTRACTION_TIMEOUT_SECS", 60*time.Second),
			Tesseract: TesseractConfig{
				Language: envString("TESSERACT_LANGUAGE", "eng"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
		Pipeline: PipelineConfig{
			JobWorkers:        envInt("PIPELINE_JOB_WORKERS", 4),
			MaxExtractions:    envInt("PIPELINE_MAX_EXTRACTIONS", 8),
			PerJobExtractions: envInt("PIPELINE_PER_JOB_EXTRACTIONS", 2),
			MaxAttempts:       envInt("PIPELINE_MAX_ATTEMPTS", 3),
			RetryBackoffBase:  envDuration("PIPELINE_RETRY_BACKOFF_BASE", 500*time.Millisecond),
			RetryBackoffCap:   envDuration("PIPELINE_RETRY_BACKOFF_CAP", 30*time.Second),
			SubmitQueueSize:   envInt("PIPELINE_SUBMIT_QUEUE_SIZE", 256),
			JobStateCacheTTL:  envDuration("PIPELINE_JOB_STATE_CACHE_TTL", 30*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validStorageBackends[c.Storage.Backend] {
		return fmt.Errorf("STORAGE_BACKEND must be one of fs, memory; got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "fs" && c.Storage.Root == "" {
		return fmt.Errorf("STORAGE_ROOT is required when STORAGE_BACKEND is fs")
	}

	if c.Extraction.Provider == "" {
		return fmt.Errorf("EXTRACTION_PROVIDER is required")
	}
	if !validProviders[c.Extraction.Provider] {
		return fmt.Errorf("EXTRACTION_PROVIDER must be one of tesseract, openai, mock; got %q", c.Extraction.Provider)
	}
	if c.Extraction.Provider == "openai" && c.Extraction.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when EXTRACTION_PROVIDER is openai")
	}

	if c.Server.MaxUploadSize < 1 {
		return fmt.Errorf("DOCPIPE_MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadSize)
	}
	if c.Pipeline.JobWorkers < 1 {
		return fmt.Errorf("PIPELINE_JOB_WORKERS must be at least 1, got %d", c.Pipeline.JobWorkers)
	}
	if c.Pipeline.MaxExtractions < 1 {
		return fmt.Errorf("PIPELINE_MAX_EXTRACTIONS must be at least 1, got %d", c.Pipeline.MaxExtractions)
	}
	if c.Pipeline.PerJobExtractions < 1 {
		return fmt.Errorf("PIPELINE_PER_JOB_EXTRACTIONS must be at least 1, got %d", c.Pipeline.PerJobExtractions)
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be at least 1, got %d", c.Pipeline.MaxAttempts)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
