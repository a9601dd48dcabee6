package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable at build time
// with -ldflags "-X pdfchat/internal/config.ConfigPath=...".
var ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// DatabaseURL empty means the in-memory store.
	DatabaseURL string `yaml:"databaseURL"`

	GenerationProvider string `yaml:"generationProvider"` // gemini | ollama | openai | none
	GenerationModel    string `yaml:"generationModel"`
	GenerationBaseURL  string `yaml:"generationBaseURL"`
	GenerationAPIKey   string `yaml:"generationAPIKey"`
	GeminiAPIKey       string `yaml:"geminiAPIKey"`

	EmbeddingProvider string `yaml:"embeddingProvider"` // hash | gemini | ollama
	EmbeddingModel    string `yaml:"embeddingModel"`
	EmbeddingBaseURL  string `yaml:"embeddingBaseURL"`
	EmbeddingDim      int    `yaml:"embeddingDim"`

	TopK                     int   `yaml:"topK"`
	MaxChunkSize             int   `yaml:"maxChunkSize"`
	EmbedConcurrency         int   `yaml:"embedConcurrency"`
	GenerationTimeoutSeconds int   `yaml:"generationTimeoutSeconds"`
	MaxUploadBytes           int64 `yaml:"maxUploadBytes"`

	// Redis ingestion queue; empty redisAddr disables async ingestion.
	RedisAddr        string `yaml:"redisAddr"`
	RedisPassword    string `yaml:"redisPassword"`
	QueueStream      string `yaml:"queueStream"`
	QueueGroup       string `yaml:"queueGroup"`
	QueueConcurrency int    `yaml:"queueConcurrency"`
	QueueMaxRetries  int    `yaml:"queueMaxRetries"`

	// MinIO upload retention; empty endpoint disables it.
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.EmbeddingBaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.GenerationProvider == "" {
		cfg.GenerationProvider = "none"
	}
	if cfg.EmbeddingProvider == "" {
		cfg.EmbeddingProvider = "hash"
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = 768
	}
	if cfg.QueueStream == "" {
		cfg.QueueStream = "pdfchat:ingest"
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "ingest-workers"
	}
	if cfg.QueueConcurrency <= 0 {
		cfg.QueueConcurrency = 2
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.GenerationProvider {
	case "none":
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
		}
		if cfg.GenerationModel == "" {
			return errors.New("config: generationModel is required (set in config.yaml)")
		}
	case "ollama":
		if cfg.GenerationModel == "" {
			return errors.New("config: generationModel is required (set in config.yaml)")
		}
	case "openai":
		if cfg.GenerationBaseURL == "" {
			return errors.New("config: generationBaseURL is required (set in config.yaml or GENERATION_BASE_URL)")
		}
		if cfg.GenerationModel == "" {
			return errors.New("config: generationModel is required (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown generationProvider %q", cfg.GenerationProvider)
	}
	switch cfg.EmbeddingProvider {
	case "hash":
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return errors.New("config: geminiAPIKey is required (set in config.yaml or GEMINI_API_KEY)")
		}
		if cfg.EmbeddingModel == "" {
			return errors.New("config: embeddingModel is required (set in config.yaml)")
		}
	case "ollama":
		if cfg.EmbeddingModel == "" {
			return errors.New("config: embeddingModel is required (set in config.yaml)")
		}
	default:
		return fmt.Errorf("config: unknown embeddingProvider %q", cfg.EmbeddingProvider)
	}
	if cfg.RedisAddr != "" && cfg.MinioEndpoint == "" {
		return errors.New("config: async ingestion requires minioEndpoint alongside redisAddr")
	}
	if cfg.MinioEndpoint != "" && strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set")
	}
	return nil
}
