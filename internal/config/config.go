// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	// PublicURL is the externally visible base URL for generated media
	// links. Defaults to http://localhost:<port>.
	PublicURL string

	// Knowledge store.
	KnowledgeDBPath string
	SeedDir         string

	// DashScope text generation (compatible mode).
	DashScopeAPIKey string
	LLMBaseURL      string
	LLMModel        string
	LLMTemperature  float64
	LLMMaxTokens    int
	EmbeddingModel  string

	// DashScope image generation (native async API).
	ImageBaseURL  string
	ImageModel    string
	ImageSize     string
	ImageTimeout  time.Duration
	MediaDir      string
	MockImagesDir string

	// Government open-data lookup.
	GovernmentAPIBaseURL string
	GovernmentAPIKey     string
	GovernmentTimeout    time.Duration
	GovernmentRetries    int

	SensitiveWordsPath string
	PromptsPath        string

	SessionTTL    time.Duration
	TaskRetention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		PublicURL:   getEnv("PUBLIC_URL", ""),

		KnowledgeDBPath: getEnv("KNOWLEDGE_DB_PATH", "./data/knowledge.db"),
		SeedDir:         getEnv("KNOWLEDGE_SEED_DIR", "./data/knowledge"),

		DashScopeAPIKey: getEnv("DASHSCOPE_API_KEY", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		LLMModel:        getEnv("LLM_MODEL_NAME", "qwen-flash"),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 2000),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL_NAME", "text-embedding-v2"),

		ImageBaseURL:  getEnv("IMAGE_BASE_URL", "https://dashscope.aliyuncs.com/api/v1"),
		ImageModel:    getEnv("IMAGE_MODEL_NAME", "wan2.2-t2i-plus"),
		ImageSize:     getEnv("IMAGE_SIZE", "1024*1024"),
		ImageTimeout:  getEnvDuration("IMAGE_GENERATION_TIMEOUT", 2*time.Minute),
		MediaDir:      getEnv("MEDIA_DIR", "./data/generated_images"),
		MockImagesDir: getEnv("MOCK_IMAGES_DIR", "./data/mock_images"),

		GovernmentAPIBaseURL: getEnv("GOVERNMENT_API_BASE_URL", ""),
		GovernmentAPIKey:     getEnv("GOVERNMENT_API_KEY", ""),
		GovernmentTimeout:    getEnvDuration("GOVERNMENT_API_TIMEOUT", 30*time.Second),
		GovernmentRetries:    getEnvInt("GOVERNMENT_API_RETRY", 3),

		SensitiveWordsPath: getEnv("SENSITIVE_WORDS_PATH", "./data/sensitive_words.txt"),
		PromptsPath:        getEnv("PROMPTS_PATH", ""),

		SessionTTL:    getEnvDuration("SESSION_TTL", 60*time.Minute),
		TaskRetention: getEnvDuration("TASK_RETENTION", 24*time.Hour),
	}

	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:" + cfg.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.KnowledgeDBPath == "" {
		return fmt.Errorf("KNOWLEDGE_DB_PATH cannot be empty")
	}
	if c.MediaDir == "" {
		return fmt.Errorf("MEDIA_DIR cannot be empty")
	}
	if c.LLMBaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL cannot be empty")
	}
	if c.GovernmentRetries <= 0 {
		return fmt.Errorf("GOVERNMENT_API_RETRY must be > 0")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	return nil
}

// HasDashScopeKey reports whether the generation provider is configured.
// Without a key every generation call degrades to its mock path.
func (c *Config) HasDashScopeKey() bool {
	return c.DashScopeAPIKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
