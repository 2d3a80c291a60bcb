package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// SentimentConfig holds configuration for the external sentiment-inference service
type SentimentConfig struct {
	// Endpoint is the base URL of the inference service; empty disables analysis
	Endpoint string
	// ServiceName identifies the dependency in persisted circuit state
	ServiceName string
	// Timeout is the per-attempt request timeout
	Timeout time.Duration
	// MaxAttempts bounds the retry loop
	MaxAttempts int
	// InitialBackoff is the delay before the first retry; doubles per attempt
	InitialBackoff time.Duration
	// FailureThreshold is the consecutive-failure count that opens the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open once tripped
	Cooldown time.Duration
	// MaxTextLength is the maximum input size sent to the service, in characters
	MaxTextLength int
}

// TTLConfig holds retention windows, expressed in whole days
type TTLConfig struct {
	JobDays       int
	SentimentDays int
	ArticleDays   int
	HistoricalDays int
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	// DynamoDBEndpoint overrides the endpoint for local development
	DynamoDBEndpoint string

	// UseMemoryStore swaps DynamoDB for the in-process store (local runs, tests)
	UseMemoryStore bool

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool

	// NewsEndpoint is the base URL of the article feed; empty disables batch jobs
	NewsEndpoint string

	Sentiment SentimentConfig
	TTL       TTLConfig

	// MaxDetachedTasks caps concurrent fire-and-forget background work
	MaxDetachedTasks int
}

// LoadConfig loads configuration from environment variables, with an optional
// YAML overlay applied first (see overlay.go)
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if err := applyOverlay(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config overlay: %w", err)
	}

	applyEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":8080",
		Environment:   "development",
		AWSRegion:     "us-east-1",
		DynamoDBTable: "stockpulse",
		LogLevel:      "info",
		EnableMetrics: true,
		Sentiment: SentimentConfig{
			ServiceName:      "sentiment-inference",
			Timeout:          5000 * time.Millisecond,
			MaxAttempts:      3,
			InitialBackoff:   1000 * time.Millisecond,
			FailureThreshold: 5,
			Cooldown:         30000 * time.Millisecond,
			MaxTextLength:    5000,
		},
		TTL: TTLConfig{
			JobDays:        1,
			SentimentDays:  7,
			ArticleDays:    30,
			HistoricalDays: 90,
		},
		MaxDetachedTasks: 4,
	}
}

// applyEnvironment applies environment variables on top of the current values.
// Environment variables are the highest-priority source.
func applyEnvironment(cfg *Config) {
	cfg.ServerAddress = getEnv("SERVER_ADDRESS", cfg.ServerAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.AWSRegion = getEnv("AWS_REGION", cfg.AWSRegion)
	cfg.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", cfg.DynamoDBTable))
	cfg.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", cfg.DynamoDBEndpoint)
	cfg.UseMemoryStore = getEnvBool("USE_MEMORY_STORE", cfg.UseMemoryStore)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.NewsEndpoint = getEnv("NEWS_ENDPOINT", cfg.NewsEndpoint)

	cfg.Sentiment.Endpoint = getEnv("SENTIMENT_ENDPOINT", cfg.Sentiment.Endpoint)
	cfg.Sentiment.ServiceName = getEnv("SENTIMENT_SERVICE_NAME", cfg.Sentiment.ServiceName)
	cfg.Sentiment.Timeout = getEnvMillis("SENTIMENT_TIMEOUT_MS", cfg.Sentiment.Timeout)
	cfg.Sentiment.MaxAttempts = getEnvInt("SENTIMENT_MAX_ATTEMPTS", cfg.Sentiment.MaxAttempts)
	cfg.Sentiment.InitialBackoff = getEnvMillis("SENTIMENT_BACKOFF_MS", cfg.Sentiment.InitialBackoff)
	cfg.Sentiment.FailureThreshold = getEnvInt("CIRCUIT_FAILURE_THRESHOLD", cfg.Sentiment.FailureThreshold)
	cfg.Sentiment.Cooldown = getEnvMillis("CIRCUIT_COOLDOWN_MS", cfg.Sentiment.Cooldown)
	cfg.Sentiment.MaxTextLength = getEnvInt("SENTIMENT_MAX_TEXT_LENGTH", cfg.Sentiment.MaxTextLength)

	cfg.TTL.JobDays = getEnvInt("TTL_JOB_DAYS", cfg.TTL.JobDays)
	cfg.TTL.SentimentDays = getEnvInt("TTL_SENTIMENT_DAYS", cfg.TTL.SentimentDays)
	cfg.TTL.ArticleDays = getEnvInt("TTL_ARTICLE_DAYS", cfg.TTL.ArticleDays)
	cfg.TTL.HistoricalDays = getEnvInt("TTL_HISTORICAL_DAYS", cfg.TTL.HistoricalDays)

	cfg.MaxDetachedTasks = getEnvInt("MAX_DETACHED_TASKS", cfg.MaxDetachedTasks)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if !c.UseMemoryStore && c.DynamoDBTable == "" {
		return fmt.Errorf("DYNAMODB_TABLE is required")
	}
	if c.Sentiment.MaxAttempts < 1 {
		return fmt.Errorf("SENTIMENT_MAX_ATTEMPTS must be at least 1")
	}
	if c.Sentiment.FailureThreshold < 1 {
		return fmt.Errorf("CIRCUIT_FAILURE_THRESHOLD must be at least 1")
	}
	if c.Sentiment.MaxTextLength < 1 {
		return fmt.Errorf("SENTIMENT_MAX_TEXT_LENGTH must be at least 1")
	}
	for name, days := range map[string]int{
		"TTL_JOB_DAYS":        c.TTL.JobDays,
		"TTL_SENTIMENT_DAYS":  c.TTL.SentimentDays,
		"TTL_ARTICLE_DAYS":    c.TTL.ArticleDays,
		"TTL_HISTORICAL_DAYS": c.TTL.HistoricalDays,
	} {
		if days < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvMillis gets a millisecond duration environment variable with a default value
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal >= 0 {
			return time.Duration(intVal) * time.Millisecond
		}
	}
	return defaultValue
}
