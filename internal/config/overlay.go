package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// overlayFile describes the optional YAML configuration file. Fields are
// pointers so an absent key leaves the default untouched.
type overlayFile struct {
	ServerAddress *string `yaml:"server_address"`
	Environment   *string `yaml:"environment"`
	AWSRegion     *string `yaml:"aws_region"`
	DynamoDBTable *string `yaml:"dynamodb_table"`
	LogLevel      *string `yaml:"log_level"`
	EnableMetrics *bool   `yaml:"enable_metrics"`
	NewsEndpoint  *string `yaml:"news_endpoint"`

	Sentiment struct {
		Endpoint         *string `yaml:"endpoint"`
		ServiceName      *string `yaml:"service_name"`
		TimeoutMs        *int    `yaml:"timeout_ms"`
		MaxAttempts      *int    `yaml:"max_attempts"`
		BackoffMs        *int    `yaml:"backoff_ms"`
		FailureThreshold *int    `yaml:"failure_threshold"`
		CooldownMs       *int    `yaml:"cooldown_ms"`
		MaxTextLength    *int    `yaml:"max_text_length"`
	} `yaml:"sentiment"`

	TTL struct {
		JobDays        *int `yaml:"job_days"`
		SentimentDays  *int `yaml:"sentiment_days"`
		ArticleDays    *int `yaml:"article_days"`
		HistoricalDays *int `yaml:"historical_days"`
	} `yaml:"ttl"`
}

// applyOverlay reads CONFIG_FILE (if set and present) and applies it on top of
// the defaults. Environment variables still win; they are applied afterwards.
func applyOverlay(cfg *Config) error {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var overlay overlayFile
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}

	setString(&cfg.ServerAddress, overlay.ServerAddress)
	setString(&cfg.Environment, overlay.Environment)
	setString(&cfg.AWSRegion, overlay.AWSRegion)
	setString(&cfg.DynamoDBTable, overlay.DynamoDBTable)
	setString(&cfg.LogLevel, overlay.LogLevel)
	if overlay.EnableMetrics != nil {
		cfg.EnableMetrics = *overlay.EnableMetrics
	}
	setString(&cfg.NewsEndpoint, overlay.NewsEndpoint)

	setString(&cfg.Sentiment.Endpoint, overlay.Sentiment.Endpoint)
	setString(&cfg.Sentiment.ServiceName, overlay.Sentiment.ServiceName)
	setMillis(&cfg.Sentiment.Timeout, overlay.Sentiment.TimeoutMs)
	setInt(&cfg.Sentiment.MaxAttempts, overlay.Sentiment.MaxAttempts)
	setMillis(&cfg.Sentiment.InitialBackoff, overlay.Sentiment.BackoffMs)
	setInt(&cfg.Sentiment.FailureThreshold, overlay.Sentiment.FailureThreshold)
	setMillis(&cfg.Sentiment.Cooldown, overlay.Sentiment.CooldownMs)
	setInt(&cfg.Sentiment.MaxTextLength, overlay.Sentiment.MaxTextLength)

	setInt(&cfg.TTL.JobDays, overlay.TTL.JobDays)
	setInt(&cfg.TTL.SentimentDays, overlay.TTL.SentimentDays)
	setInt(&cfg.TTL.ArticleDays, overlay.TTL.ArticleDays)
	setInt(&cfg.TTL.HistoricalDays, overlay.TTL.HistoricalDays)

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setMillis(dst *time.Duration, src *int) {
	if src != nil {
		*dst = time.Duration(*src) * time.Millisecond
	}
}
