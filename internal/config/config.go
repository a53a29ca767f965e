package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the opportunity record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	DatabasePath      string        `yaml:"database_path" mapstructure:"database_path"`
	ProcessingTimeout time.Duration `yaml:"processing_timeout" mapstructure:"processing_timeout"`
	RetentionTTL      time.Duration `yaml:"retention_ttl" mapstructure:"retention_ttl"`
}

// AnthropicConfig holds Anthropic API settings and per-stage budgets.
type AnthropicConfig struct {
	Key       string      `yaml:"key" mapstructure:"key"`
	Model     string      `yaml:"model" mapstructure:"model"`
	Extractor StageConfig `yaml:"extractor" mapstructure:"extractor"`
	Generator StageConfig `yaml:"generator" mapstructure:"generator"`
	Scorer    StageConfig `yaml:"scorer" mapstructure:"scorer"`
}

// StageConfig bounds one stage agent invocation. MaxSteps caps the reasoning
// loop (tool calls plus synthesis turns); zero means sized per input at
// runtime. MaxTokens bounds each completion.
type StageConfig struct {
	MaxTokens int64 `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxSteps  int   `yaml:"max_steps" mapstructure:"max_steps"`
}

// SourceConfig configures the document source client.
type SourceConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	Topic         string        `yaml:"topic" mapstructure:"topic"`
	FetchLimit    int           `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	MaxFetchLimit int           `yaml:"max_fetch_limit" mapstructure:"max_fetch_limit"`
	RatePerSec    float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// NotifyConfig configures the outbound digest webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	Recipient  string `yaml:"recipient" mapstructure:"recipient"`
	DigestSize int    `yaml:"digest_size" mapstructure:"digest_size"`
}

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	WallClockBudget time.Duration `yaml:"wall_clock_budget" mapstructure:"wall_clock_budget"`
	// ToolResults enables the tool-result reconstruction strategy in the
	// extraction cascade.
	ToolResults bool `yaml:"tool_results" mapstructure:"tool_results"`
}

// ScoringConfig carries the hand-tuned fallback scoring heuristics. The
// defaults reproduce the legacy constants; changing them is a product
// decision, not a tuning exercise.
type ScoringConfig struct {
	UrgencyKeywords        []string `yaml:"urgency_keywords" mapstructure:"urgency_keywords"`
	LargeMarketCategories  []string `yaml:"large_market_categories" mapstructure:"large_market_categories"`
	BroadAudienceTerms     []string `yaml:"broad_audience_terms" mapstructure:"broad_audience_terms"`
	OversaturatedKeywords  []string `yaml:"oversaturated_keywords" mapstructure:"oversaturated_keywords"`
	ComplexCategoryTerms   []string `yaml:"complex_category_terms" mapstructure:"complex_category_terms"`
	EngagementUpvoteSteps  []int    `yaml:"engagement_upvote_steps" mapstructure:"engagement_upvote_steps"`
	EngagementCommentSteps []int    `yaml:"engagement_comment_steps" mapstructure:"engagement_comment_steps"`
}

// ServerConfig configures the job endpoints.
type ServerConfig struct {
	Port          int    `yaml:"port" mapstructure:"port"`
	TriggerSecret string `yaml:"trigger_secret" mapstructure:"trigger_secret"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("OPPORTUNITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "opportunity.db")
	v.SetDefault("queue.database_path", "queue.db")
	v.SetDefault("queue.processing_timeout", 10*time.Minute)
	v.SetDefault("queue.retention_ttl", 24*time.Hour)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.extractor.max_tokens", 4096)
	v.SetDefault("anthropic.extractor.max_steps", 0)
	v.SetDefault("anthropic.generator.max_tokens", 4096)
	v.SetDefault("anthropic.generator.max_steps", 0)
	v.SetDefault("anthropic.scorer.max_tokens", 4096)
	v.SetDefault("anthropic.scorer.max_steps", 0)
	v.SetDefault("source.base_url", "https://www.reddit.com")
	v.SetDefault("source.user_agent", "opportunity-cli/1.0")
	v.SetDefault("source.topic", "startups")
	v.SetDefault("source.fetch_limit", 10)
	v.SetDefault("source.max_fetch_limit", 50)
	v.SetDefault("source.rate_per_sec", 1)
	v.SetDefault("source.cache_ttl", time.Hour)
	v.SetDefault("notify.digest_size", 5)
	v.SetDefault("pipeline.wall_clock_budget", 180*time.Second)
	v.SetDefault("pipeline.tool_results", true)
	v.SetDefault("scoring.urgency_keywords", DefaultUrgencyKeywords)
	v.SetDefault("scoring.large_market_categories", DefaultLargeMarketCategories)
	v.SetDefault("scoring.broad_audience_terms", DefaultBroadAudienceTerms)
	v.SetDefault("scoring.oversaturated_keywords", DefaultOversaturatedKeywords)
	v.SetDefault("scoring.complex_category_terms", DefaultComplexCategoryTerms)
	v.SetDefault("scoring.engagement_upvote_steps", DefaultEngagementUpvoteSteps)
	v.SetDefault("scoring.engagement_comment_steps", DefaultEngagementCommentSteps)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
