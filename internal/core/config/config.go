package config

import (
	"time"

	"github.com/vietddude/demandcast/internal/core/retry"
	redisclient "github.com/vietddude/demandcast/internal/infra/redis"
	"github.com/vietddude/demandcast/internal/infra/storage/postgres"
	"github.com/vietddude/demandcast/internal/llm"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Logging   LoggingConfig      `yaml:"logging"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Models    ModelsConfig       `yaml:"models"`
	Fallback  FallbackConfig     `yaml:"fallback"`
	LLM       LLMConfig          `yaml:"llm"`
	Retry     RetryConfig        `yaml:"retry"`
	Health    HealthConfig       `yaml:"health"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"` // 0 disables the gRPC health server
	Debug           bool          `yaml:"debug"`     // expose technical error details
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ModelsConfig locates trained model artifacts.
type ModelsConfig struct {
	Dir string `yaml:"dir"`
}

// FallbackConfig locates the local fallback files.
type FallbackConfig struct {
	Dir string `yaml:"dir"`
}

// LLMConfig configures the insight providers. A provider without an API key
// is not registered.
type LLMConfig struct {
	OpenAI llm.OpenAIConfig `yaml:"openai"`
	Gemini llm.GeminiConfig `yaml:"gemini"`
}

// RetryConfig overrides the per-category retry policies.
type RetryConfig struct {
	Network  retry.Policy `yaml:"network"`
	Database retry.Policy `yaml:"database"`
	AIAPI    retry.Policy `yaml:"ai_api"`
}

// HealthConfig tunes the background health checker.
type HealthConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	AlertCooldown time.Duration `yaml:"alert_cooldown"`
	DiskPath      string        `yaml:"disk_path"`
}

// RateLimitConfig limits expensive endpoints per client.
type RateLimitConfig struct {
	InsightsPerHour int `yaml:"insights_per_hour"`
}
