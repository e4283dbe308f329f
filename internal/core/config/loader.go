package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/demandcast/internal/core/errs"
	"github.com/vietddude/demandcast/internal/core/retry"
)

// Load reads configuration from a YAML file. Environment variables in the
// file are expanded. An empty path yields the defaults.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv fills secrets and endpoints left empty by the file.
func applyEnv(cfg *AppConfig) {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&cfg.Database.URL, "DATABASE_URL")
	fill(&cfg.Redis.URL, "REDIS_URL")
	fill(&cfg.LLM.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&cfg.LLM.Gemini.APIKey, "GEMINI_API_KEY")
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}
	if cfg.Models.Dir == "" {
		cfg.Models.Dir = "trained_models"
	}
	if cfg.Fallback.Dir == "" {
		cfg.Fallback.Dir = "fallback_data"
	}
	if cfg.LLM.OpenAI.Weight == 0 {
		cfg.LLM.OpenAI.Weight = 3
	}
	if cfg.LLM.Gemini.Weight == 0 {
		cfg.LLM.Gemini.Weight = 1
	}

	cfg.Retry.Network = mergePolicy(cfg.Retry.Network, retry.NetworkPolicy)
	cfg.Retry.Database = mergePolicy(cfg.Retry.Database, retry.DatabasePolicy)
	cfg.Retry.AIAPI = mergePolicy(cfg.Retry.AIAPI, retry.AIAPIPolicy)

	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = time.Minute
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = 10 * time.Second
	}
	if cfg.Health.AlertCooldown == 0 {
		cfg.Health.AlertCooldown = 300 * time.Second
	}
	if cfg.Health.DiskPath == "" {
		cfg.Health.DiskPath = "/"
	}
	if cfg.RateLimit.InsightsPerHour == 0 {
		cfg.RateLimit.InsightsPerHour = 20
	}
}

// mergePolicy keeps the fields set in p and takes the rest from base.
func mergePolicy(p, base retry.Policy) retry.Policy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = base.BaseDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = base.MaxDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = base.Multiplier
	}
	if p.Strategy == "" {
		p.Strategy = base.Strategy
		p.Jitter = base.Jitter
	}
	return p
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "text"}
	validDrivers = []string{"pgx", "postgres"}
)

// Validate reports the first invalid setting as a configuration error.
func (c *AppConfig) Validate() error {
	invalid := func(field string, value any) error {
		return errs.Configuration(fmt.Sprintf("invalid %s: %v", field, value),
			errs.WithContext(map[string]any{"field": field}))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return invalid("server.grpc_port", c.Server.GRPCPort)
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		return invalid("server.grpc_port", "same as server.port")
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Logging.Level)) {
		return invalid("logging.level", c.Logging.Level)
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Logging.Format)) {
		return invalid("logging.format", c.Logging.Format)
	}
	if !slices.Contains(validDrivers, c.Database.Driver) {
		return invalid("database.driver", c.Database.Driver)
	}
	for name, p := range map[string]retry.Policy{
		"retry.network": c.Retry.Network, "retry.database": c.Retry.Database, "retry.ai_api": c.Retry.AIAPI,
	} {
		if p.MaxAttempts < 1 {
			return invalid(name+".max_attempts", p.MaxAttempts)
		}
	}
	if c.RateLimit.InsightsPerHour < 0 {
		return invalid("rate_limit.insights_per_hour", c.RateLimit.InsightsPerHour)
	}
	return nil
}
