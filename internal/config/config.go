package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// PipelineConfig holds orchestration tunables.
type PipelineConfig struct {
	AngleCount      int           `mapstructure:"angle_count"`
	MaxAngleCount   int           `mapstructure:"max_angle_count"`
	PerAngleTimeout time.Duration `mapstructure:"per_angle_timeout"`
	FallbackAngles  string        `mapstructure:"fallback_angles_file"`
}

// LLMConfig configures the language-model capability client.
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst   int           `mapstructure:"rate_burst"`
}

// RetrievalConfig configures the knowledge-retrieval capability client.
type RetrievalConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollMax      int           `mapstructure:"poll_max"`
}

// RedisConfig configures the optional retrieval answer cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"` // empty disables the cache
	Password string        `mapstructure:"password"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MetricsPort int `mapstructure:"metrics_port"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// Load reads prism.yaml from CONFIG_PATH (default ./config/prism.yaml),
// applies env overrides, and validates required fields. Missing file is not
// fatal; missing backend endpoints are.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/prism.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)
	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; env vars and defaults can carry the service.
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate fails fast on configuration the service cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.LLM.BaseURL == "" {
		missing = append(missing, "llm.base_url (LLM_BASE_URL)")
	}
	if c.Retrieval.BaseURL == "" {
		missing = append(missing, "retrieval.base_url (RETRIEVAL_BASE_URL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %v", missing)
	}
	if c.Pipeline.AngleCount < 1 || c.Pipeline.AngleCount > c.Pipeline.MaxAngleCount {
		return fmt.Errorf("pipeline.angle_count %d outside [1,%d]", c.Pipeline.AngleCount, c.Pipeline.MaxAngleCount)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics_port", 2112)
	v.SetDefault("pipeline.angle_count", 3)
	v.SetDefault("pipeline.max_angle_count", 8)
	v.SetDefault("pipeline.per_angle_timeout", 90*time.Second)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.rate_limit", 0.0)
	v.SetDefault("llm.rate_burst", 1)
	v.SetDefault("retrieval.timeout", 30*time.Second)
	v.SetDefault("retrieval.poll_interval", 2*time.Second)
	v.SetDefault("retrieval.poll_max", 40)
	v.SetDefault("redis.ttl", 15*time.Minute)
	v.SetDefault("logging.level", "info")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PRISM_PORT")
	_ = v.BindEnv("server.metrics_port", "METRICS_PORT")
	_ = v.BindEnv("pipeline.angle_count", "PRISM_ANGLE_COUNT")
	_ = v.BindEnv("pipeline.per_angle_timeout", "PRISM_PER_ANGLE_TIMEOUT")
	_ = v.BindEnv("pipeline.fallback_angles_file", "PRISM_FALLBACK_ANGLES_FILE")
	_ = v.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = v.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("retrieval.base_url", "RETRIEVAL_BASE_URL")
	_ = v.BindEnv("retrieval.api_key", "RETRIEVAL_API_KEY")
	_ = v.BindEnv("retrieval.poll_interval", "RETRIEVAL_POLL_INTERVAL")
	_ = v.BindEnv("retrieval.poll_max", "RETRIEVAL_POLL_MAX")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
}
