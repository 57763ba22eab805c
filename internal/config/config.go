package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Workflow   WorkflowConfig   `mapstructure:"workflow" yaml:"workflow"`
	Collection CollectionConfig `mapstructure:"collection" yaml:"collection"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Assets     AssetsConfig     `mapstructure:"assets" yaml:"assets"`
	Build      BuildConfig      `mapstructure:"build" yaml:"build"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// WorkflowConfig configures workflow execution.
type WorkflowConfig struct {
	OutputDir         string        `mapstructure:"output_dir" yaml:"output_dir"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" yaml:"generation_timeout"`
	MaxQualityRetries int           `mapstructure:"max_quality_retries" yaml:"max_quality_retries"`
	MaxSteps          int           `mapstructure:"max_steps" yaml:"max_steps"`
}

// CollectionConfig sizes the asset collection pool.
type CollectionConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// CacheConfig configures the generator cache.
type CacheConfig struct {
	Capacity        int           `mapstructure:"capacity" yaml:"capacity"`
	TTL             time.Duration `mapstructure:"ttl" yaml:"ttl"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl"`
	HistoryWindow   int           `mapstructure:"history_window" yaml:"history_window"`
	MemoryWindow    int           `mapstructure:"memory_window" yaml:"memory_window"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" yaml:"janitor_interval"`
}

// HistoryConfig selects and configures the conversation history backend.
type HistoryConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	SQLitePath  string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	RedisURL    string        `mapstructure:"redis_url" yaml:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix" yaml:"redis_prefix"`
	RedisMaxLen int64         `mapstructure:"redis_max_len" yaml:"redis_max_len"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl"`
}

// AgentConfig configures the Claude CLI.
type AgentConfig struct {
	Path    string        `mapstructure:"path" yaml:"path"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AssetsConfig configures the asset providers.
type AssetsConfig struct {
	PexelsAPIKey      string        `mapstructure:"pexels_api_key" yaml:"pexels_api_key"`
	PexelsBaseURL     string        `mapstructure:"pexels_base_url" yaml:"pexels_base_url"`
	UndrawBaseURL     string        `mapstructure:"undraw_base_url" yaml:"undraw_base_url"`
	MermaidBaseURL    string        `mapstructure:"mermaid_base_url" yaml:"mermaid_base_url"`
	LogoBaseURL       string        `mapstructure:"logo_base_url" yaml:"logo_base_url"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// BuildConfig configures the npm project builder.
type BuildConfig struct {
	NpmPath        string        `mapstructure:"npm_path" yaml:"npm_path"`
	InstallTimeout time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout" yaml:"build_timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// YAML renders the configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	if c.Assets.PexelsAPIKey != "" {
		c.Assets.PexelsAPIKey = "[REDACTED]"
	}
	return yaml.Marshal(c)
}
