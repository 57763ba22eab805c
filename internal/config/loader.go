package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "SITEGEN",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (SITEGEN_*)
// 3. Project config (.sitegen.yaml in current directory)
// 4. User config (~/.config/sitegen/.sitegen.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".sitegen")
		l.v.SetConfigType("yaml")

		// First found wins
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "sitegen"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("workflow.output_dir", ".sitegen/output")
	l.v.SetDefault("workflow.generation_timeout", "10m")
	l.v.SetDefault("workflow.max_quality_retries", 3)
	l.v.SetDefault("workflow.max_steps", 100)

	l.v.SetDefault("collection.workers", 20)
	l.v.SetDefault("collection.queue_size", 100)

	l.v.SetDefault("cache.capacity", 1000)
	l.v.SetDefault("cache.ttl", "30m")
	l.v.SetDefault("cache.idle_ttl", "10m")
	l.v.SetDefault("cache.history_window", 20)
	l.v.SetDefault("cache.memory_window", 50)
	l.v.SetDefault("cache.janitor_interval", "1m")

	l.v.SetDefault("history.backend", "sqlite")
	l.v.SetDefault("history.sqlite_path", ".sitegen/history.db")
	l.v.SetDefault("history.redis_url", "redis://localhost:6379/0")
	l.v.SetDefault("history.redis_prefix", "sitegen:history:")
	l.v.SetDefault("history.redis_max_len", 200)
	l.v.SetDefault("history.redis_ttl", "168h")

	l.v.SetDefault("agent.path", "claude")
	l.v.SetDefault("agent.model", "")
	l.v.SetDefault("agent.timeout", "15m")

	l.v.SetDefault("assets.pexels_api_key", "")
	l.v.SetDefault("assets.pexels_base_url", "https://api.pexels.com/v1")
	l.v.SetDefault("assets.undraw_base_url", "https://undraw.co/_next/data/ojPNcmgPo4fMUGOf89T3Q")
	l.v.SetDefault("assets.mermaid_base_url", "https://mermaid.ink")
	l.v.SetDefault("assets.logo_base_url", "https://api.dicebear.com/9.x/shapes/svg")
	l.v.SetDefault("assets.requests_per_second", 5.0)
	l.v.SetDefault("assets.timeout", "10s")
	l.v.SetDefault("assets.max_attempts", 3)

	l.v.SetDefault("build.npm_path", "")
	l.v.SetDefault("build.install_timeout", "5m")
	l.v.SetDefault("build.build_timeout", "3m")

	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8080)
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}
