package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration. Every problem is collected
// before it fails.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateWorkflow(&cfg.Workflow)
	v.validateCollection(&cfg.Collection)
	v.validateCache(&cfg.Cache)
	v.validateHistory(&cfg.History)
	v.validateAgent(&cfg.Agent)
	v.validateAssets(&cfg.Assets)
	v.validateBuild(&cfg.Build)
	v.validateServer(&cfg.Server)

	if len(v.errors) > 0 {
		return core.ErrConfiguration(core.CodeInvalidConfig, v.errors.Error()).WithCause(v.errors)
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig) {
	if strings.TrimSpace(cfg.OutputDir) == "" {
		v.addError("workflow.output_dir", cfg.OutputDir, "required")
	}
	if cfg.GenerationTimeout <= 0 {
		v.addError("workflow.generation_timeout", cfg.GenerationTimeout, "must be positive")
	}
	if cfg.MaxQualityRetries < 0 || cfg.MaxQualityRetries > 10 {
		v.addError("workflow.max_quality_retries", cfg.MaxQualityRetries, "must be between 0 and 10")
	}
	if cfg.MaxSteps < 10 {
		v.addError("workflow.max_steps", cfg.MaxSteps, "must be at least 10")
	}
}

func (v *Validator) validateCollection(cfg *CollectionConfig) {
	if cfg.Workers < 1 {
		v.addError("collection.workers", cfg.Workers, "must be at least 1")
	}
	if cfg.QueueSize < 0 {
		v.addError("collection.queue_size", cfg.QueueSize, "must be non-negative")
	}
}

func (v *Validator) validateCache(cfg *CacheConfig) {
	if cfg.Capacity < 1 {
		v.addError("cache.capacity", cfg.Capacity, "must be at least 1")
	}
	if cfg.TTL <= 0 {
		v.addError("cache.ttl", cfg.TTL, "must be positive")
	}
	if cfg.IdleTTL <= 0 {
		v.addError("cache.idle_ttl", cfg.IdleTTL, "must be positive")
	}
	if cfg.IdleTTL > cfg.TTL && cfg.TTL > 0 {
		v.addError("cache.idle_ttl", cfg.IdleTTL, "must not exceed cache.ttl")
	}
	if cfg.HistoryWindow < 0 {
		v.addError("cache.history_window", cfg.HistoryWindow, "must be non-negative")
	}
	if cfg.MemoryWindow < cfg.HistoryWindow {
		v.addError("cache.memory_window", cfg.MemoryWindow, "must be at least cache.history_window")
	}
	if cfg.JanitorInterval <= 0 {
		v.addError("cache.janitor_interval", cfg.JanitorInterval, "must be positive")
	}
}

func (v *Validator) validateHistory(cfg *HistoryConfig) {
	switch strings.ToLower(cfg.Backend) {
	case "sqlite":
		if cfg.SQLitePath == "" {
			v.addError("history.sqlite_path", cfg.SQLitePath, "required for sqlite backend")
		}
	case "redis":
		if _, err := url.Parse(cfg.RedisURL); err != nil || !strings.HasPrefix(cfg.RedisURL, "redis") {
			v.addError("history.redis_url", cfg.RedisURL, "must be a redis:// or rediss:// URL")
		}
		if cfg.RedisMaxLen < 0 {
			v.addError("history.redis_max_len", cfg.RedisMaxLen, "must be non-negative")
		}
	case "memory":
	default:
		v.addError("history.backend", cfg.Backend, "must be one of: sqlite, redis, memory")
	}
}

func (v *Validator) validateAgent(cfg *AgentConfig) {
	if strings.TrimSpace(cfg.Path) == "" {
		v.addError("agent.path", cfg.Path, "required")
	}
	if cfg.Timeout < 0 {
		v.addError("agent.timeout", cfg.Timeout, "must be non-negative")
	}
}

func (v *Validator) validateAssets(cfg *AssetsConfig) {
	for field, raw := range map[string]string{
		"assets.pexels_base_url":  cfg.PexelsBaseURL,
		"assets.undraw_base_url":  cfg.UndrawBaseURL,
		"assets.mermaid_base_url": cfg.MermaidBaseURL,
		"assets.logo_base_url":    cfg.LogoBaseURL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			v.addError(field, raw, "must be an absolute URL")
		}
	}
	if cfg.RequestsPerSecond <= 0 {
		v.addError("assets.requests_per_second", cfg.RequestsPerSecond, "must be positive")
	}
	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 10 {
		v.addError("assets.max_attempts", cfg.MaxAttempts, "must be between 1 and 10")
	}
}

func (v *Validator) validateBuild(cfg *BuildConfig) {
	if cfg.InstallTimeout <= 0 {
		v.addError("build.install_timeout", cfg.InstallTimeout, "must be positive")
	}
	if cfg.BuildTimeout <= 0 {
		v.addError("build.build_timeout", cfg.BuildTimeout, "must be positive")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
