// Package config loads the daemon's YAML configuration: one struct per
// concern (store, listener, LLM, sandbox template, finish/export), the
// way the teacher's internal/config package splits ServerConfig,
// LLMConfig, DatabaseConfig, etc. into per-file structs. $include
// resolution and environment-variable expansion are handled by
// loader.go; this file owns the struct shapes, defaults, and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentforge/runtime/internal/llmhandler"
)

// Config is the root configuration for cmd/agentrtd.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Listener    ListenerConfig    `yaml:"listener"`
	LLM         LLMConfig         `yaml:"llm"`
	Template    TemplateConfig    `yaml:"template"`
	Finish      FinishConfig      `yaml:"finish"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Server      ServerConfig      `yaml:"server"`
}

// StoreConfig selects the event store backend (C1).
type StoreConfig struct {
	// Backend is "memory", "sqlite", or "postgres".
	Backend string `yaml:"backend"`

	// DSN is the connection string for "sqlite" (a file path) or
	// "postgres" (a libpq URL). Ignored for "memory".
	DSN string `yaml:"dsn"`
}

// ListenerConfig tunes the polling queue and listener (C2).
type ListenerConfig struct {
	// PollInterval is the fallback scan period when a wake is dropped.
	PollInterval time.Duration `yaml:"poll_interval"`

	// WakeBufferSize is the per-subscriber buffered wake channel size.
	WakeBufferSize int `yaml:"wake_buffer_size"`

	// CronRescan, if set, is a github.com/robfig/cron/v3 schedule
	// expression (e.g. "0 2 * * *") driving a second, coarser rescan
	// cadence via listener.CronTicker, independent of PollInterval.
	// Empty disables it.
	CronRescan string `yaml:"cron_rescan"`
}

// LLMConfig configures the LLM handler (C5) and its default provider.
type LLMConfig struct {
	// DefaultProvider names the provider tried first (e.g. "anthropic").
	DefaultProvider string `yaml:"default_provider"`

	// FallbackChain lists provider names tried in order if the default
	// provider's Complete call fails.
	FallbackChain []string `yaml:"fallback_chain"`

	// Model is the model identifier passed to the provider.
	Model string `yaml:"model"`

	// Preamble is the system prompt prefix used for every completion.
	Preamble string `yaml:"preamble"`

	// Temperature and MaxTokens are passed through to every
	// llmclient.CompletionRequest.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// Retry configures the llmhandler.WithRetry backoff policy.
	Retry RetryConfig `yaml:"retry"`

	// Providers holds per-provider credentials/endpoints, keyed by
	// provider name.
	Providers map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig holds one provider's credentials and endpoint.
type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Region  string `yaml:"region"`
}

// RetryConfig mirrors llmhandler.RetryPolicy for YAML configurability.
type RetryConfig struct {
	BaseMs      float64 `yaml:"base_ms"`
	MaxMs       float64 `yaml:"max_ms"`
	Factor      float64 `yaml:"factor"`
	JitterMin   float64 `yaml:"jitter_min"`
	JitterMax   float64 `yaml:"jitter_max"`
	MaxAttempts int     `yaml:"max_attempts"`
}

// Policy converts RetryConfig to an llmhandler.RetryPolicy, falling back
// to llmhandler.DefaultRetryPolicy for any zero-valued field.
func (r RetryConfig) Policy() llmhandler.RetryPolicy {
	d := llmhandler.DefaultRetryPolicy()
	if r.BaseMs > 0 {
		d.BaseMs = r.BaseMs
	}
	if r.MaxMs > 0 {
		d.MaxMs = r.MaxMs
	}
	if r.Factor > 0 {
		d.Factor = r.Factor
	}
	if r.JitterMin > 0 {
		d.JitterMin = r.JitterMin
	}
	if r.JitterMax > 0 {
		d.JitterMax = r.JitterMax
	}
	if r.MaxAttempts > 0 {
		d.MaxAttempts = r.MaxAttempts
	}
	return d
}

// TemplateConfig selects the sandbox template a fresh workspace is built
// from (C6's sandbox.Manager.CreateFromDirectory).
type TemplateConfig struct {
	// Name identifies the template (e.g. "python-3.12", "node-20").
	Name string `yaml:"name"`

	// SourceDir is the directory a new sandbox workspace is populated
	// from.
	SourceDir string `yaml:"source_dir"`
}

// FinishConfig configures the finish/export stage (C7).
type FinishConfig struct {
	// ExportRoot is the directory finished runs are exported under.
	ExportRoot string `yaml:"export_root"`
}

// LoggingConfig configures internal/observability's Logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig configures internal/observability's Tracer.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// ServerConfig configures the daemon's control/metrics HTTP surface.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// Load reads path, resolving $include directives and expanding
// environment variables, then decodes, defaults, and validates the
// result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Listener.PollInterval == 0 {
		cfg.Listener.PollInterval = time.Second
	}
	if cfg.Listener.WakeBufferSize == 0 {
		cfg.Listener.WakeBufferSize = 100
	}
	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	def := llmhandler.DefaultRetryPolicy()
	if cfg.LLM.Retry.BaseMs == 0 {
		cfg.LLM.Retry.BaseMs = def.BaseMs
	}
	if cfg.LLM.Retry.MaxMs == 0 {
		cfg.LLM.Retry.MaxMs = def.MaxMs
	}
	if cfg.LLM.Retry.Factor == 0 {
		cfg.LLM.Retry.Factor = def.Factor
	}
	if cfg.LLM.Retry.JitterMin == 0 {
		cfg.LLM.Retry.JitterMin = def.JitterMin
	}
	if cfg.LLM.Retry.JitterMax == 0 {
		cfg.LLM.Retry.JitterMax = def.JitterMax
	}
	if cfg.LLM.Retry.MaxAttempts == 0 {
		cfg.LLM.Retry.MaxAttempts = def.MaxAttempts
	}
	if cfg.Finish.ExportRoot == "" {
		cfg.Finish.ExportRoot = "./exports"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "agentrtd"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 9090
	}
}

// ConfigValidationError collects every validation issue found, rather
// than failing fast on the first one.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	switch cfg.Store.Backend {
	case "memory":
	case "sqlite", "postgres":
		if strings.TrimSpace(cfg.Store.DSN) == "" {
			issues = append(issues, fmt.Sprintf("store.dsn is required for backend %q", cfg.Store.Backend))
		}
	default:
		issues = append(issues, fmt.Sprintf("store.backend must be \"memory\", \"sqlite\", or \"postgres\", got %q", cfg.Store.Backend))
	}

	if cfg.Listener.PollInterval < 0 {
		issues = append(issues, "listener.poll_interval must be >= 0")
	}
	if cfg.Listener.WakeBufferSize < 0 {
		issues = append(issues, "listener.wake_buffer_size must be >= 0")
	}

	if strings.TrimSpace(cfg.LLM.DefaultProvider) != "" {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
		}
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		issues = append(issues, "llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.MaxTokens < 0 {
		issues = append(issues, "llm.max_tokens must be >= 0")
	}
	if cfg.LLM.Retry.MaxAttempts < 1 {
		issues = append(issues, "llm.retry.max_attempts must be >= 1")
	}

	if strings.TrimSpace(cfg.Finish.ExportRoot) == "" {
		issues = append(issues, "finish.export_root must be set")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
