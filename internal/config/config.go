// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Operating modes for the loop controller.
const (
	ModeManual      = "manual"
	ModeAgentText   = "agent-text"
	ModeAgentHybrid = "agent-hybrid"
)

// LLM backend selection. The bridge is the default; "direct" talks to the
// Gemini API without the local bridge in between.
const (
	BackendBridge = "bridge"
	BackendDirect = "direct"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Bridge    BridgeConfig    `mapstructure:"bridge" yaml:"bridge"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Executor  ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot" yaml:"snapshot"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
}

// LoggerConfig controls the zap logger construction in internal/observability.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to terminal colors for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the chromedp session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ConsoleBufferSize bounds the in-memory console capture ring.
	ConsoleBufferSize int `mapstructure:"console_buffer_size" yaml:"console_buffer_size"`
	// NetworkBufferSize bounds the in-memory network capture ring.
	NetworkBufferSize int `mapstructure:"network_buffer_size" yaml:"network_buffer_size"`
}

// BridgeConfig describes the local LLM bridge endpoint.
type BridgeConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RequestsPerMinute rate-limits /chat calls. Zero disables the limiter.
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// LLMConfig selects and configures the LLM backend.
type LLMConfig struct {
	// Backend is "bridge" or "direct". Replaces the old module-level
	// prefer-alternate-backend flag with an explicit configuration value.
	Backend     string        `mapstructure:"backend" yaml:"backend"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// AgentConfig controls the autonomous loop.
type AgentConfig struct {
	Mode     string `mapstructure:"mode" yaml:"mode"`
	MaxLoops int    `mapstructure:"max_loops" yaml:"max_loops"`
	// ErrorCyclesBeforeFallback is the consecutive-error-cycle threshold that
	// latches the screenshot fallback in hybrid mode.
	ErrorCyclesBeforeFallback int           `mapstructure:"error_cycles_before_fallback" yaml:"error_cycles_before_fallback"`
	ActionDelayMin            time.Duration `mapstructure:"action_delay_min" yaml:"action_delay_min"`
	ActionDelayMax            time.Duration `mapstructure:"action_delay_max" yaml:"action_delay_max"`
	LoopDelay                 time.Duration `mapstructure:"loop_delay" yaml:"loop_delay"`
}

// ExecutorConfig controls action execution behavior.
type ExecutorConfig struct {
	// AllowEvaluate gates the evaluate action. It grants arbitrary script
	// execution in the page context and is off unless explicitly enabled.
	AllowEvaluate     bool          `mapstructure:"allow_evaluate" yaml:"allow_evaluate"`
	ResolveTimeout    time.Duration `mapstructure:"resolve_timeout" yaml:"resolve_timeout"`
	ResolveInterval   time.Duration `mapstructure:"resolve_interval" yaml:"resolve_interval"`
	ActionableTimeout time.Duration `mapstructure:"actionable_timeout" yaml:"actionable_timeout"`
	TypeDelay         time.Duration `mapstructure:"type_delay" yaml:"type_delay"`
	TypeDelaySlow     time.Duration `mapstructure:"type_delay_slow" yaml:"type_delay_slow"`
}

// SnapshotConfig controls the page-state payload sent to the LLM.
type SnapshotConfig struct {
	MaxTokens   int    `mapstructure:"max_tokens" yaml:"max_tokens"`
	MaxElements int    `mapstructure:"max_elements" yaml:"max_elements"`
	TokenModel  string `mapstructure:"token_model" yaml:"token_model"`
}

// ArtifactsConfig controls where FILE/DOWNLOAD markers are materialized.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SetDefaults registers every default value on the provided viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "tabpilot")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "red")
	v.SetDefault("logger.colors.panic", "red")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.console_buffer_size", 500)
	v.SetDefault("browser.network_buffer_size", 1000)

	v.SetDefault("bridge.base_url", "http://127.0.0.1:3102")
	v.SetDefault("bridge.timeout", 2*time.Minute)
	v.SetDefault("bridge.requests_per_minute", 0)

	v.SetDefault("llm.backend", BackendBridge)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.api_timeout", 90*time.Second)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 8192)

	v.SetDefault("agent.mode", ModeAgentHybrid)
	v.SetDefault("agent.max_loops", 15)
	v.SetDefault("agent.error_cycles_before_fallback", 3)
	v.SetDefault("agent.action_delay_min", 80*time.Millisecond)
	v.SetDefault("agent.action_delay_max", 200*time.Millisecond)
	v.SetDefault("agent.loop_delay", 500*time.Millisecond)

	v.SetDefault("executor.allow_evaluate", false)
	v.SetDefault("executor.resolve_timeout", 3*time.Second)
	v.SetDefault("executor.resolve_interval", 100*time.Millisecond)
	v.SetDefault("executor.actionable_timeout", 3*time.Second)
	v.SetDefault("executor.type_delay", 10*time.Millisecond)
	v.SetDefault("executor.type_delay_slow", 100*time.Millisecond)

	v.SetDefault("snapshot.max_tokens", 12000)
	v.SetDefault("snapshot.max_elements", 150)
	v.SetDefault("snapshot.token_model", "gpt-4o")

	v.SetDefault("artifacts.dir", "~/tabpilot-artifacts")
}

// NewDefaultConfig returns a Config populated with every default value.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are statically known; unmarshal cannot fail here.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the configuration for values that would break at runtime.
func (c *Config) Validate() error {
	switch c.Agent.Mode {
	case ModeManual, ModeAgentText, ModeAgentHybrid:
	default:
		return fmt.Errorf("agent.mode must be one of [%s %s %s], got %q",
			ModeManual, ModeAgentText, ModeAgentHybrid, c.Agent.Mode)
	}
	if c.Agent.MaxLoops <= 0 {
		return fmt.Errorf("agent.max_loops must be a positive integer, got %d", c.Agent.MaxLoops)
	}
	if c.Agent.ErrorCyclesBeforeFallback <= 0 {
		return fmt.Errorf("agent.error_cycles_before_fallback must be a positive integer, got %d", c.Agent.ErrorCyclesBeforeFallback)
	}
	if c.Agent.ActionDelayMin < 0 || c.Agent.ActionDelayMax < c.Agent.ActionDelayMin {
		return fmt.Errorf("agent action delay range is invalid: min=%v max=%v", c.Agent.ActionDelayMin, c.Agent.ActionDelayMax)
	}
	switch c.LLM.Backend {
	case BackendBridge, BackendDirect:
	default:
		return fmt.Errorf("llm.backend must be %q or %q, got %q", BackendBridge, BackendDirect, c.LLM.Backend)
	}
	if c.LLM.Backend == BackendDirect && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required when llm.backend is %q", BackendDirect)
	}
	if c.Bridge.BaseURL == "" {
		return fmt.Errorf("bridge.base_url must not be empty")
	}
	if !strings.HasPrefix(c.Bridge.BaseURL, "http://") && !strings.HasPrefix(c.Bridge.BaseURL, "https://") {
		return fmt.Errorf("bridge.base_url must be an http(s) URL, got %q", c.Bridge.BaseURL)
	}
	if c.Executor.ResolveTimeout <= 0 || c.Executor.ResolveInterval <= 0 {
		return fmt.Errorf("executor resolve timings must be positive: timeout=%v interval=%v",
			c.Executor.ResolveTimeout, c.Executor.ResolveInterval)
	}
	if c.Snapshot.MaxTokens <= 0 {
		return fmt.Errorf("snapshot.max_tokens must be a positive integer, got %d", c.Snapshot.MaxTokens)
	}
	return nil
}

// ArtifactRoot expands the configured artifact directory to an absolute path.
func (c *Config) ArtifactRoot() (string, error) {
	dir, err := homedir.Expand(c.Artifacts.Dir)
	if err != nil {
		return "", fmt.Errorf("failed to expand artifacts.dir %q: %w", c.Artifacts.Dir, err)
	}
	return filepath.Clean(dir), nil
}
