// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.NavigationTimeout)
	assert.Equal(t, "http://127.0.0.1:3102", cfg.Bridge.BaseURL)
	assert.Equal(t, BackendBridge, cfg.LLM.Backend)
	assert.Equal(t, ModeAgentHybrid, cfg.Agent.Mode)
	assert.Equal(t, 15, cfg.Agent.MaxLoops)
	assert.Equal(t, 3, cfg.Agent.ErrorCyclesBeforeFallback)
	assert.Equal(t, 3*time.Second, cfg.Executor.ResolveTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Executor.ResolveInterval)
	assert.False(t, cfg.Executor.AllowEvaluate, "evaluate must be off by default")
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("InvalidMode", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Agent.Mode = "autopilot"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.mode")
	})

	t.Run("NonPositiveLoopBudget", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Agent.MaxLoops = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_loops")
	})

	t.Run("InvertedActionDelayRange", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Agent.ActionDelayMin = 200 * time.Millisecond
		cfg.Agent.ActionDelayMax = 80 * time.Millisecond
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "action delay range")
	})

	t.Run("UnknownBackend", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LLM.Backend = "ollama"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.backend")
	})

	t.Run("DirectBackendRequiresAPIKey", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LLM.Backend = BackendDirect
		cfg.LLM.APIKey = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "llm.api_key")

		cfg.LLM.APIKey = "test-key"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("BadBridgeURL", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Bridge.BaseURL = "127.0.0.1:3102"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bridge.base_url")
	})
}

// -- YAML Round-Trip --

func TestConfigUnmarshalFromYAML(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
  format: json
agent:
  mode: manual
  max_loops: 3
executor:
  allow_evaluate: true
  resolve_timeout: 5s
bridge:
  base_url: http://localhost:9999
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, ModeManual, cfg.Agent.Mode)
	assert.Equal(t, 3, cfg.Agent.MaxLoops)
	assert.True(t, cfg.Executor.AllowEvaluate)
	assert.Equal(t, 5*time.Second, cfg.Executor.ResolveTimeout)
	assert.Equal(t, "http://localhost:9999", cfg.Bridge.BaseURL)

	// Values not present in the YAML keep their defaults.
	assert.Equal(t, 100*time.Millisecond, cfg.Executor.ResolveInterval)
	assert.NoError(t, cfg.Validate())
}

func TestArtifactRootExpansion(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Artifacts.Dir = "~/some/dir"
	root, err := cfg.ArtifactRoot()
	require.NoError(t, err)
	assert.NotContains(t, root, "~")
}
