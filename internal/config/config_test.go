package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 50, cfg.MaxToolRounds)
	assert.NotEmpty(t, cfg.DataDir)
	assert.NotEmpty(t, cfg.Logging.File)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"provider": "anthropic",
		"model": "claude-sonnet-4-5",
		"max_tool_rounds": 10,
		"data_dir": "/tmp/toolline-test",
		"logging": {"level": "debug", "console": true}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
	assert.Equal(t, 10, cfg.MaxToolRounds)
	assert.Equal(t, "/tmp/toolline-test", cfg.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
	assert.Equal(t, filepath.Join("/tmp/toolline-test", "toolline.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join("/tmp/toolline-test", "sessions"), cfg.SessionsDir())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolveAPIKeyPrecedence(t *testing.T) {
	cfg := &Config{Provider: "openai", APIKey: "from-config"}

	t.Run("toolline env wins", func(t *testing.T) {
		t.Setenv("TOOLLINE_API_KEY", "from-toolline-env")
		t.Setenv("OPENAI_API_KEY", "from-provider-env")
		assert.Equal(t, "from-toolline-env", cfg.ResolveAPIKey())
	})

	t.Run("provider env beats config", func(t *testing.T) {
		t.Setenv("TOOLLINE_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "from-provider-env")
		assert.Equal(t, "from-provider-env", cfg.ResolveAPIKey())
	})

	t.Run("config file is the fallback", func(t *testing.T) {
		t.Setenv("TOOLLINE_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		assert.Equal(t, "from-config", cfg.ResolveAPIKey())
	})

	t.Run("unknown provider still honors toolline env", func(t *testing.T) {
		other := &Config{Provider: "something-new"}
		t.Setenv("TOOLLINE_API_KEY", "key")
		assert.Equal(t, "key", other.ResolveAPIKey())
	})
}
