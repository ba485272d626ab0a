package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "SOCIALSIM_STORAGE", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Empty(t, cfg.Credential())
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
llm:
  provider: openai
  timeout: 5s
  openai:
    model: gpt-test
storage:
  backend: redis
  redis:
    addr: localhost:6379
game:
  require_tutorial: true
logging:
  level: debug
`), 0o644))

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-test", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "tts-1", cfg.LLM.OpenAI.SpeechModel, "unset fields keep defaults")
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sk-env", cfg.Credential())
	assert.Equal(t, "redis:6380", cfg.Storage.Redis.Addr)
	assert.True(t, cfg.Game.RequireTutorial)
	assert.True(t, cfg.Logging.Debug())
}

func TestLoad_GoogleKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g-key")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.Credential())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.LLM.Provider = "anthropic"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Storage.Backend = "redis"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Storage.Path = ""
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Audio.Engine = "alsa"
	assert.Error(t, bad.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_ExampleConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "configs", "socialsim.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "socialsim:", cfg.Storage.Redis.Prefix)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "stream", cfg.Audio.Engine)
}
