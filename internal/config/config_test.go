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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "test-token"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "test-token", cfg.Bot.Token)
	assert.Equal(t, 60, cfg.Bot.UpdateTimeout)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "memory", cfg.Pending.Type)
	assert.Equal(t, 50, cfg.Stream.EditThreshold)
	assert.Equal(t, 10, cfg.Stream.HistoryLimit)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "test-token"
stream:
  edit_threshold: 25
  history_limit: 4
pending:
  type: redis
  redis:
    addr: "redis:6379"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Stream.EditThreshold)
	assert.Equal(t, 4, cfg.Stream.HistoryLimit)
	assert.Equal(t, "redis", cfg.Pending.Type)
	assert.Equal(t, "redis:6379", cfg.Pending.Redis.Addr)
}

func TestLoadConfigTokenFromEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env-token")

	path := writeConfig(t, `
stream:
  edit_threshold: 50
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Bot.Token)
}

func TestLoadConfigMissingTokenRejected(t *testing.T) {
	path := writeConfig(t, `
openai:
  base_url: "https://api.openai.com/v1"
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigBadBaseURLRejected(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "test-token"
openai:
  base_url: "ftp://nowhere"
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigBadThresholdRejected(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "test-token"
stream:
  edit_threshold: 0
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigBadPendingTypeRejected(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: "test-token"
pending:
  type: "zookeeper"
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
