package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := NewStore(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestGetOrCreateUserIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateUser(ctx, 42, "alice", "Alice", "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), first.UserID)
	assert.Equal(t, "alice", first.Username)

	// A second call with changed metadata updates in place
	second, err := store.GetOrCreateUser(ctx, 42, "alice_new", "Alice", "Smith")
	require.NoError(t, err)
	assert.Equal(t, int64(42), second.UserID)
	assert.Equal(t, first.ID, second.ID, "same stored row, no duplicate")
	assert.Equal(t, "alice_new", second.Username)
	assert.Equal(t, "Smith", second.LastName)
}

func TestGetUserSettingsDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateUser(ctx, 7, "bob", "Bob", "")
	require.NoError(t, err)

	settings, err := store.GetUserSettings(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, settings.Model)
	assert.InDelta(t, DefaultTemperature, settings.Temperature, 0.0001)
	assert.Equal(t, DefaultMaxTokens, settings.MaxTokens)
	assert.Equal(t, "https://api.openai.com/v1", settings.BaseURL)
	assert.False(t, settings.UseAssistant)
	assert.Empty(t, settings.AssistantURL)
}

func TestGetUserSettingsLazyCreate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// No prior GetOrCreateUser; the settings row appears on demand.
	settings, err := store.GetUserSettings(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(99), settings.UserID)
	assert.Equal(t, DefaultModel, settings.Model)
}

func TestTypedUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateUser(ctx, 1, "u", "U", "")
	require.NoError(t, err)

	require.NoError(t, store.UpdateModel(ctx, 1, "gpt-4"))
	require.NoError(t, store.UpdateTemperature(ctx, 1, 0.3))
	require.NoError(t, store.UpdateMaxTokens(ctx, 1, 2000))
	require.NoError(t, store.UpdateBaseURL(ctx, 1, "https://example.com/v1"))
	require.NoError(t, store.UpdateUseAssistant(ctx, 1, true))

	settings, err := store.GetUserSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", settings.Model)
	assert.InDelta(t, 0.3, settings.Temperature, 0.0001)
	assert.Equal(t, 2000, settings.MaxTokens)
	assert.Equal(t, "https://example.com/v1", settings.BaseURL)
	assert.True(t, settings.UseAssistant)
}

func TestUpdateAssistantURLEnablesAssistant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateUser(ctx, 2, "u", "U", "")
	require.NoError(t, err)

	settings, err := store.GetUserSettings(ctx, 2)
	require.NoError(t, err)
	require.False(t, settings.UseAssistant)

	require.NoError(t, store.UpdateAssistantURL(ctx, 2, "https://assistant.example.com/hook"))

	settings, err = store.GetUserSettings(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://assistant.example.com/hook", settings.AssistantURL)
	assert.True(t, settings.UseAssistant, "setting an assistant URL switches the assistant on")
}

func TestHistoryOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetOrCreateUser(ctx, 3, "u", "U", "")
	require.NoError(t, err)

	require.NoError(t, store.SaveMessage(ctx, 3, 3, "user", "first"))
	require.NoError(t, store.SaveMessage(ctx, 3, 3, "assistant", "second"))
	require.NoError(t, store.SaveMessage(ctx, 3, 3, "user", "third"))
	require.NoError(t, store.SaveMessage(ctx, 3, 3, "assistant", "fourth"))

	history, err := store.History(ctx, 3, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Most recent 3, oldest first
	assert.Equal(t, "second", history[0].Content)
	assert.Equal(t, "third", history[1].Content)
	assert.Equal(t, "fourth", history[2].Content)
	assert.Equal(t, "assistant", history[0].Role)
	assert.Equal(t, "user", history[1].Role)
}

func TestHistoryIsolatedPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMessage(ctx, 10, 10, "user", "mine"))
	require.NoError(t, store.SaveMessage(ctx, 11, 11, "user", "theirs"))

	history, err := store.History(ctx, 10, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "mine", history[0].Content)
}
