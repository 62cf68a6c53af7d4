package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/gpt-tgbot-go/internal/models"
	"github.com/gpt-tgbot-go/internal/services/ai"
	"github.com/gpt-tgbot-go/internal/services/pending"
	"github.com/gpt-tgbot-go/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incomingFrom(userID int64, text string) models.Incoming {
	return models.Incoming{
		UserID:    userID,
		ChatID:    userID,
		MessageID: 1,
		Text:      text,
		Username:  "tester",
		FirstName: "Test",
	}
}

func TestShortAnswerRendersOnlyOnce(t *testing.T) {
	f := newFixture(t)

	// 37 runes total: never crosses the 50-rune threshold.
	f.aiClient.chunks = []string{"this is a short ", "streamed answer ", "done."}
	placeholder := telegram.MessageRef{ChatID: 1, MessageID: 10}

	f.messages.process(context.Background(), incomingFrom(1, "hi"), placeholder, "en")

	assert.Empty(t, f.sink.CallsOf("edit"), "no partial renders below the threshold")

	finals := f.sink.CallsOf("edit_html")
	require.Len(t, finals, 1)
	assert.Equal(t, "this is a short streamed answer done.", finals[0].Plain)
	assert.Equal(t, placeholder, finals[0].Ref)
}

func TestSingleCharacterAnswerEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.aiClient.chunks = []string{"4"}
	placeholder := telegram.MessageRef{ChatID: 1, MessageID: 10}

	f.messages.process(ctx, incomingFrom(1, "what is 2+2?"), placeholder, "en")

	finals := f.sink.CallsOf("edit_html")
	require.Len(t, finals, 1)
	assert.Equal(t, "4", finals[0].Plain)

	history, err := f.store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "what is 2+2?", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "4", history[1].Content)
}

func TestLongAnswerRendersIncrementally(t *testing.T) {
	f := newFixture(t)

	// Four 30-rune chunks: crossings after 60 and 120 runes.
	chunk := strings.Repeat("abcde ", 5)
	f.aiClient.chunks = []string{chunk, chunk, chunk, chunk}
	placeholder := telegram.MessageRef{ChatID: 1, MessageID: 10}

	f.messages.process(context.Background(), incomingFrom(1, "tell me more"), placeholder, "en")

	partials := f.sink.CallsOf("edit")
	require.Len(t, partials, 2)
	assert.Equal(t, strings.Repeat(chunk, 2), partials[0].Text)
	assert.Equal(t, strings.Repeat(chunk, 4), partials[1].Text)

	finals := f.sink.CallsOf("edit_html")
	require.Len(t, finals, 1)
	assert.Equal(t, strings.Repeat(chunk, 4), finals[0].Plain)
}

func TestThresholdCountsRunesNotBytes(t *testing.T) {
	f := newFixture(t)

	// 40 CJK runes are 120 bytes; byte counting would cross the
	// threshold, rune counting must not.
	f.aiClient.chunks = []string{strings.Repeat("字", 40)}
	placeholder := telegram.MessageRef{ChatID: 1, MessageID: 10}

	f.messages.process(context.Background(), incomingFrom(1, "hi"), placeholder, "en")

	assert.Empty(t, f.sink.CallsOf("edit"))
	assert.Len(t, f.sink.CallsOf("edit_html"), 1)
}

func TestErrorChunkStillRenderedAndPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.aiClient.chunks = []string{ai.ErrorPrefix + "Generation failed: boom"}
	placeholder := telegram.MessageRef{ChatID: 1, MessageID: 10}

	f.messages.process(ctx, incomingFrom(1, "hi"), placeholder, "en")

	finals := f.sink.CallsOf("edit_html")
	require.Len(t, finals, 1)
	assert.Contains(t, finals[0].Plain, "Generation failed")

	history, err := f.store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Contains(t, history[1].Content, "Generation failed")
}

func TestStreamRequestCarriesUserSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpdateModel(ctx, 1, "gpt-4"))
	require.NoError(t, f.store.UpdateMaxTokens(ctx, 1, 2000))
	require.NoError(t, f.store.UpdateBaseURL(ctx, 1, "https://proxy.example.com/v1"))

	f.aiClient.chunks = []string{"ok"}
	f.messages.process(ctx, incomingFrom(1, "hi"), telegram.MessageRef{ChatID: 1, MessageID: 10}, "en")

	req := f.aiClient.lastRequest
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, 2000, req.MaxTokens)
	assert.Equal(t, "https://proxy.example.com/v1", req.BaseURL)
	// History includes the just-saved user message.
	require.NotEmpty(t, req.History)
	assert.Equal(t, "hi", req.History[len(req.History)-1].Content)
}

func TestAssistantPathSkipsStreaming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpdateAssistantURL(ctx, 1, "https://hook.example.com"))
	f.aiClient.assistantAnswer = "from the assistant"

	f.messages.process(ctx, incomingFrom(1, "hi"), telegram.MessageRef{ChatID: 1, MessageID: 10}, "en")

	assert.Equal(t, "https://hook.example.com", f.aiClient.assistantURL)
	assert.Empty(t, f.aiClient.lastRequest.Model, "no completion stream started")

	finals := f.sink.CallsOf("edit_html")
	require.Len(t, finals, 1)
	assert.Equal(t, "from the assistant", finals[0].Plain)

	history, err := f.store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "from the assistant", history[1].Content)
}

func TestHandleMessagePendingInputConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.pending.Set(ctx, 1, pending.AwaitingTokens))

	update := &tgbotapi.Update{Message: privateMessage(1, "500")}
	require.NoError(t, f.messages.HandleMessage(ctx, update))

	settings, err := f.store.GetUserSettings(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 500, settings.MaxTokens)

	// Consumed as settings input: no generation placeholder was sent.
	assert.Empty(t, f.sink.CallsOf("reply"))
}

func TestHandleMessageIgnoresUnaddressedGroupChatter(t *testing.T) {
	f := newFixture(t)

	msg := privateMessage(1, "hello everyone")
	msg.Chat.Type = "group"

	require.NoError(t, f.messages.HandleMessage(context.Background(), &tgbotapi.Update{Message: msg}))
	assert.Empty(t, f.sink.Calls())
}

func TestHandleMessageIgnoresOwnMessages(t *testing.T) {
	f := newFixture(t)

	msg := privateMessage(999, "echo") // botID in the fixture

	require.NoError(t, f.messages.HandleMessage(context.Background(), &tgbotapi.Update{Message: msg}))
	assert.Empty(t, f.sink.Calls())
}
