package handlers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/gpt-tgbot-go/internal/i18n"
	"github.com/gpt-tgbot-go/internal/middleware"
	"github.com/gpt-tgbot-go/internal/services/ai"
	"github.com/gpt-tgbot-go/internal/services/cache"
	"github.com/gpt-tgbot-go/internal/services/pending"
	"github.com/gpt-tgbot-go/internal/services/storage"
	"github.com/gpt-tgbot-go/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// sinkCall records one outbound render operation
type sinkCall struct {
	Op     string // send, send_html, reply, edit, edit_html, edit_markup
	ChatID int64
	Ref    telegram.MessageRef
	Text   string
	Plain  string
	Markup *tgbotapi.InlineKeyboardMarkup
}

// fakeSink records every render call instead of talking to Telegram
type fakeSink struct {
	mu     sync.Mutex
	calls  []sinkCall
	nextID int
}

func (f *fakeSink) record(c sinkCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSink) Calls() []sinkCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sinkCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns the recorded calls matching op
func (f *fakeSink) CallsOf(op string) []sinkCall {
	var out []sinkCall
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSink) newRef(chatID int64) telegram.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return telegram.MessageRef{ChatID: chatID, MessageID: f.nextID}
}

func (f *fakeSink) Send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (telegram.MessageRef, error) {
	f.record(sinkCall{Op: "send", ChatID: chatID, Text: text, Markup: markup})
	return f.newRef(chatID), nil
}

func (f *fakeSink) SendHTML(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) (telegram.MessageRef, error) {
	f.record(sinkCall{Op: "send_html", ChatID: chatID, Text: text, Markup: markup})
	return f.newRef(chatID), nil
}

func (f *fakeSink) Reply(chatID int64, replyTo int, text string, markup *tgbotapi.InlineKeyboardMarkup) (telegram.MessageRef, error) {
	f.record(sinkCall{Op: "reply", ChatID: chatID, Text: text, Markup: markup})
	return f.newRef(chatID), nil
}

func (f *fakeSink) Edit(ref telegram.MessageRef, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.record(sinkCall{Op: "edit", Ref: ref, Text: text, Markup: markup})
	return nil
}

func (f *fakeSink) EditHTML(ref telegram.MessageRef, html, plain string, markup *tgbotapi.InlineKeyboardMarkup) error {
	f.record(sinkCall{Op: "edit_html", Ref: ref, Text: html, Plain: plain, Markup: markup})
	return nil
}

func (f *fakeSink) EditMarkup(ref telegram.MessageRef, markup tgbotapi.InlineKeyboardMarkup) error {
	f.record(sinkCall{Op: "edit_markup", Ref: ref, Markup: &markup})
	return nil
}

func (f *fakeSink) AnswerCallback(callbackID, text string) error {
	return nil
}

// fakeAI replays scripted chunks and assistant answers
type fakeAI struct {
	chunks          []string
	assistantAnswer string
	lastRequest     ai.StreamRequest
	assistantURL    string
}

func (f *fakeAI) Stream(ctx context.Context, req ai.StreamRequest) <-chan string {
	f.lastRequest = req
	out := make(chan string, len(f.chunks))
	for _, chunk := range f.chunks {
		out <- chunk
	}
	close(out)
	return out
}

func (f *fakeAI) CallAssistant(ctx context.Context, url, message string) string {
	f.assistantURL = url
	return f.assistantAnswer
}

// fixture wires the handlers against fakes and a throwaway database
type fixture struct {
	cfg      *config.Config
	sink     *fakeSink
	aiClient *fakeAI
	store    *storage.Store
	pending  pending.Store
	settings *SettingsHandler
	messages *MessageHandler
	commands *CommandHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.Storage.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Pending.Type = "memory"
	cfg.Pending.TTL = time.Hour
	cfg.Stream.EditThreshold = 50
	cfg.Stream.HistoryLimit = 10
	cfg.I18n.DefaultLanguage = "en"

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := storage.NewStore(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pendingStore, err := pending.NewStore(cfg, logger)
	require.NoError(t, err)

	sink := &fakeSink{}
	aiClient := &fakeAI{}
	metrics := middleware.NewMetrics()
	localizer := &i18n.Localizer{}

	settingsHandler := NewSettingsHandler(cfg, sink, store, pendingStore, metrics, localizer, logger)
	commandHandler := NewCommandHandler(cfg, sink, store, settingsHandler, metrics, localizer, "mybot", logger)
	messageHandler := NewMessageHandler(
		cfg, sink, aiClient, store, cache.NewCache(cfg, logger),
		middleware.NewRateLimiter(cfg, logger), metrics, localizer,
		settingsHandler, 999, "mybot", logger,
	)

	return &fixture{
		cfg:      cfg,
		sink:     sink,
		aiClient: aiClient,
		store:    store,
		pending:  pendingStore,
		settings: settingsHandler,
		messages: messageHandler,
		commands: commandHandler,
	}
}

func privateMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID, UserName: "tester", FirstName: "Test"},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}
}

func callback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:   "cb1",
		From: &tgbotapi.User{ID: userID, UserName: "tester"},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 77,
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		},
	}
}
