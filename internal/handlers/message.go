package handlers

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/gpt-tgbot-go/internal/i18n"
	"github.com/gpt-tgbot-go/internal/middleware"
	"github.com/gpt-tgbot-go/internal/models"
	"github.com/gpt-tgbot-go/internal/services/ai"
	"github.com/gpt-tgbot-go/internal/services/cache"
	"github.com/gpt-tgbot-go/internal/services/storage"
	"github.com/gpt-tgbot-go/internal/telegram"
	"github.com/gpt-tgbot-go/pkg/logger"
	"github.com/gpt-tgbot-go/pkg/markdown"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// MessageHandler turns inbound text messages into streamed answers
type MessageHandler struct {
	config      *config.Config
	sink        telegram.Sink
	aiClient    ai.Client
	store       *storage.Store
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	metrics     *middleware.Metrics
	localizer   *i18n.Localizer
	settings    *SettingsHandler
	botID       int64
	botHandle   string
	logger      *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	sink telegram.Sink,
	aiClient ai.Client,
	store *storage.Store,
	cacheService cache.Service,
	rateLimiter middleware.RateLimiter,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	settings *SettingsHandler,
	botID int64,
	botHandle string,
	logger *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		config:      cfg,
		sink:        sink,
		aiClient:    aiClient,
		store:       store,
		cache:       cacheService,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		localizer:   localizer,
		settings:    settings,
		botID:       botID,
		botHandle:   botHandle,
		logger:      logger,
	}
}

// HandleMessage processes one non-command text message
func (h *MessageHandler) HandleMessage(ctx context.Context, update *tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Text == "" || msg.IsCommand() {
		return nil
	}

	// Ignore the bot's own messages
	if msg.From == nil || msg.From.ID == h.botID {
		return nil
	}

	userID := msg.From.ID
	chatID := msg.Chat.ID
	lang := h.config.I18n.DefaultLanguage

	admitted, cleaned := Admit(msg.Chat.Type, msg.Text, h.botHandle)
	if !admitted {
		return nil
	}

	// In a private chat the message may be free-text input for a pending
	// settings action; that consumes it before the relay sees it.
	if msg.Chat.IsPrivate() {
		consumed, err := h.settings.HandlePendingInput(ctx, userID, chatID, msg.Text)
		if err != nil {
			h.logger.WithError(err).Error("Failed to handle pending settings input")
		}
		if consumed {
			return nil
		}
	}

	if !h.rateLimiter.Allow(userID) {
		h.metrics.RecordRateLimitExceeded()
		if _, err := h.sink.Reply(chatID, msg.MessageID, h.localizer.Get(lang, i18n.MsgRateLimitExceeded, nil), nil); err != nil {
			h.logger.WithError(err).Error("Failed to send rate limit message")
		}
		return nil
	}

	incoming := models.Incoming{
		UserID:    userID,
		ChatID:    chatID,
		MessageID: msg.MessageID,
		Text:      cleaned,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}

	placeholder, err := h.sink.Reply(chatID, msg.MessageID, h.localizer.Get(lang, i18n.MsgGenerating, nil), nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to send placeholder message")
		return err
	}

	// Each conversation runs as its own task so one slow backend call
	// does not block other users' updates.
	go h.process(ctx, incoming, placeholder, lang)

	return nil
}

// process runs the full relay pipeline for one inbound message
func (h *MessageHandler) process(ctx context.Context, in models.Incoming, placeholder telegram.MessageRef, lang string) {
	log := logger.WithContext(h.logger, in.ChatID, in.UserID)

	if _, err := h.store.GetOrCreateUser(ctx, in.UserID, in.Username, in.FirstName, in.LastName); err != nil {
		log.WithError(err).Error("Failed to get or create user")
		h.renderFailure(placeholder, lang)
		return
	}

	settings, err := h.store.GetUserSettings(ctx, in.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load user settings")
		h.renderFailure(placeholder, lang)
		return
	}

	// The inbound message is recorded before generation starts so it is
	// never lost to a backend failure.
	if err := h.store.SaveMessage(ctx, in.UserID, in.ChatID, roleUser, in.Text); err != nil {
		log.WithError(err).Error("Failed to persist user message")
		h.renderFailure(placeholder, lang)
		return
	}

	history, err := h.store.History(ctx, in.UserID, h.config.Stream.HistoryLimit)
	if err != nil {
		log.WithError(err).Error("Failed to load conversation history")
		h.renderFailure(placeholder, lang)
		return
	}

	var answer string
	if settings.UseAssistant && settings.AssistantURL != "" {
		answer = h.callAssistant(ctx, in, settings, placeholder, log)
	} else {
		answer = h.streamCompletion(ctx, in, settings, history, placeholder, log)
	}

	if err := h.store.SaveMessage(ctx, in.UserID, in.ChatID, roleAssistant, answer); err != nil {
		log.WithError(err).Error("Failed to persist assistant message")
	}
}

// callAssistant handles the external-assistant path: one synchronous call,
// one final render, no incremental streaming
func (h *MessageHandler) callAssistant(ctx context.Context, in models.Incoming, settings *models.UserSettings, placeholder telegram.MessageRef, log *logrus.Entry) string {
	start := time.Now()
	answer := h.aiClient.CallAssistant(ctx, settings.AssistantURL, in.Text)

	status := "success"
	if strings.HasPrefix(answer, ai.ErrorPrefix) {
		status = "error"
	}
	h.metrics.RecordGeneration("assistant", status, time.Since(start))

	h.renderFinal(placeholder, answer, log)
	return answer
}

// streamCompletion drives the chunked completion stream, editing the
// placeholder message as the answer grows
func (h *MessageHandler) streamCompletion(ctx context.Context, in models.Incoming, settings *models.UserSettings, history []models.Message, placeholder telegram.MessageRef, log *logrus.Entry) string {
	if answer, found := h.cache.Get(ctx, in.Text, settings.Model); found {
		h.metrics.RecordCacheHit()
		h.renderFinal(placeholder, answer, log)
		return answer
	}
	h.metrics.RecordCacheMiss()

	start := time.Now()
	chunks := h.aiClient.Stream(ctx, ai.StreamRequest{
		History:     history,
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
		BaseURL:     settings.BaseURL,
	})

	threshold := h.config.Stream.EditThreshold

	var buf strings.Builder
	length := 0
	lastRendered := 0

	for chunk := range chunks {
		buf.WriteString(chunk)
		length += utf8.RuneCountInString(chunk)

		// Edit whenever the buffer has crossed another threshold multiple
		// since the last render. Failed partial edits are dropped; the
		// final render below is the one that matters.
		if length/threshold > lastRendered/threshold {
			if err := h.sink.Edit(placeholder, buf.String(), nil); err == nil {
				h.metrics.RecordStreamRender()
			} else {
				log.WithError(err).Debug("Partial render dropped")
			}
			lastRendered = length
		}
	}

	answer := buf.String()

	status := "success"
	if strings.HasPrefix(answer, ai.ErrorPrefix) || strings.Contains(answer, "\n"+ai.ErrorPrefix) {
		status = "error"
	}
	h.metrics.RecordGeneration("stream", status, time.Since(start))

	h.renderFinal(placeholder, answer, log)

	if status == "success" && answer != "" {
		if err := h.cache.Set(ctx, in.Text, settings.Model, answer); err != nil {
			log.WithError(err).Warn("Failed to cache answer")
		}
	}

	return answer
}

// renderFinal performs the mandatory final edit with the complete answer.
// A failure here has no user-visible fallback, so it is logged and dropped.
func (h *MessageHandler) renderFinal(ref telegram.MessageRef, answer string, log *logrus.Entry) {
	html := markdown.ToTelegramHTML(answer)
	if err := h.sink.EditHTML(ref, html, answer, nil); err != nil {
		log.WithError(err).Error("Final render failed")
	}
}

// renderFailure replaces the placeholder with a generic failure notice
func (h *MessageHandler) renderFailure(ref telegram.MessageRef, lang string) {
	if err := h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgError, nil), nil); err != nil {
		h.logger.WithError(err).Error("Failed to render failure notice")
	}
}
