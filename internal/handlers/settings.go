package handlers

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/gpt-tgbot-go/internal/i18n"
	"github.com/gpt-tgbot-go/internal/middleware"
	"github.com/gpt-tgbot-go/internal/models"
	"github.com/gpt-tgbot-go/internal/services/pending"
	"github.com/gpt-tgbot-go/internal/services/storage"
	"github.com/gpt-tgbot-go/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Temperature moves in fixed steps within [0, 1]
const (
	temperatureStep = 0.1
	temperatureMin  = 0.0
	temperatureMax  = 1.0
)

// minTokens is the smallest accepted max-token budget
const minTokens = 150

// tokenPresets are the fixed token budgets offered in the menu
var tokenPresets = []int{150, 500, 1000, 2000, 4000}

// modelPresets are the fixed model choices offered in the menu
var modelPresets = []string{"gpt-3.5-turbo", "gpt-4", "gpt-4-turbo-preview", "claude-3-sonnet"}

// SettingsHandler drives the interactive settings menus: button callbacks
// mutate settings directly or arm a pending action that the next free-text
// message fulfills
type SettingsHandler struct {
	config    *config.Config
	sink      telegram.Sink
	store     *storage.Store
	pending   pending.Store
	metrics   *middleware.Metrics
	localizer *i18n.Localizer
	logger    *logrus.Logger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(
	cfg *config.Config,
	sink telegram.Sink,
	store *storage.Store,
	pendingStore pending.Store,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *SettingsHandler {
	return &SettingsHandler{
		config:    cfg,
		sink:      sink,
		store:     store,
		pending:   pendingStore,
		metrics:   metrics,
		localizer: localizer,
		logger:    logger,
	}
}

func (h *SettingsHandler) lang() string {
	return h.config.I18n.DefaultLanguage
}

// HandleSettingsCommand renders the root settings menu as a new message
func (h *SettingsHandler) HandleSettingsCommand(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID

	if _, err := h.store.GetOrCreateUser(ctx, userID, msg.From.UserName, msg.From.FirstName, msg.From.LastName); err != nil {
		return err
	}

	settings, err := h.store.GetUserSettings(ctx, userID)
	if err != nil {
		return err
	}

	keyboard := h.mainKeyboard()
	_, err = h.sink.SendHTML(msg.Chat.ID, h.formatSettings(settings), &keyboard)
	return err
}

// HandleCallback interprets one settings button press
func (h *SettingsHandler) HandleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil {
		return nil
	}

	userID := cb.From.ID
	ref := telegram.MessageRef{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.MessageID}
	data := cb.Data
	lang := h.lang()

	h.metrics.RecordCallbackEvent(callbackFamily(data))

	if err := h.sink.AnswerCallback(cb.ID, ""); err != nil {
		h.logger.WithError(err).Debug("Failed to answer callback")
	}

	switch {
	case data == "settings_model":
		keyboard := h.modelKeyboard()
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgChooseModel, nil), &keyboard)

	case data == "settings_temperature":
		settings, err := h.store.GetUserSettings(ctx, userID)
		if err != nil {
			return err
		}
		keyboard := h.temperatureKeyboard(settings.Temperature)
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgChooseTemperature, nil), &keyboard)

	case data == "settings_max_tokens":
		keyboard := h.tokensKeyboard()
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgChooseTokens, nil), &keyboard)

	case data == "settings_base_url":
		if err := h.pending.Set(ctx, userID, pending.AwaitingBaseURL); err != nil {
			return err
		}
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgPromptBaseURL, nil), nil)

	case data == "settings_ai_assistant":
		settings, err := h.store.GetUserSettings(ctx, userID)
		if err != nil {
			return err
		}
		keyboard := h.assistantKeyboard(settings.UseAssistant)
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgAssistantMenu, nil), &keyboard)

	case data == "settings_close":
		// The menu session just ends; a pending action, if armed, stays
		// armed until the next text message consumes it.
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgSettingsClosed, nil), nil)

	case data == "settings_back":
		settings, err := h.store.GetUserSettings(ctx, userID)
		if err != nil {
			return err
		}
		keyboard := h.mainKeyboard()
		return h.sink.EditHTML(ref, h.formatSettings(settings), h.formatSettings(settings), &keyboard)

	case data == "model_custom":
		if err := h.pending.Set(ctx, userID, pending.AwaitingModel); err != nil {
			return err
		}
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgPromptModel, nil), nil)

	case strings.HasPrefix(data, "model_"):
		model := strings.TrimPrefix(data, "model_")
		if err := h.store.UpdateModel(ctx, userID, model); err != nil {
			return err
		}
		keyboard := h.modelKeyboard()
		text := h.localizer.Get(lang, i18n.MsgModelSet, map[string]interface{}{"Model": model})
		return h.sink.Edit(ref, text, &keyboard)

	case data == "temp_increase" || data == "temp_decrease":
		return h.adjustTemperature(ctx, userID, ref, data == "temp_increase")

	case data == "temp_info":
		return nil

	case data == "tokens_custom":
		if err := h.pending.Set(ctx, userID, pending.AwaitingTokens); err != nil {
			return err
		}
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgPromptTokens, nil), nil)

	case strings.HasPrefix(data, "tokens_"):
		tokens, err := strconv.Atoi(strings.TrimPrefix(data, "tokens_"))
		if err != nil {
			return nil
		}
		if err := h.store.UpdateMaxTokens(ctx, userID, tokens); err != nil {
			return err
		}
		keyboard := h.tokensKeyboard()
		text := h.localizer.Get(lang, i18n.MsgTokensSet, map[string]interface{}{"Tokens": tokens})
		return h.sink.Edit(ref, text, &keyboard)

	case data == "ai_assistant_toggle":
		settings, err := h.store.GetUserSettings(ctx, userID)
		if err != nil {
			return err
		}
		enabled := !settings.UseAssistant
		if err := h.store.UpdateUseAssistant(ctx, userID, enabled); err != nil {
			return err
		}
		return h.sink.EditMarkup(ref, h.assistantKeyboard(enabled))

	case data == "ai_assistant_url":
		if err := h.pending.Set(ctx, userID, pending.AwaitingAssistant); err != nil {
			return err
		}
		return h.sink.Edit(ref, h.localizer.Get(lang, i18n.MsgPromptAssistantURL, nil), nil)
	}

	return nil
}

// adjustTemperature applies one ±step change, clamped to the valid range,
// and refreshes the keyboard in place
func (h *SettingsHandler) adjustTemperature(ctx context.Context, userID int64, ref telegram.MessageRef, increase bool) error {
	settings, err := h.store.GetUserSettings(ctx, userID)
	if err != nil {
		return err
	}

	temp := settings.Temperature
	if increase {
		temp += temperatureStep
	} else {
		temp -= temperatureStep
	}
	// One decimal place keeps repeated adjustments from accumulating
	// floating point drift.
	temp = math.Round(temp*10) / 10
	temp = math.Min(temperatureMax, math.Max(temperatureMin, temp))

	if err := h.store.UpdateTemperature(ctx, userID, temp); err != nil {
		return err
	}

	return h.sink.EditMarkup(ref, h.temperatureKeyboard(temp))
}

// HandlePendingInput checks whether text is the awaited input for a pending
// settings action and applies it. The pending action is consumed no matter
// whether the input validates; a rejected value requires re-opening the
// menu. Returns true when the message was consumed as settings input.
func (h *SettingsHandler) HandlePendingInput(ctx context.Context, userID, chatID int64, text string) (bool, error) {
	action, err := h.pending.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if action == pending.None {
		return false, nil
	}

	if err := h.pending.Clear(ctx, userID); err != nil {
		h.logger.WithError(err).Warn("Failed to clear pending action")
	}

	lang := h.lang()
	text = strings.TrimSpace(text)

	switch action {
	case pending.AwaitingModel:
		if err := h.store.UpdateModel(ctx, userID, text); err != nil {
			return true, h.sendStoreFailure(chatID, err)
		}
		return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgModelSet, map[string]interface{}{"Model": text}))

	case pending.AwaitingTokens:
		tokens, err := strconv.Atoi(text)
		if err != nil {
			return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgInvalidTokens, nil))
		}
		if tokens < minTokens {
			return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgTokensTooSmall, nil))
		}
		if err := h.store.UpdateMaxTokens(ctx, userID, tokens); err != nil {
			return true, h.sendStoreFailure(chatID, err)
		}
		return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgTokensSet, map[string]interface{}{"Tokens": tokens}))

	case pending.AwaitingBaseURL:
		if !validURL(text) {
			return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgInvalidURL, nil))
		}
		if err := h.store.UpdateBaseURL(ctx, userID, text); err != nil {
			return true, h.sendStoreFailure(chatID, err)
		}
		return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgBaseURLSet, map[string]interface{}{"URL": text}))

	case pending.AwaitingAssistant:
		if !validURL(text) {
			return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgInvalidURL, nil))
		}
		// Entering an assistant URL implies the user wants the assistant
		// path; the store switches use_assistant on in the same update.
		if err := h.store.UpdateAssistantURL(ctx, userID, text); err != nil {
			return true, h.sendStoreFailure(chatID, err)
		}
		return true, h.send(chatID, h.localizer.Get(lang, i18n.MsgAssistantURLSet, map[string]interface{}{"URL": text}))
	}

	return false, nil
}

func (h *SettingsHandler) send(chatID int64, text string) error {
	_, err := h.sink.Send(chatID, text, nil)
	return err
}

func (h *SettingsHandler) sendStoreFailure(chatID int64, cause error) error {
	h.logger.WithError(cause).Error("Settings store update failed")
	return h.send(chatID, h.localizer.Get(h.lang(), i18n.MsgError, nil))
}

// formatSettings renders the root menu body with current values
func (h *SettingsHandler) formatSettings(settings *models.UserSettings) string {
	lang := h.lang()

	status := h.localizer.Get(lang, i18n.MsgAssistantDisabled, nil)
	if settings.UseAssistant {
		status = h.localizer.Get(lang, i18n.MsgAssistantEnabled, nil)
	}

	return fmt.Sprintf(
		"<b>%s</b>\n\n"+
			"🤖 <b>Model:</b> %s\n"+
			"🌡️ <b>Temperature:</b> %.1f\n"+
			"📏 <b>Max tokens:</b> %d\n"+
			"🔗 <b>Base URL:</b> %s\n"+
			"🤖 <b>AI assistant:</b> %s",
		h.localizer.Get(lang, i18n.MsgSettingsTitle, nil),
		settings.Model,
		settings.Temperature,
		settings.MaxTokens,
		settings.BaseURL,
		status,
	)
}

func validURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// callbackFamily maps callback data to a low-cardinality metrics label
func callbackFamily(data string) string {
	switch {
	case strings.HasPrefix(data, "settings_"):
		return data
	case strings.HasPrefix(data, "model_"):
		return "model"
	case strings.HasPrefix(data, "temp_"):
		return "temperature"
	case strings.HasPrefix(data, "tokens_"):
		return "tokens"
	case strings.HasPrefix(data, "ai_assistant_"):
		return "assistant"
	default:
		return "other"
	}
}
