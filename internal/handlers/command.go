package handlers

import (
	"context"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/gpt-tgbot-go/internal/i18n"
	"github.com/gpt-tgbot-go/internal/middleware"
	"github.com/gpt-tgbot-go/internal/services/storage"
	"github.com/gpt-tgbot-go/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// CommandHandler dispatches bot commands
type CommandHandler struct {
	config    *config.Config
	sink      telegram.Sink
	store     *storage.Store
	settings  *SettingsHandler
	metrics   *middleware.Metrics
	localizer *i18n.Localizer
	botHandle string
	logger    *logrus.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	cfg *config.Config,
	sink telegram.Sink,
	store *storage.Store,
	settings *SettingsHandler,
	metrics *middleware.Metrics,
	localizer *i18n.Localizer,
	botHandle string,
	logger *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		config:    cfg,
		sink:      sink,
		store:     store,
		settings:  settings,
		metrics:   metrics,
		localizer: localizer,
		botHandle: botHandle,
		logger:    logger,
	}
}

// HandleCommand processes one bot command
func (h *CommandHandler) HandleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	// Commands addressed to another bot in a group are not ours.
	if admitted, _ := Admit(msg.Chat.Type, msg.Text, h.botHandle); !admitted {
		return nil
	}

	command := msg.Command()
	lang := h.config.I18n.DefaultLanguage

	h.metrics.RecordCommandExecuted(command)
	h.logger.WithFields(logrus.Fields{
		"user_id": msg.From.ID,
		"command": command,
	}).Info("Processing command")

	switch command {
	case "start":
		if _, err := h.store.GetOrCreateUser(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName, msg.From.LastName); err != nil {
			h.logger.WithError(err).Error("Failed to register user")
		}
		_, err := h.sink.Send(msg.Chat.ID, h.localizer.Get(lang, i18n.MsgWelcome, nil), nil)
		return err

	case "help":
		_, err := h.sink.SendHTML(msg.Chat.ID, h.localizer.Get(lang, i18n.MsgHelp, nil), nil)
		return err

	case "settings":
		return h.settings.HandleSettingsCommand(ctx, msg)

	default:
		_, err := h.sink.Send(msg.Chat.ID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil), nil)
		return err
	}
}
