package i18n

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer from the configured message catalogs
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		path := filepath.Join(cfg.Directory, lang+".json")
		if _, err := bundle.LoadMessageFile(path); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", path, err)
		}
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns the localized message, falling back to the default language
// and finally to the message ID itself
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}
	if localizer == nil {
		return messageID
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}

	return msg
}

// Message IDs
const (
	MsgWelcome           = "welcome"
	MsgHelp              = "help"
	MsgGenerating        = "generating"
	MsgError             = "error"
	MsgRateLimitExceeded = "rate_limit_exceeded"
	MsgUnknownCommand    = "unknown_command"

	MsgSettingsTitle     = "settings_title"
	MsgSettingsClosed    = "settings_closed"
	MsgChooseModel       = "choose_model"
	MsgChooseTemperature = "choose_temperature"
	MsgChooseTokens      = "choose_tokens"
	MsgAssistantMenu     = "assistant_menu"

	MsgPromptModel        = "prompt_model"
	MsgPromptTokens       = "prompt_tokens"
	MsgPromptBaseURL      = "prompt_base_url"
	MsgPromptAssistantURL = "prompt_assistant_url"

	MsgModelSet        = "model_set"
	MsgTokensSet       = "tokens_set"
	MsgBaseURLSet      = "base_url_set"
	MsgAssistantURLSet = "assistant_url_set"

	MsgInvalidTokens     = "invalid_tokens"
	MsgTokensTooSmall    = "tokens_too_small"
	MsgInvalidURL        = "invalid_url"
	MsgAssistantEnabled  = "assistant_enabled"
	MsgAssistantDisabled = "assistant_disabled"
)
