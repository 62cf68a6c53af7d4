package handlers

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// progressBarWidth is the number of cells in the temperature gauge
const progressBarWidth = 10

// mainKeyboard is the root settings menu
func (h *SettingsHandler) mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🤖 Model", "settings_model"),
			tgbotapi.NewInlineKeyboardButtonData("🌡️ Temperature", "settings_temperature"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📏 Max tokens", "settings_max_tokens"),
			tgbotapi.NewInlineKeyboardButtonData("🔗 Base URL", "settings_base_url"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🤖 AI assistant", "settings_ai_assistant"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Close", "settings_close"),
		),
	)
}

// modelKeyboard lists the preset models plus a custom entry
func (h *SettingsHandler) modelKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(modelPresets)+2)
	for _, model := range modelPresets {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(model, "model_"+model),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✏️ Custom model", "model_custom"),
	))
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// temperatureKeyboard shows a gauge row plus step buttons
func (h *SettingsHandler) temperatureKeyboard(temp float64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(temperatureBar(temp), "temp_info"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➖", "temp_decrease"),
			tgbotapi.NewInlineKeyboardButtonData("➕", "temp_increase"),
		),
		backRow(),
	)
}

// tokensKeyboard lists the preset budgets plus a custom entry
func (h *SettingsHandler) tokensKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 4)
	row := make([]tgbotapi.InlineKeyboardButton, 0, 3)
	for _, preset := range tokenPresets {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d", preset), fmt.Sprintf("tokens_%d", preset),
		))
		if len(row) == 3 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 3)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✏️ Custom amount", "tokens_custom"),
	))
	rows = append(rows, backRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// assistantKeyboard shows the toggle with its current state and the URL entry
func (h *SettingsHandler) assistantKeyboard(enabled bool) tgbotapi.InlineKeyboardMarkup {
	toggle := "🔴 Assistant: off"
	if enabled {
		toggle = "🟢 Assistant: on"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, "ai_assistant_toggle"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔗 Set assistant URL", "ai_assistant_url"),
		),
		backRow(),
	)
}

func backRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "settings_back"),
	)
}

// temperatureBar renders the gauge, e.g. "🌡️ 0.7 ███████░░░"
func temperatureBar(temp float64) string {
	filled := int(temp*progressBarWidth + 0.5)
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	if filled < 0 {
		filled = 0
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🌡️ %.1f ", temp)
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", progressBarWidth-filled))
	return b.String()
}
