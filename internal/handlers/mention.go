package handlers

import (
	"strings"
)

// commands a handle-qualified form of which also counts as addressing the
// bot in a group
var mentionableCommands = []string{"start", "settings", "help"}

// mentionTokens returns every token that addresses the bot
func mentionTokens(botHandle string) []string {
	tokens := make([]string, 0, len(mentionableCommands)+1)
	tokens = append(tokens, "@"+botHandle)
	for _, cmd := range mentionableCommands {
		tokens = append(tokens, "/"+cmd+"@"+botHandle)
	}
	return tokens
}

// Admit decides whether a text message is addressed to the bot and strips
// the address tokens from it. Private chats are always admitted with the
// text unmodified; group chats require an explicit mention. The cleaned
// text may legitimately be empty.
func Admit(chatType, text, botHandle string) (bool, string) {
	if chatType == "private" {
		return true, text
	}

	tokens := mentionTokens(botHandle)

	mentioned := false
	for _, token := range tokens {
		if strings.Contains(text, token) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return false, ""
	}

	// Handle-qualified commands are longer than the bare mention, strip
	// them first so "/start@bot" does not leave "/start" behind.
	cleaned := text
	for _, token := range tokens[1:] {
		cleaned = strings.ReplaceAll(cleaned, token, "")
	}
	cleaned = strings.ReplaceAll(cleaned, tokens[0], "")

	return true, strings.TrimSpace(cleaned)
}
