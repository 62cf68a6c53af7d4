package models

import (
	"time"
)

// Message represents a single chat message in the wire format understood
// by OpenAI-compatible completion endpoints
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// User represents a Telegram user known to the bot. Created on first
// contact and never deleted; display metadata may be refreshed.
type User struct {
	ID        int64
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	CreatedAt time.Time
}

// UserSettings represents per-user generation settings, one row per user
type UserSettings struct {
	UserID       int64
	Model        string
	Temperature  float64
	MaxTokens    int
	BaseURL      string
	UseAssistant bool
	AssistantURL string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Incoming is a cleaned inbound text message, independent of its origin
// chat kind. Both the private-chat path and the admitted group path build
// the same value before handing it to the streaming relay.
type Incoming struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Text      string
	Username  string
	FirstName string
	LastName  string
}

// CacheEntry represents a cached generation answer
type CacheEntry struct {
	Question  string
	Answer    string
	Model     string
	CreatedAt time.Time
}
