package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/gpt-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Default values applied to a freshly created user_settings row
const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	user_id INTEGER UNIQUE NOT NULL,
	username TEXT,
	first_name TEXT,
	last_name TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_settings (
	id INTEGER PRIMARY KEY,
	user_id INTEGER UNIQUE NOT NULL,
	model TEXT NOT NULL DEFAULT 'gpt-3.5-turbo',
	temperature REAL NOT NULL DEFAULT 0.7,
	max_tokens INTEGER NOT NULL DEFAULT 1000,
	base_url TEXT NOT NULL DEFAULT 'https://api.openai.com/v1',
	use_assistant INTEGER NOT NULL DEFAULT 0,
	assistant_url TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users (user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL,
	chat_id INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (user_id) REFERENCES users (user_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_user ON messages (user_id, created_at);
`

// Store persists users, their settings and the conversation log in SQLite
type Store struct {
	db         *sql.DB
	defaultURL string
	logger     *logrus.Logger
}

// NewStore opens (creating if needed) the SQLite database at the configured
// path. The OpenAI base URL from config becomes the per-user default.
func NewStore(cfg *config.Config, logger *logrus.Logger) (*Store, error) {
	// Foreign keys stay off: settings and message rows are created lazily
	// for users the relay sees before any /start registration.
	db, err := sql.Open("sqlite", cfg.Storage.Path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{
		db:         db,
		defaultURL: cfg.OpenAI.BaseURL,
		logger:     logger,
	}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreateUser returns the stored user row, creating it (together with a
// defaults settings row) on first contact. Display metadata is refreshed on
// every call; the identity itself is immutable.
func (s *Store) GetOrCreateUser(ctx context.Context, userID int64, username, firstName, lastName string) (*models.User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username=excluded.username,
			first_name=excluded.first_name,
			last_name=excluded.last_name
	`, userID, username, firstName, lastName)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	if err := s.ensureSettings(ctx, userID); err != nil {
		return nil, err
	}

	var u models.User
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, username, first_name, last_name, created_at
		FROM users WHERE user_id = ?
	`, userID).Scan(&u.ID, &u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return &u, nil
}

func (s *Store) ensureSettings(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (user_id, base_url)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, s.defaultURL)
	if err != nil {
		return fmt.Errorf("failed to ensure settings row: %w", err)
	}
	return nil
}

// GetUserSettings returns the user's settings, creating a defaults row on
// first access
func (s *Store) GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var (
			st           models.UserSettings
			assistantURL sql.NullString
		)
		err := s.db.QueryRowContext(ctx, `
			SELECT user_id, model, temperature, max_tokens, base_url,
			       use_assistant, assistant_url, created_at, updated_at
			FROM user_settings WHERE user_id = ?
		`, userID).Scan(&st.UserID, &st.Model, &st.Temperature, &st.MaxTokens,
			&st.BaseURL, &st.UseAssistant, &assistantURL, &st.CreatedAt, &st.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			if err := s.ensureSettings(ctx, userID); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		st.AssistantURL = assistantURL.String
		return &st, nil
	}
	return nil, fmt.Errorf("failed to create settings row for user %d", userID)
}

// Each settings field gets its own update statement; queries are never built
// from field-name strings.

func (s *Store) UpdateModel(ctx context.Context, userID int64, model string) error {
	return s.updateSetting(ctx, userID, `UPDATE user_settings SET model = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, model)
}

func (s *Store) UpdateTemperature(ctx context.Context, userID int64, temperature float64) error {
	return s.updateSetting(ctx, userID, `UPDATE user_settings SET temperature = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, temperature)
}

func (s *Store) UpdateMaxTokens(ctx context.Context, userID int64, maxTokens int) error {
	return s.updateSetting(ctx, userID, `UPDATE user_settings SET max_tokens = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, maxTokens)
}

func (s *Store) UpdateBaseURL(ctx context.Context, userID int64, baseURL string) error {
	return s.updateSetting(ctx, userID, `UPDATE user_settings SET base_url = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, baseURL)
}

func (s *Store) UpdateUseAssistant(ctx context.Context, userID int64, enabled bool) error {
	return s.updateSetting(ctx, userID, `UPDATE user_settings SET use_assistant = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, enabled)
}

// UpdateAssistantURL stores the assistant endpoint and switches the user to
// the assistant path in the same statement.
func (s *Store) UpdateAssistantURL(ctx context.Context, userID int64, url string) error {
	if err := s.ensureSettings(ctx, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE user_settings
		SET assistant_url = ?, use_assistant = 1, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?
	`, url, userID); err != nil {
		return fmt.Errorf("failed to update assistant url: %w", err)
	}
	return nil
}

func (s *Store) updateSetting(ctx context.Context, userID int64, query string, value interface{}) error {
	if err := s.ensureSettings(ctx, userID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, value, userID); err != nil {
		return fmt.Errorf("failed to update setting: %w", err)
	}
	return nil
}

// SaveMessage appends one message to the conversation log
func (s *Store) SaveMessage(ctx context.Context, userID, chatID int64, role, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, chat_id, role, content)
		VALUES (?, ?, ?, ?)
	`, userID, chatID, role, content)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// History returns the user's most recent messages in oldest-first order,
// at most limit rows
func (s *Store) History(ctx context.Context, userID int64, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM messages
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var newestFirst []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	history := make([]models.Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		history = append(history, newestFirst[i])
	}
	return history, nil
}
