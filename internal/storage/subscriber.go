package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SubscriberStore handles subscriber-related database operations.
type SubscriberStore struct {
	db *Database
}

// NewSubscriberStore creates a new subscriber store.
func NewSubscriberStore(db *Database) *SubscriberStore {
	return &SubscriberStore{db: db}
}

// Upsert creates a subscriber on first login or refreshes the profile
// fields on subsequent logins. Channel addresses and opt-in flags are
// left untouched for existing accounts.
func (s *SubscriberStore) Upsert(email, name, picture string) (*Subscriber, error) {
	existing, err := s.GetByEmail(email)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		query := `UPDATE subscribers SET name = ?, picture = ? WHERE user_id = ?`
		if _, err := s.db.Exec(query, name, picture, existing.UserID); err != nil {
			return nil, fmt.Errorf("failed to update subscriber: %w", err)
		}
		return s.GetByID(existing.UserID)
	}

	userID := "user_" + uuid.NewString()[:12]
	query := `
		INSERT INTO subscribers (user_id, email, name, picture)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, userID, email, name, picture); err != nil {
		return nil, fmt.Errorf("failed to create subscriber: %w", err)
	}
	return s.GetByID(userID)
}

// GetByID returns a subscriber by user ID, or nil if not found.
func (s *SubscriberStore) GetByID(userID string) (*Subscriber, error) {
	var sub Subscriber
	query := `SELECT * FROM subscribers WHERE user_id = ?`
	err := s.db.Get(&sub, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber: %w", err)
	}
	return &sub, nil
}

// GetByEmail returns a subscriber by email, or nil if not found.
func (s *SubscriberStore) GetByEmail(email string) (*Subscriber, error) {
	var sub Subscriber
	query := `SELECT * FROM subscribers WHERE email = ?`
	err := s.db.Get(&sub, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscriber by email: %w", err)
	}
	return &sub, nil
}

// ListAll returns every subscriber. The resolver iterates this set for
// each transition.
func (s *SubscriberStore) ListAll() ([]Subscriber, error) {
	var subs []Subscriber
	query := `SELECT * FROM subscribers ORDER BY created_at`
	if err := s.db.Select(&subs, query); err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return subs, nil
}

// ConnectTelegram stores a subscriber's chat ID and enables Telegram
// alerts in the same action, matching the connect flow in the dashboard.
func (s *SubscriberStore) ConnectTelegram(userID, chatID string) error {
	query := `UPDATE subscribers SET telegram_chat_id = ?, alert_telegram = 1 WHERE user_id = ?`
	result, err := s.db.Exec(query, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to connect telegram: %w", err)
	}
	return requireRow(result)
}

// ConnectPhone stores a subscriber's phone number for SMS and voice
// alerts. Opt-in stays off until toggled explicitly.
func (s *SubscriberStore) ConnectPhone(userID, phone string) error {
	query := `UPDATE subscribers SET phone_number = ? WHERE user_id = ?`
	result, err := s.db.Exec(query, phone, userID)
	if err != nil {
		return fmt.Errorf("failed to connect phone: %w", err)
	}
	return requireRow(result)
}

// UpdateAlerts sets all per-channel opt-in flags at once.
func (s *SubscriberStore) UpdateAlerts(userID string, telegram, sms, voice bool) error {
	query := `
		UPDATE subscribers
		SET alert_telegram = ?, alert_sms = ?, alert_voice = ?
		WHERE user_id = ?
	`
	result, err := s.db.Exec(query, telegram, sms, voice, userID)
	if err != nil {
		return fmt.Errorf("failed to update alerts: %w", err)
	}
	return requireRow(result)
}

// DisableTelegramByChatID turns off Telegram alerts for every
// subscriber connected to the given chat. Used by the bot's /stop
// command, where only the chat ID is known.
func (s *SubscriberStore) DisableTelegramByChatID(chatID string) (int64, error) {
	query := `UPDATE subscribers SET alert_telegram = 0 WHERE telegram_chat_id = ?`
	result, err := s.db.Exec(query, chatID)
	if err != nil {
		return 0, fmt.Errorf("failed to disable telegram alerts: %w", err)
	}
	return result.RowsAffected()
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("subscriber not found")
	}
	return nil
}
