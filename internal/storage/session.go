package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionStore handles browser session persistence.
type SessionStore struct {
	db *Database
}

// NewSessionStore creates a new session store.
func NewSessionStore(db *Database) *SessionStore {
	return &SessionStore{db: db}
}

// Create stores a new session token for a user.
func (s *SessionStore) Create(token, userID string, expiresAt time.Time) error {
	query := `INSERT INTO sessions (session_token, user_id, expires_at) VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, token, userID, expiresAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get returns the session for a token, or nil if the token is unknown
// or expired. Expired sessions are removed on read.
func (s *SessionStore) Get(token string) (*Session, error) {
	var sess Session
	query := `SELECT * FROM sessions WHERE session_token = ?`
	err := s.db.Get(&sess, query, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if time.Now().After(sess.ExpiresAt) {
		_ = s.Delete(token)
		return nil, nil
	}
	return &sess, nil
}

// Delete removes a session token.
func (s *SessionStore) Delete(token string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE session_token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
