package sso

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists gateway sessions.
type SessionStore interface {
	Create(session *Session) error
	Get(id string) (*Session, error)
	ListByUser(userID string) ([]*Session, error)
	Delete(id string) error
	DeleteExpired() (int64, error)
}

// PostgresSessionStore is the PostgreSQL-backed SessionStore. Expiry is
// lazy: expired rows are invisible to reads and reaped by
// DeleteExpired.
type PostgresSessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a new PostgresSessionStore.
func NewSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

// Create inserts the session, assigning its ID and expiry.
func (s *PostgresSessionStore) Create(session *Session) error {
	session.ID = uuid.NewString()
	session.CreatedAt = time.Now()
	session.ExpiresAt = session.CreatedAt.Add(SessionTTL)

	attributes, err := json.Marshal(session.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal session attributes: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sso_sessions (id, user_id, team_id, sso_config_id, provider, name_id, session_index, attributes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, session.ID, session.UserID, session.TeamID, session.ConfigID, session.Provider,
		session.NameID, session.SessionIndex, attributes, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get fetches a live session by ID. Expired sessions report not found.
func (s *PostgresSessionStore) Get(id string) (*Session, error) {
	session := &Session{}
	var attributes []byte
	err := s.db.QueryRow(`
		SELECT id, user_id, team_id, sso_config_id, provider, name_id, session_index, attributes, created_at, expires_at
		FROM sso_sessions
		WHERE id = $1 AND expires_at > NOW()
	`, id).Scan(&session.ID, &session.UserID, &session.TeamID, &session.ConfigID,
		&session.Provider, &session.NameID, &session.SessionIndex, &attributes, &session.CreatedAt, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "session", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	if err := unmarshalAttributes(attributes, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListByUser returns a user's live sessions, most recent first.
func (s *PostgresSessionStore) ListByUser(userID string) ([]*Session, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, team_id, sso_config_id, provider, name_id, session_index, attributes, created_at, expires_at
		FROM sso_sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		var attributes []byte
		err := rows.Scan(&session.ID, &session.UserID, &session.TeamID, &session.ConfigID,
			&session.Provider, &session.NameID, &session.SessionIndex, &attributes, &session.CreatedAt, &session.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if err := unmarshalAttributes(attributes, session); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func unmarshalAttributes(raw []byte, session *Session) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &session.Attributes); err != nil {
		return fmt.Errorf("failed to unmarshal session attributes: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown or already-expired
// session is not an error.
func (s *PostgresSessionStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM sso_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CountActive returns the number of live sessions.
func (s *PostgresSessionStore) CountActive() (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sso_sessions WHERE expires_at > NOW()`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// DeleteExpired reaps expired rows and returns how many were removed.
func (s *PostgresSessionStore) DeleteExpired() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sso_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
