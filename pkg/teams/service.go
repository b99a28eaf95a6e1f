package teams

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lnkhq/fedgate/pkg/identity"
)

// DefaultRole is assigned to auto-provisioned users when the
// configuration does not specify one.
const DefaultRole = "member"

// ErrProvisioningDisabled is returned when no account exists for the
// identity and the configuration forbids creating one.
var ErrProvisioningDisabled = errors.New("auto-provisioning is disabled and no matching account exists")

// User is an internal account within a team.
type User struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"teamId"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	FullName    string     `json:"fullName,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// ProvisionPolicy is the slice of an SSO configuration that drives user
// resolution.
type ProvisionPolicy struct {
	AutoProvision bool
	DefaultRole   string
}

// Outcome reports how an identity was resolved.
type Outcome string

const (
	// OutcomeCreated means a new account was provisioned.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means an already-linked account was refreshed.
	OutcomeUpdated Outcome = "updated"
	// OutcomeLinked means an existing account was linked to the
	// external identity for the first time.
	OutcomeLinked Outcome = "linked"
)

// Service resolves external identities against PostgreSQL-backed
// account records.
type Service struct {
	db *sql.DB
}

// NewService creates a new Service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ProvisionUser resolves the identity to an internal user. An identity
// already linked to the configuration is updated; an unlinked identity
// matching an existing account by email is linked; otherwise a new
// account is created when the policy allows it.
func (s *Service) ProvisionUser(configID, teamID string, ext *identity.External, policy ProvisionPolicy) (*User, Outcome, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var userID string
	err = tx.QueryRow(`
		SELECT user_id
		FROM sso_user_links
		WHERE sso_config_id = $1 AND external_user_id = $2
	`, configID, ext.ExternalID).Scan(&userID)

	var outcome Outcome
	switch {
	case err == sql.ErrNoRows:
		userID, outcome, err = s.resolveUnlinked(tx, configID, teamID, ext, policy)
		if err != nil {
			return nil, "", err
		}
	case err != nil:
		return nil, "", fmt.Errorf("failed to look up user link: %w", err)
	default:
		outcome = OutcomeUpdated
		if err := s.refreshUser(tx, userID, configID, ext); err != nil {
			return nil, "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	user, err := s.getUser(userID)
	if err != nil {
		return nil, "", err
	}
	return user, outcome, nil
}

// resolveUnlinked handles an identity with no existing link: link by
// email when an account exists, create otherwise.
func (s *Service) resolveUnlinked(tx *sql.Tx, configID, teamID string, ext *identity.External, policy ProvisionPolicy) (string, Outcome, error) {
	var userID string
	err := tx.QueryRow(`
		SELECT id FROM users WHERE team_id = $1 AND email = $2
	`, teamID, ext.Email).Scan(&userID)

	switch {
	case err == sql.ErrNoRows:
		if !policy.AutoProvision {
			return "", "", ErrProvisioningDisabled
		}

		role := policy.DefaultRole
		if role == "" {
			role = DefaultRole
		}
		userID = uuid.NewString()
		_, err = tx.Exec(`
			INSERT INTO users (id, team_id, email, username, full_name, role, is_active, created_at, updated_at, last_login_at)
			VALUES ($1, $2, $3, $4, $5, $6, true, NOW(), NOW(), NOW())
		`, userID, teamID, ext.Email, ext.Username, ext.FullName(), role)
		if err != nil {
			return "", "", fmt.Errorf("failed to create user: %w", err)
		}

		if err := insertLink(tx, configID, ext.ExternalID, userID); err != nil {
			return "", "", err
		}
		return userID, OutcomeCreated, nil

	case err != nil:
		return "", "", fmt.Errorf("failed to look up user by email: %w", err)

	default:
		if err := insertLink(tx, configID, ext.ExternalID, userID); err != nil {
			return "", "", err
		}
		_, err = tx.Exec(`
			UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1
		`, userID)
		if err != nil {
			return "", "", fmt.Errorf("failed to update user: %w", err)
		}
		return userID, OutcomeLinked, nil
	}
}

// refreshUser updates an already-linked account with the latest
// identity attributes.
func (s *Service) refreshUser(tx *sql.Tx, userID, configID string, ext *identity.External) error {
	_, err := tx.Exec(`
		UPDATE users
		SET email = $1, full_name = $2, updated_at = NOW(), last_login_at = NOW()
		WHERE id = $3
	`, ext.Email, ext.FullName(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE sso_user_links
		SET last_login_at = NOW(), updated_at = NOW()
		WHERE sso_config_id = $1 AND external_user_id = $2
	`, configID, ext.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to update user link: %w", err)
	}
	return nil
}

func insertLink(tx *sql.Tx, configID, externalID, userID string) error {
	_, err := tx.Exec(`
		INSERT INTO sso_user_links (id, sso_config_id, external_user_id, user_id, last_login_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), NOW())
	`, uuid.NewString(), configID, externalID, userID)
	if err != nil {
		return fmt.Errorf("failed to create user link: %w", err)
	}
	return nil
}

func (s *Service) getUser(id string) (*User, error) {
	user := &User{}
	err := s.db.QueryRow(`
		SELECT id, team_id, email, username, full_name, role, is_active, created_at, updated_at, last_login_at
		FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.TeamID, &user.Email, &user.Username, &user.FullName,
		&user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return user, nil
}
