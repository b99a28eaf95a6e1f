package sso

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// pq error code for a unique constraint violation.
const uniqueViolation = "23505"

// ConfigStore persists SSO configurations and the domain index used for
// discovery.
type ConfigStore interface {
	Create(cfg *Configuration) error
	Get(id string) (*Configuration, error)
	ListByTeam(teamID string) ([]*Configuration, error)
	Update(cfg *Configuration) error
	Delete(id string) error
	Activate(id string) error
	Deactivate(id string) error
	FindActiveByDomain(domain string) (*Configuration, error)
}

// Store is the PostgreSQL-backed ConfigStore.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new configuration in pending state and indexes its
// domains. A second configuration for the same (team, provider) pair is
// rejected as a conflict.
func (s *Store) Create(cfg *Configuration) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Status = StatusPending
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	settings, mapping, domains, err := marshalConfig(cfg)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sso_configurations
			(id, team_id, provider, status, domains, auto_provision, enforce_sso, default_role, attribute_mapping, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, cfg.ID, cfg.TeamID, cfg.Provider, cfg.Status, domains, cfg.AutoProvision,
		cfg.EnforceSSO, cfg.DefaultRole, mapping, settings, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == uniqueViolation {
			return &ConflictError{TeamID: cfg.TeamID, Provider: cfg.Provider}
		}
		return fmt.Errorf("failed to create configuration: %w", err)
	}

	if err := replaceDomains(tx, cfg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get fetches a configuration by ID.
func (s *Store) Get(id string) (*Configuration, error) {
	row := s.db.QueryRow(selectConfig+` WHERE id = $1`, id)
	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "configuration", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch configuration: %w", err)
	}
	return cfg, nil
}

// ListByTeam returns all of a team's configurations, newest first.
func (s *Store) ListByTeam(teamID string) ([]*Configuration, error) {
	rows, err := s.db.Query(selectConfig+` WHERE team_id = $1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list configurations: %w", err)
	}
	defer rows.Close()

	var configs []*Configuration
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan configuration: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Update rewrites a configuration's mutable fields and rebuilds its
// slice of the domain index.
func (s *Store) Update(cfg *Configuration) error {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now()

	settings, mapping, domains, err := marshalConfig(cfg)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE sso_configurations
		SET domains = $1, auto_provision = $2, enforce_sso = $3, default_role = $4, attribute_mapping = $5, settings = $6, updated_at = $7
		WHERE id = $8
	`, domains, cfg.AutoProvision, cfg.EnforceSSO, cfg.DefaultRole, mapping, settings, cfg.UpdatedAt, cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to update configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "configuration", ID: cfg.ID}
	}

	if _, err := tx.Exec(`DELETE FROM sso_domains WHERE sso_config_id = $1`, cfg.ID); err != nil {
		return fmt.Errorf("failed to clear domain index: %w", err)
	}
	if err := replaceDomains(tx, cfg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete removes a configuration and its domain index entries.
func (s *Store) Delete(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sso_domains WHERE sso_config_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear domain index: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM sso_configurations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "configuration", ID: id}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Activate marks a configuration active and deactivates any other
// active configuration of the same team, so at most one configuration
// per team serves logins.
func (s *Store) Activate(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var teamID string
	err = tx.QueryRow(`SELECT team_id FROM sso_configurations WHERE id = $1`, id).Scan(&teamID)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "configuration", ID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to fetch configuration: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE sso_configurations SET status = $1, updated_at = NOW()
		WHERE team_id = $2 AND status = $3 AND id <> $4
	`, StatusInactive, teamID, StatusActive, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate sibling configurations: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE sso_configurations SET status = $1, updated_at = NOW() WHERE id = $2
	`, StatusActive, id)
	if err != nil {
		return fmt.Errorf("failed to activate configuration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Deactivate marks a configuration inactive.
func (s *Store) Deactivate(id string) error {
	res, err := s.db.Exec(`
		UPDATE sso_configurations SET status = $1, updated_at = NOW() WHERE id = $2
	`, StatusInactive, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Resource: "configuration", ID: id}
	}
	return nil
}

// FindActiveByDomain resolves an email domain to the active
// configuration claiming it via the domain index. Returns (nil, nil)
// when no active configuration claims the domain.
func (s *Store) FindActiveByDomain(domain string) (*Configuration, error) {
	row := s.db.QueryRow(`
		SELECT c.id, c.team_id, c.provider, c.status, c.domains, c.auto_provision, c.enforce_sso, c.default_role, c.attribute_mapping, c.settings, c.created_at, c.updated_at
		FROM sso_configurations c
		JOIN sso_domains d ON d.sso_config_id = c.id
		WHERE d.domain = $1 AND c.status = $2
		ORDER BY c.created_at ASC
		LIMIT 1
	`, domain, StatusActive)
	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up domain: %w", err)
	}
	return cfg, nil
}

const selectConfig = `
	SELECT id, team_id, provider, status, domains, auto_provision, enforce_sso, default_role, attribute_mapping, settings, created_at, updated_at
	FROM sso_configurations`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*Configuration, error) {
	cfg := &Configuration{}
	var domains, mapping, settings []byte
	err := row.Scan(&cfg.ID, &cfg.TeamID, &cfg.Provider, &cfg.Status, &domains,
		&cfg.AutoProvision, &cfg.EnforceSSO, &cfg.DefaultRole, &mapping, &settings, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(domains) > 0 {
		if err := json.Unmarshal(domains, &cfg.Domains); err != nil {
			return nil, fmt.Errorf("failed to unmarshal domains: %w", err)
		}
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &cfg.AttributeMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attribute mapping: %w", err)
		}
	}

	var dst interface{}
	switch cfg.Provider {
	case ProviderSAML:
		cfg.SAML = &SAMLSettings{}
		dst = cfg.SAML
	case ProviderOIDC:
		cfg.OIDC = &OIDCSettings{}
		dst = cfg.OIDC
	case ProviderLDAP:
		cfg.LDAP = &LDAPSettings{}
		dst = cfg.LDAP
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	if err := json.Unmarshal(settings, dst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s settings: %w", cfg.Provider, err)
	}
	return cfg, nil
}

func marshalConfig(cfg *Configuration) (settings, mapping, domains []byte, err error) {
	var block interface{}
	switch cfg.Provider {
	case ProviderSAML:
		block = cfg.SAML
	case ProviderOIDC:
		block = cfg.OIDC
	case ProviderLDAP:
		block = cfg.LDAP
	}
	if settings, err = json.Marshal(block); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	if mapping, err = json.Marshal(cfg.AttributeMapping); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal attribute mapping: %w", err)
	}
	if domains, err = json.Marshal(cfg.Domains); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal domains: %w", err)
	}
	return settings, mapping, domains, nil
}

func replaceDomains(tx *sql.Tx, cfg *Configuration) error {
	for _, domain := range cfg.Domains {
		_, err := tx.Exec(`
			INSERT INTO sso_domains (id, domain, sso_config_id, team_id, created_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, uuid.NewString(), domain, cfg.ID, cfg.TeamID)
		if err != nil {
			return fmt.Errorf("failed to index domain %s: %w", domain, err)
		}
	}
	return nil
}
