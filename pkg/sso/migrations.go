package sso

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all gateway migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id VARCHAR(36) PRIMARY KEY,
					team_id VARCHAR(36) NOT NULL,
					email VARCHAR(255) NOT NULL,
					username VARCHAR(255),
					full_name VARCHAR(255),
					role VARCHAR(64) NOT NULL DEFAULT 'member',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP,
					UNIQUE(team_id, email)
				);

				CREATE INDEX idx_users_team_id ON users(team_id);
				CREATE INDEX idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create sso_configurations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sso_configurations (
					id VARCHAR(36) PRIMARY KEY,
					team_id VARCHAR(36) NOT NULL,
					provider VARCHAR(16) NOT NULL,
					status VARCHAR(16) NOT NULL,
					domains JSONB NOT NULL DEFAULT '[]',
					auto_provision BOOLEAN NOT NULL DEFAULT FALSE,
					enforce_sso BOOLEAN NOT NULL DEFAULT FALSE,
					default_role VARCHAR(64) NOT NULL DEFAULT 'member',
					attribute_mapping JSONB NOT NULL DEFAULT '{}',
					settings JSONB NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, provider)
				);

				CREATE INDEX idx_sso_configurations_team_id ON sso_configurations(team_id);
				CREATE INDEX idx_sso_configurations_status ON sso_configurations(status);
			`,
		},
		{
			Version:     3,
			Description: "Create sso_domains table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sso_domains (
					id VARCHAR(36) PRIMARY KEY,
					domain VARCHAR(255) NOT NULL,
					sso_config_id VARCHAR(36) NOT NULL REFERENCES sso_configurations(id) ON DELETE CASCADE,
					team_id VARCHAR(36) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(domain, sso_config_id)
				);

				CREATE INDEX idx_sso_domains_domain ON sso_domains(domain);
				CREATE INDEX idx_sso_domains_sso_config_id ON sso_domains(sso_config_id);
			`,
		},
		{
			Version:     4,
			Description: "Create sso_sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sso_sessions (
					id VARCHAR(36) PRIMARY KEY,
					user_id VARCHAR(36) NOT NULL,
					team_id VARCHAR(36) NOT NULL,
					sso_config_id VARCHAR(36) NOT NULL,
					provider VARCHAR(16) NOT NULL,
					name_id VARCHAR(255),
					session_index VARCHAR(255),
					attributes JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL
				);

				CREATE INDEX idx_sso_sessions_user_id ON sso_sessions(user_id);
				CREATE INDEX idx_sso_sessions_expires_at ON sso_sessions(expires_at);
			`,
		},
		{
			Version:     5,
			Description: "Create sso_user_links table",
			SQL: `
				CREATE TABLE IF NOT EXISTS sso_user_links (
					id VARCHAR(36) PRIMARY KEY,
					sso_config_id VARCHAR(36) NOT NULL REFERENCES sso_configurations(id) ON DELETE CASCADE,
					external_user_id VARCHAR(255) NOT NULL,
					user_id VARCHAR(36) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					last_login_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(sso_config_id, external_user_id)
				);

				CREATE INDEX idx_sso_user_links_user_id ON sso_user_links(user_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sso_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM sso_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sso_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
