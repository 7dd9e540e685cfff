package tenants

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all tenant hierarchy migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenants table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenants (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(63) NOT NULL UNIQUE,
					path TEXT NOT NULL DEFAULT '',
					level INT NOT NULL DEFAULT 0,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					archived_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_tenants_slug ON tenants(slug);
				CREATE INDEX IF NOT EXISTS idx_tenants_path ON tenants(path text_pattern_ops);
				CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
			`,
		},
		{
			Version:     2,
			Description: "Create tenant_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_members (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					role VARCHAR(20) NOT NULL,
					permissions JSONB NOT NULL DEFAULT '[]',
					invited_by BIGINT,
					invited_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					joined_at TIMESTAMP WITH TIME ZONE,
					UNIQUE(tenant_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_tenant_members_tenant_id ON tenant_members(tenant_id);
				CREATE INDEX IF NOT EXISTS idx_tenant_members_user_id ON tenant_members(user_id);
				CREATE INDEX IF NOT EXISTS idx_tenant_members_role ON tenant_members(tenant_id, role);
			`,
		},
		{
			Version:     3,
			Description: "Create tenant_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_permissions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					resource_type VARCHAR(255) NOT NULL,
					resource_id VARCHAR(255) NOT NULL DEFAULT '*',
					actions TEXT NOT NULL DEFAULT '',
					granted_by BIGINT,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_tenant_permissions_user ON tenant_permissions(tenant_id, user_id);
				CREATE INDEX IF NOT EXISTS idx_tenant_permissions_expires_at ON tenant_permissions(expires_at);
			`,
		},
		{
			Version:     4,
			Description: "Create tenant_policies table",
			SQL: `
				CREATE TABLE IF NOT EXISTS tenant_policies (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					effect VARCHAR(10) NOT NULL DEFAULT 'allow',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					UNIQUE(tenant_id)
				);
			`,
		},
	}
}

// RunMigrations applies pending tenant hierarchy migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenants_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM tenants_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tenants_migrations (version, description) VALUES ($1, $2)",
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
