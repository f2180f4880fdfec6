package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
)

// CreateReadOnlyRole creates the analytics login role if it is missing and
// (re)applies its grants. Every step is safe to repeat.
func (d *DB) CreateReadOnlyRole(ctx context.Context, role domain.ReadOnlyRole) error {
	var exists bool
	err := d.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, role.Name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("look up role %s: %w", role.Name, err)
	}

	name := pq.QuoteIdentifier(role.Name)
	if exists {
		d.logger.Info("read-only role already exists", "role", role.Name)
	} else {
		stmt := fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s", name, pq.QuoteLiteral(role.Password))
		if _, err := d.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create role %s: %w", role.Name, err)
		}
		d.logger.Info("read-only role created", "role", role.Name)
	}

	for _, stmt := range grantStatements(name, pq.QuoteIdentifier(role.Database), role.ConnectionLimit) {
		if _, err := d.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("grant read-only access to %s: %w", role.Name, err)
		}
	}

	d.logger.Info("read-only access granted", "role", role.Name, "database", role.Database, "connection_limit", role.ConnectionLimit)
	return nil
}

func grantStatements(role, database string, connLimit int) []string {
	return []string{
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", database, role),
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", role),
		fmt.Sprintf("GRANT SELECT ON ALL TABLES IN SCHEMA public TO %s", role),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT SELECT ON TABLES TO %s", role),
		fmt.Sprintf("REVOKE INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public FROM %s", role),
		fmt.Sprintf("ALTER ROLE %s CONNECTION LIMIT %d", role, connLimit),
	}
}
