// Package postgres loads normalized tables into PostgreSQL and manages the
// schema and read-only analytics role.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/observability"
)

// ConnConfig describes how to reach and authenticate to the database.
type ConnConfig struct {
	Endpoint domain.Endpoint
	User     string
	Password string
	SSLMode  string
}

// URL renders the config as a postgres:// connection string.
func (c ConnConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Endpoint.Host, strconv.Itoa(c.Endpoint.Port)),
		Path:   "/" + c.Endpoint.Database,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// querier is satisfied by *sql.Conn and *sql.DB.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Copier streams CSV data into a COPY ... FROM STDIN statement.
type Copier interface {
	CopyFrom(ctx context.Context, r io.Reader, stmt string) (int64, error)
}

// DB runs every statement on one pinned connection in autocommit mode.
type DB struct {
	q       querier
	copier  Copier
	closers []io.Closer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Open connects with the pgx driver and pins a single connection.
func Open(ctx context.Context, cfg ConnConfig, logger *slog.Logger, metrics *observability.Metrics) (*DB, error) {
	db, err := sql.Open("pgx", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to %s:%d/%s: %w", cfg.Endpoint.Host, cfg.Endpoint.Port, cfg.Endpoint.Database, err)
	}

	logger.Info("database connected",
		"host", cfg.Endpoint.Host,
		"port", cfg.Endpoint.Port,
		"database", cfg.Endpoint.Database,
		"user", cfg.User,
	)

	d := New(conn, &pgxCopier{conn: conn}, logger, metrics)
	d.closers = []io.Closer{conn, db}
	return d, nil
}

// New wraps an existing connection. Open is the usual entry point.
func New(q querier, copier Copier, logger *slog.Logger, metrics *observability.Metrics) *DB {
	return &DB{
		q:       q,
		copier:  copier,
		logger:  logger,
		metrics: metrics,
	}
}

// Close releases the pinned connection and the pool.
func (d *DB) Close() error {
	var result *multierror.Error
	for _, c := range d.closers {
		result = multierror.Append(result, c.Close())
	}
	return result.ErrorOrNil()
}

// pgxCopier reaches through database/sql to the underlying pgx connection.
type pgxCopier struct {
	conn *sql.Conn
}

func (c *pgxCopier) CopyFrom(ctx context.Context, r io.Reader, stmt string) (int64, error) {
	var n int64
	err := c.conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		tag, err := pc.Conn().PgConn().CopyFrom(ctx, r, stmt)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}
