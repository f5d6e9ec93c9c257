// Package postgres stores profile documents in PostgreSQL.
// Same contract as the sqlite package; the document column is JSONB.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "github.com/lib/pq"

	"github.com/puntos-app/puntos/internal/domain"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	conn *sql.DB
}

// Connect opens dsn, pings it and applies migrations.
func Connect(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	log.Println("[postgres] connected")

	d := &DB{conn: conn}
	if err := d.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Close shuts down the pool.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.conn.Ping()
}

// Migrate runs idempotent schema migrations.
func (d *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id    TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			version    BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_updated ON profiles(updated_at)`,
	}
	for i, m := range migrations {
		if _, err := d.conn.Exec(m); err != nil {
			return fmt.Errorf("executing migration %d: %w", i, err)
		}
	}
	return nil
}

// ─── Profile Documents ──────────────────────────────────────────────────────

// LoadProfile returns the stored document for userID.
func (d *DB) LoadProfile(ctx context.Context, userID string) ([]byte, error) {
	var doc []byte
	err := d.conn.QueryRowContext(ctx,
		`SELECT document FROM profiles WHERE user_id = $1`, userID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return doc, nil
}

// SaveProfile writes doc as version when the stored version equals
// prevVersion. prevVersion 0 requires that no row exists yet;
// domain.AnyVersion overwrites unconditionally.
func (d *DB) SaveProfile(ctx context.Context, userID string, doc []byte, version, prevVersion int64) error {
	var (
		result sql.Result
		err    error
	)
	switch prevVersion {
	case domain.AnyVersion:
		result, err = d.conn.ExecContext(ctx,
			`INSERT INTO profiles (user_id, document, version, updated_at) VALUES ($1, $2, $3, now())
			 ON CONFLICT (user_id) DO UPDATE SET
			   document = EXCLUDED.document, version = EXCLUDED.version, updated_at = now()`,
			userID, string(doc), version,
		)
	case 0:
		result, err = d.conn.ExecContext(ctx,
			`INSERT INTO profiles (user_id, document, version, updated_at) VALUES ($1, $2, $3, now())
			 ON CONFLICT (user_id) DO NOTHING`,
			userID, string(doc), version,
		)
	default:
		result, err = d.conn.ExecContext(ctx,
			`UPDATE profiles SET document = $1, version = $2, updated_at = now()
			 WHERE user_id = $3 AND version = $4`,
			string(doc), version, userID, prevVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("save profile %s: %w", userID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save profile %s: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s expected v%d", domain.ErrVersionConflict, userID, prevVersion)
	}
	return nil
}

// ProfileVersion returns the stored version, or 0 when no row exists.
func (d *DB) ProfileVersion(ctx context.Context, userID string) (int64, error) {
	var v int64
	err := d.conn.QueryRowContext(ctx,
		`SELECT version FROM profiles WHERE user_id = $1`, userID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("profile version %s: %w", userID, err)
	}
	return v, nil
}

// ListProfileIDs returns every stored user id, most recently updated first.
func (d *DB) ListProfileIDs(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx,
		`SELECT user_id FROM profiles ORDER BY updated_at DESC, user_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
