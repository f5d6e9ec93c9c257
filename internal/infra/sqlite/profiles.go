package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/puntos-app/puntos/internal/domain"
)

// ─── Profile Documents ──────────────────────────────────────────────────────

// LoadProfile returns the stored document for userID.
func (d *DB) LoadProfile(ctx context.Context, userID string) ([]byte, error) {
	var doc string
	err := d.db.QueryRowContext(ctx,
		`SELECT document FROM profiles WHERE user_id = ?`, userID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return []byte(doc), nil
}

// SaveProfile writes doc as version when the stored version equals
// prevVersion. prevVersion 0 requires that no row exists yet;
// domain.AnyVersion overwrites unconditionally.
func (d *DB) SaveProfile(ctx context.Context, userID string, doc []byte, version, prevVersion int64) error {
	now := time.Now().Unix()

	var (
		result sql.Result
		err    error
	)
	switch prevVersion {
	case domain.AnyVersion:
		result, err = d.db.ExecContext(ctx,
			`INSERT INTO profiles (user_id, document, version, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
			   document=excluded.document, version=excluded.version, updated_at=excluded.updated_at`,
			userID, string(doc), version, now,
		)
	case 0:
		result, err = d.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO profiles (user_id, document, version, updated_at) VALUES (?, ?, ?, ?)`,
			userID, string(doc), version, now,
		)
	default:
		result, err = d.db.ExecContext(ctx,
			`UPDATE profiles SET document = ?, version = ?, updated_at = ?
			 WHERE user_id = ? AND version = ?`,
			string(doc), version, now, userID, prevVersion,
		)
	}
	if err != nil {
		return fmt.Errorf("save profile %s: %w", userID, err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s expected v%d", domain.ErrVersionConflict, userID, prevVersion)
	}
	return nil
}

// ProfileVersion returns the stored version, or 0 when no row exists.
func (d *DB) ProfileVersion(ctx context.Context, userID string) (int64, error) {
	var v int64
	err := d.db.QueryRowContext(ctx,
		`SELECT version FROM profiles WHERE user_id = ?`, userID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// ListProfileIDs returns every stored user id, most recently updated first.
func (d *DB) ListProfileIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
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
