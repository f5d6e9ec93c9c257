package domain

import "context"

// AnyVersion disables the version check on SaveProfile. Used only when
// replacing a document that could not be decoded.
const AnyVersion int64 = -1

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// ProfileRepository persists one opaque JSON document per user.
// Implemented by infra/sqlite.DB and infra/postgres.DB.
type ProfileRepository interface {
	// LoadProfile returns the stored document, or ErrProfileNotFound.
	LoadProfile(ctx context.Context, userID string) ([]byte, error)

	// SaveProfile writes doc at version. The write is rejected with
	// ErrVersionConflict unless the stored version equals prevVersion
	// (prevVersion 0 means "must not exist yet").
	SaveProfile(ctx context.Context, userID string, doc []byte, version, prevVersion int64) error

	// ProfileVersion returns the stored version, or 0 when no document
	// exists.
	ProfileVersion(ctx context.Context, userID string) (int64, error)

	// ListProfileIDs returns every stored user id.
	ListProfileIDs(ctx context.Context) ([]string, error)

	// Ping checks storage connectivity.
	Ping() error

	Close() error
}
