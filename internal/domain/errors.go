package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.
// A repeated idempotent action or claim is not an error: it is a no-op.

var (
	// Ledger errors
	ErrInvalidAmount      = errors.New("invalid amount: must be a finite integer with the sign the action allows")
	ErrInsufficientPoints = errors.New("insufficient points for this spend")
	ErrUnknownAction      = errors.New("unknown action kind")
	ErrMissingReference   = errors.New("action requires a reference id")

	// Challenge errors
	ErrNotClaimable      = errors.New("challenge is not claimable")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrInvalidChallenge  = errors.New("invalid challenge definition")

	// Streak errors
	ErrFutureDate = errors.New("activity date is in the future")

	// Profile / persistence errors
	ErrProfileNotFound = errors.New("profile not found")
	ErrCorruptState    = errors.New("persisted profile failed validation")
	ErrVersionConflict = errors.New("profile was modified concurrently")
)

// ErrorCode returns a short stable code for err, used as a metrics label
// and in API error bodies.
func ErrorCode(err error) string {
	codes := []struct {
		err  error
		code string
	}{
		{ErrInvalidAmount, "invalid_amount"},
		{ErrInsufficientPoints, "insufficient_points"},
		{ErrUnknownAction, "unknown_action"},
		{ErrMissingReference, "missing_reference"},
		{ErrNotClaimable, "not_claimable"},
		{ErrChallengeNotFound, "challenge_not_found"},
		{ErrInvalidChallenge, "invalid_challenge"},
		{ErrFutureDate, "future_date"},
		{ErrProfileNotFound, "profile_not_found"},
		{ErrCorruptState, "corrupt_state"},
		{ErrVersionConflict, "version_conflict"},
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
