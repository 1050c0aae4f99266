package repositories

import "errors"

// Benign, expected steady-state conditions. Handlers log these at info level
// and short-circuit; they are never surfaced as server errors.
var (
	// ErrAlreadyCredited means the invoice or subscription was credited by an
	// earlier delivery of the same webhook.
	ErrAlreadyCredited = errors.New("already credited")

	// ErrLockHeld means another owner holds a non-expired cron lock; the run
	// is skipped, not retried.
	ErrLockHeld = errors.New("cron lock held by another owner")

	// ErrDuplicateRedemption means a redemption with the same idempotency key
	// already exists; the existing request is returned instead.
	ErrDuplicateRedemption = errors.New("duplicate redemption request")
)

// User-facing rejections.
var (
	// ErrInsufficientBalance means the cached available balance cannot cover
	// the requested debit.
	ErrInsufficientBalance = errors.New("insufficient available balance")
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("document not found")

// errVersionConflict signals an optimistic version check lost a race; callers
// reload and retry.
var errVersionConflict = errors.New("ledger version conflict")

// maxCASRetries bounds optimistic-update retry loops. Conflicts are rare
// (contention is per user), so a small bound suffices.
const maxCASRetries = 3
