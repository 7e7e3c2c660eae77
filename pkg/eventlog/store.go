package eventlog

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durability boundary every adapter (embedded relational,
// remote key/range, ...) implements. It owns invariants I1-I5; callers
// never see a partially-written commit.
type Store interface {
	// Append durably persists attempt, assigning it the next
	// commit_number. It fails with a *ConflictError if the attempt
	// would violate I1, I2, or I3, and with an ErrIO-wrapped error on
	// any transport failure. A successful Append returns the full
	// Commit, including its assigned CommitNumber.
	Append(ctx context.Context, attempt CommitAttempt) (Commit, error)

	// GetRange returns commits for aggregateID with commit_sequence
	// strictly greater than afterSequence, ordered by commit_sequence
	// ascending. An empty result means the caller is already current.
	GetRange(ctx context.Context, aggregateID uuid.UUID, afterSequence int64) ([]Commit, error)

	// GetCommit returns the single commit identified by commitID.
	GetCommit(ctx context.Context, commitID string) (Commit, error)

	// GetUndispatched returns commits not yet marked dispatched,
	// ordered by commit_number ascending, oldest first.
	GetUndispatched(ctx context.Context, limit int) ([]Commit, error)

	// MarkDispatched marks commitID as dispatched. Idempotent: marking
	// an already-dispatched commit is not an error.
	MarkDispatched(ctx context.Context, commitID string) error
}
