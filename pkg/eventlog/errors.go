package eventlog

import (
	"errors"
	"fmt"
)

// ConflictKind identifies which of the store's three uniqueness
// invariants (I1-I3) a rejected write violated.
type ConflictKind string

const (
	// CommitIDConflict means commit_id was not globally unique (I1).
	CommitIDConflict ConflictKind = "commit_id"

	// CommitSequenceConflict means (aggregate_id, commit_sequence) was
	// not unique (I2) - another writer already used this sequence
	// number for this aggregate.
	CommitSequenceConflict ConflictKind = "commit_sequence"

	// AggregateVersionConflict means (aggregate_id, aggregate_version)
	// was not unique (I3) - the caller's view of the aggregate was
	// stale.
	AggregateVersionConflict ConflictKind = "aggregate_version"
)

// ErrConflict is the sentinel errors.Is target for any DuplicateWrite
// conflict, regardless of kind.
var ErrConflict = errors.New("duplicate write")

// ConflictError reports a rejected append and which invariant it broke.
type ConflictError struct {
	Kind ConflictKind
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate write: %s conflict", e.Kind)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError builds a ConflictError of the given kind.
func NewConflictError(kind ConflictKind) error {
	return &ConflictError{Kind: kind}
}

// ErrIO wraps an underlying storage transport failure (connection
// refused, disk full, timeout, ...) distinct from a rejected write.
var ErrIO = errors.New("store io error")

// ErrNotFound is returned by Store.GetCommit when no commit exists
// with the requested commit_id, per spec.md's `get_commit(commit_id)
// -> Commit | NotFound`. Distinct from ErrIO: a missing commit is not
// a transport failure, it's an absent fact.
var ErrNotFound = errors.New("commit not found")

// ErrEncoding is returned by the codec layer when a serialized payload
// cannot be parsed into its document form.
var ErrEncoding = errors.New("encoding error")

// ErrDispatch wraps a delegate failure during Dispatcher.Drain. The
// commit that triggered it remains undispatched and is retried on the
// next drain.
var ErrDispatch = errors.New("dispatch error")

// ErrAlreadyDraining is returned when Drain is called while another
// drain is in progress on the same Dispatcher, enforcing the
// single-drain-loop invariant the subscription hub's ordering
// guarantee depends on.
var ErrAlreadyDraining = errors.New("dispatcher: drain already in progress")

// NewNotFoundError builds an ErrNotFound-compatible error naming the
// missing commit_id.
func NewNotFoundError(commitID string) error {
	return fmt.Errorf("%w: commit %s", ErrNotFound, commitID)
}

// WrapIO wraps err as an ErrIO-compatible error. The original error's
// text is kept in the message, but only ErrIO is wrapped, so errors.Is
// and errors.As match ErrIO and not the original error.
func WrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// WrapEncoding wraps err as an ErrEncoding-compatible error.
func WrapEncoding(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrEncoding, err)
}

// WrapDispatch wraps err as an ErrDispatch-compatible error.
func WrapDispatch(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDispatch, err)
}
