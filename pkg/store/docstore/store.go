// Package docstore implements eventlog.Store over a portable key/range
// document collection using gocloud.dev/docstore, so the same adapter
// code runs against an in-memory driver in tests and a real key/range
// backend (DynamoDB, MongoDB, Firestore, ...) in production by
// swapping the collection URL.
//
// Per the Open Question in the commit-log spec this engine is built
// from: commits written through this adapter are recorded as already
// dispatched. This adapter assumes it is paired with an external
// change feed on the backing store (a DynamoDB stream, a MongoDB
// change stream, ...) that performs the at-least-once fan-out instead
// of this module's Dispatcher. Do not pair this adapter with
// pkg/eventlog.Dispatcher expecting it to ever see undispatched
// commits: GetUndispatched always returns an empty slice.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/google/uuid"
	"gocloud.dev/docstore"
	"gocloud.dev/gcerrors"
)

// commitDoc is the primary document, keyed by CommitID.
type commitDoc struct {
	CommitID         string           `docstore:"commit_id"`
	AggregateID      string           `docstore:"aggregate_id"`
	AggregateType    string           `docstore:"aggregate_type"`
	AggregateVersion int64            `docstore:"aggregate_version"`
	CommitSequence   int64            `docstore:"commit_sequence"`
	CreatedAtUnixNS  int64            `docstore:"created_at_ns"`
	Metadata         []byte           `docstore:"metadata"`
	Events           []eventlog.Event `docstore:"events"`
	DocstoreRevision any              `docstore:"-"`
}

// sequenceKeyDoc and versionKeyDoc are secondary uniqueness-index
// documents: a Create that fails with AlreadyExists/FailedPrecondition
// means another writer already holds that (aggregate_id, N) pair.
type sequenceKeyDoc struct {
	Key              string `docstore:"key"`
	CommitID         string `docstore:"commit_id"`
	DocstoreRevision any    `docstore:"-"`
}

type versionKeyDoc struct {
	Key              string `docstore:"key"`
	CommitID         string `docstore:"commit_id"`
	DocstoreRevision any    `docstore:"-"`
}

// Store is a gocloud.dev/docstore-backed eventlog.Store.
type Store struct {
	commits       *docstore.Collection
	sequenceKeys  *docstore.Collection
	versionKeys   *docstore.Collection
	commitIDIndex *docstore.Collection
}

// Open opens a Store against the four collections identified by the
// given docstore URLs (see https://gocloud.dev/howto/docstore/ for URL
// formats per backend; memdocstore URLs look like "mem://commits/commit_id").
func Open(ctx context.Context, commitsURL, sequenceKeysURL, versionKeysURL, commitIDIndexURL string) (*Store, error) {
	commits, err := docstore.OpenCollection(ctx, commitsURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: open commits collection: %w", err)
	}
	sequenceKeys, err := docstore.OpenCollection(ctx, sequenceKeysURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: open sequence-key collection: %w", err)
	}
	versionKeys, err := docstore.OpenCollection(ctx, versionKeysURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: open version-key collection: %w", err)
	}
	commitIDIndex, err := docstore.OpenCollection(ctx, commitIDIndexURL)
	if err != nil {
		return nil, fmt.Errorf("docstore: open commit-id index collection: %w", err)
	}

	return &Store{
		commits:       commits,
		sequenceKeys:  sequenceKeys,
		versionKeys:   versionKeys,
		commitIDIndex: commitIDIndex,
	}, nil
}

// Close releases all four underlying collections.
func (s *Store) Close() error {
	var firstErr error
	for _, c := range []*docstore.Collection{s.commits, s.sequenceKeys, s.versionKeys, s.commitIDIndex} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func sequenceKey(aggregateID uuid.UUID, sequence int64) string {
	return fmt.Sprintf("%s/%d", aggregateID, sequence)
}

func versionKey(aggregateID uuid.UUID, version int64) string {
	return fmt.Sprintf("%s/%d", aggregateID, version)
}

// Append implements eventlog.Store. It claims the (aggregate_id,
// commit_sequence) and (aggregate_id, aggregate_version) uniqueness
// index documents first via conditional Create, then the commit_id
// index, then the commit document itself; on a failure partway
// through it makes a best-effort attempt to delete whatever it
// already claimed, since docstore has no cross-document transaction.
// The returned and stored CommitNumber is the commit's CommitSequence,
// so it is not unique or monotonic across aggregates.
func (s *Store) Append(ctx context.Context, attempt eventlog.CommitAttempt) (eventlog.Commit, error) {
	if len(attempt.Events) == 0 {
		return eventlog.Commit{}, fmt.Errorf("docstore: %w: commit attempt has no events", eventlog.ErrIO)
	}

	seqDoc := &sequenceKeyDoc{Key: sequenceKey(attempt.AggregateID, attempt.CommitSequence), CommitID: attempt.CommitID}
	if err := s.sequenceKeys.Create(ctx, seqDoc); err != nil {
		if isAlreadyExists(err) {
			return eventlog.Commit{}, eventlog.NewConflictError(eventlog.CommitSequenceConflict)
		}
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	verDoc := &versionKeyDoc{Key: versionKey(attempt.AggregateID, attempt.AggregateVersion), CommitID: attempt.CommitID}
	if err := s.versionKeys.Create(ctx, verDoc); err != nil {
		s.sequenceKeys.Delete(ctx, seqDoc)
		if isAlreadyExists(err) {
			return eventlog.Commit{}, eventlog.NewConflictError(eventlog.AggregateVersionConflict)
		}
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	idDoc := &versionKeyDoc{Key: attempt.CommitID, CommitID: attempt.CommitID}
	if err := s.commitIDIndex.Create(ctx, idDoc); err != nil {
		s.sequenceKeys.Delete(ctx, seqDoc)
		s.versionKeys.Delete(ctx, verDoc)
		if isAlreadyExists(err) {
			return eventlog.Commit{}, eventlog.NewConflictError(eventlog.CommitIDConflict)
		}
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	doc := &commitDoc{
		CommitID:         attempt.CommitID,
		AggregateID:      attempt.AggregateID.String(),
		AggregateType:    attempt.AggregateType,
		AggregateVersion: attempt.AggregateVersion,
		CommitSequence:   attempt.CommitSequence,
		CreatedAtUnixNS:  attempt.CreatedAt.UnixNano(),
		Metadata:         attempt.Metadata,
		Events:           attempt.Events,
	}
	if err := s.commits.Create(ctx, doc); err != nil {
		s.sequenceKeys.Delete(ctx, seqDoc)
		s.versionKeys.Delete(ctx, verDoc)
		s.commitIDIndex.Delete(ctx, idDoc)
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}

	return eventlog.Commit{
		CommitNumber:     attempt.CommitSequence,
		CommitID:         attempt.CommitID,
		AggregateID:      attempt.AggregateID,
		AggregateType:    attempt.AggregateType,
		AggregateVersion: attempt.AggregateVersion,
		CommitSequence:   attempt.CommitSequence,
		Events:           attempt.Events,
		Metadata:         attempt.Metadata,
		CreatedAt:        attempt.CreatedAt,
		Dispatched:       true,
	}, nil
}

// GetRange implements eventlog.Store.
func (s *Store) GetRange(ctx context.Context, aggregateID uuid.UUID, afterSequence int64) ([]eventlog.Commit, error) {
	iter := s.commits.Query().
		Where("aggregate_id", "=", aggregateID.String()).
		Where("commit_sequence", ">", afterSequence).
		OrderBy("commit_sequence", docstore.Ascending).
		Get(ctx)
	defer iter.Stop()

	var out []eventlog.Commit
	for {
		var doc commitDoc
		err := iter.Next(ctx, &doc)
		if err == docstore.ErrNotFound {
			break
		}
		if err != nil {
			return nil, eventlog.WrapIO(err)
		}
		commit, err := toCommit(doc, true)
		if err != nil {
			return nil, err
		}
		out = append(out, commit)
	}
	return out, nil
}

// GetCommit implements eventlog.Store.
func (s *Store) GetCommit(ctx context.Context, commitID string) (eventlog.Commit, error) {
	doc := commitDoc{CommitID: commitID}
	// The collection's key field is whichever one the commits URL
	// passed to Open names, so look commit_id up via a query rather
	// than Get.
	iter := s.commits.Query().Where("commit_id", "=", commitID).Get(ctx)
	defer iter.Stop()

	err := iter.Next(ctx, &doc)
	if err == docstore.ErrNotFound {
		return eventlog.Commit{}, eventlog.NewNotFoundError(commitID)
	}
	if err != nil {
		return eventlog.Commit{}, eventlog.WrapIO(err)
	}
	return toCommit(doc, true)
}

// GetUndispatched implements eventlog.Store. The docstore adapter
// treats every write as already dispatched (see package doc), so this
// always returns an empty slice.
func (s *Store) GetUndispatched(ctx context.Context, limit int) ([]eventlog.Commit, error) {
	return nil, nil
}

// MarkDispatched implements eventlog.Store. A no-op: commits written
// through this adapter are already marked dispatched at Append time.
func (s *Store) MarkDispatched(ctx context.Context, commitID string) error {
	return nil
}

func toCommit(doc commitDoc, dispatched bool) (eventlog.Commit, error) {
	id, err := uuid.Parse(doc.AggregateID)
	if err != nil {
		return eventlog.Commit{}, fmt.Errorf("docstore: parse aggregate_id: %w", err)
	}
	return eventlog.Commit{
		CommitNumber:     doc.CommitSequence,
		CommitID:         doc.CommitID,
		AggregateID:      id,
		AggregateType:    doc.AggregateType,
		AggregateVersion: doc.AggregateVersion,
		CommitSequence:   doc.CommitSequence,
		Events:           doc.Events,
		Metadata:         doc.Metadata,
		CreatedAt:        time.Unix(0, doc.CreatedAtUnixNS),
		Dispatched:       dispatched,
	}, nil
}

func isAlreadyExists(err error) bool {
	code := gcerrors.Code(err)
	return code == gcerrors.AlreadyExists || code == gcerrors.FailedPrecondition
}

var _ eventlog.Store = (*Store)(nil)
