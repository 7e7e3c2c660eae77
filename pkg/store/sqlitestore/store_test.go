package sqlitestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/duskfall/eventlog/pkg/store/sqlitestore"
	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	store, err := sqlitestore.Open(
		sqlitestore.WithMemoryDatabase(),
		sqlitestore.WithWALMode(false),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndGetRange(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	aggregateID := uuid.New()

	commit, err := store.Append(ctx, eventlog.CommitAttempt{
		CommitID:         "commit-1",
		AggregateID:      aggregateID,
		AggregateType:    "Widget",
		AggregateVersion: 1,
		CommitSequence:   1,
		Events:           []eventlog.Event{{EventType: "created", Payload: []byte(`{"ok":true}`)}},
		CreatedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if commit.CommitNumber == 0 {
		t.Error("expected a non-zero commit_number")
	}

	commits, err := store.GetRange(ctx, aggregateID, 0)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("expected 1 commit, got %d", len(commits))
	}
	if commits[0].CommitID != "commit-1" {
		t.Errorf("expected commit-1, got %s", commits[0].CommitID)
	}
	if len(commits[0].Events) != 1 || commits[0].Events[0].EventType != "created" {
		t.Errorf("unexpected events: %+v", commits[0].Events)
	}
}

func TestAppendRejectsDuplicateCommitID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	aggregateID := uuid.New()

	attempt := eventlog.CommitAttempt{
		CommitID:         "dup-commit",
		AggregateID:      aggregateID,
		AggregateType:    "Widget",
		AggregateVersion: 1,
		CommitSequence:   1,
		Events:           []eventlog.Event{{EventType: "created"}},
		CreatedAt:        time.Now(),
	}
	if _, err := store.Append(ctx, attempt); err != nil {
		t.Fatalf("first append: %v", err)
	}

	attempt2 := attempt
	attempt2.AggregateID = uuid.New()
	attempt2.AggregateVersion = 1
	attempt2.CommitSequence = 1

	_, err := store.Append(ctx, attempt2)
	var conflict *eventlog.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Kind != eventlog.CommitIDConflict {
		t.Errorf("expected CommitIDConflict, got %s", conflict.Kind)
	}
}

func TestAppendRejectsAggregateVersionConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	aggregateID := uuid.New()

	base := eventlog.CommitAttempt{
		AggregateID:      aggregateID,
		AggregateType:    "Widget",
		AggregateVersion: 1,
		CommitSequence:   1,
		Events:           []eventlog.Event{{EventType: "created"}},
		CreatedAt:        time.Now(),
	}
	base.CommitID = "v-1"
	if _, err := store.Append(ctx, base); err != nil {
		t.Fatalf("first append: %v", err)
	}

	retry := base
	retry.CommitID = "v-2"
	retry.CommitSequence = 2

	_, err := store.Append(ctx, retry)
	var conflict *eventlog.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Kind != eventlog.AggregateVersionConflict {
		t.Errorf("expected AggregateVersionConflict, got %s", conflict.Kind)
	}
}

func TestGetCommitNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetCommit(context.Background(), "does-not-exist")
	if !errors.Is(err, eventlog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUndispatchedAndMarkDispatched(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	aggregateID := uuid.New()

	commit, err := store.Append(ctx, eventlog.CommitAttempt{
		CommitID:         "to-dispatch",
		AggregateID:      aggregateID,
		AggregateType:    "Widget",
		AggregateVersion: 1,
		CommitSequence:   1,
		Events:           []eventlog.Event{{EventType: "created"}},
		CreatedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	undispatched, err := store.GetUndispatched(ctx, 10)
	if err != nil {
		t.Fatalf("GetUndispatched: %v", err)
	}
	if len(undispatched) != 1 {
		t.Fatalf("expected 1 undispatched commit, got %d", len(undispatched))
	}

	if err := store.MarkDispatched(ctx, commit.CommitID); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}

	undispatched, err = store.GetUndispatched(ctx, 10)
	if err != nil {
		t.Fatalf("GetUndispatched (after mark): %v", err)
	}
	if len(undispatched) != 0 {
		t.Fatalf("expected 0 undispatched commits, got %d", len(undispatched))
	}

	// Marking again is a no-op, not an error.
	if err := store.MarkDispatched(ctx, commit.CommitID); err != nil {
		t.Fatalf("MarkDispatched (idempotent): %v", err)
	}
}
