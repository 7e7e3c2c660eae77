package eventlog_test

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/google/uuid"
)

// memStore is a minimal in-process eventlog.Store used only by this
// package's own tests, exercising the Store contract without pulling
// in either storage adapter.
type memStore struct {
	mu          sync.Mutex
	nextNumber  int64
	byID        map[string]eventlog.Commit
	byAggregate map[uuid.UUID][]string
	commitIDs   map[string]bool
	versionKeys map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		nextNumber:  1,
		byID:        make(map[string]eventlog.Commit),
		byAggregate: make(map[uuid.UUID][]string),
		commitIDs:   make(map[string]bool),
		versionKeys: make(map[string]bool),
	}
}

func (m *memStore) Append(ctx context.Context, attempt eventlog.CommitAttempt) (eventlog.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitIDs[attempt.CommitID] {
		return eventlog.Commit{}, eventlog.NewConflictError(eventlog.CommitIDConflict)
	}
	versionKey := attempt.AggregateID.String() + "/" + strconv.FormatInt(attempt.AggregateVersion, 10)
	if m.versionKeys[versionKey] {
		return eventlog.Commit{}, eventlog.NewConflictError(eventlog.AggregateVersionConflict)
	}
	for _, id := range m.byAggregate[attempt.AggregateID] {
		if m.byID[id].CommitSequence == attempt.CommitSequence {
			return eventlog.Commit{}, eventlog.NewConflictError(eventlog.CommitSequenceConflict)
		}
	}
	if len(attempt.Events) == 0 {
		return eventlog.Commit{}, eventlog.WrapIO(errNoEvents)
	}

	commit := eventlog.Commit{
		CommitNumber:     m.nextNumber,
		CommitID:         attempt.CommitID,
		AggregateID:      attempt.AggregateID,
		AggregateType:    attempt.AggregateType,
		AggregateVersion: attempt.AggregateVersion,
		CommitSequence:   attempt.CommitSequence,
		Events:           attempt.Events,
		Metadata:         attempt.Metadata,
		CreatedAt:        attempt.CreatedAt,
		Dispatched:       false,
	}
	m.nextNumber++
	m.commitIDs[attempt.CommitID] = true
	m.versionKeys[versionKey] = true
	m.byID[attempt.CommitID] = commit
	m.byAggregate[attempt.AggregateID] = append(m.byAggregate[attempt.AggregateID], attempt.CommitID)

	return commit, nil
}

func (m *memStore) GetRange(ctx context.Context, aggregateID uuid.UUID, afterSequence int64) ([]eventlog.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []eventlog.Commit
	for _, id := range m.byAggregate[aggregateID] {
		c := m.byID[id]
		if c.CommitSequence > afterSequence {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommitSequence < out[j].CommitSequence })
	return out, nil
}

func (m *memStore) GetCommit(ctx context.Context, commitID string) (eventlog.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[commitID]
	if !ok {
		return eventlog.Commit{}, eventlog.NewNotFoundError(commitID)
	}
	return c, nil
}

func (m *memStore) GetUndispatched(ctx context.Context, limit int) ([]eventlog.Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []eventlog.Commit
	for _, ids := range m.byAggregate {
		for _, id := range ids {
			if c := m.byID[id]; !c.Dispatched {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommitNumber < out[j].CommitNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkDispatched(ctx context.Context, commitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byID[commitID]
	if !ok {
		return eventlog.WrapIO(errNotFound)
	}
	c.Dispatched = true
	m.byID[commitID] = c
	return nil
}

var errNotFound = stringError("commit not found")
var errNoEvents = stringError("commit attempt has no events")

type stringError string

func (e stringError) Error() string { return string(e) }
