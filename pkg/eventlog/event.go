// Package eventlog implements the commit-log core: the append protocol,
// the aggregate replay engine, the at-least-once dispatcher, and the
// conflict taxonomy that every store adapter maps into.
package eventlog

import (
	"time"

	"github.com/google/uuid"
)

// Event is one opaque fact inside a commit. The payload is an
// application-defined encoding; eventlog never interprets it directly,
// only carries it between the store and the codec/aggregate layers.
type Event struct {
	EventType string
	Payload   []byte
}

// CommitAttempt is the pending form of a commit: everything the caller
// supplies before the store assigns a commit_number and persists it.
type CommitAttempt struct {
	CommitID         string
	AggregateID      uuid.UUID
	AggregateType    string
	AggregateVersion int64
	CommitSequence   int64
	Events           []Event
	Metadata         []byte
	CreatedAt        time.Time
}

// Commit is the durable record of a group of events committed together
// for one aggregate. CommitNumber is assigned by the store and is
// strictly monotonic across the whole store (invariant I4).
type Commit struct {
	CommitNumber     int64
	CommitID         string
	AggregateID      uuid.UUID
	AggregateType    string
	AggregateVersion int64
	CommitSequence   int64
	Events           []Event
	Metadata         []byte
	CreatedAt        time.Time
	Dispatched       bool
}

// EventCount returns the number of events carried by this commit.
// Invariant I5 requires this to be at least 1.
func (c Commit) EventCount() int { return len(c.Events) }
