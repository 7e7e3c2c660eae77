package eventlog

import "github.com/google/uuid"

// Aggregate is the replay target for a stream of events: a pure state
// machine that folds committed events into its own representation.
// Apply mutates the receiver in place and returns nothing, so
// implementations are usually pointer types.
type Aggregate interface {
	// AggregateID returns the identifier this instance replays for.
	AggregateID() uuid.UUID

	// AggregateVersion returns the version reached after the last
	// applied event.
	AggregateVersion() int64

	// Apply folds a single event into the aggregate's state, advancing
	// AggregateVersion by exactly one. Apply must not fail: an event
	// already accepted into the commit log is a fact, not a decision.
	Apply(event Event)
}

// Command produces events against a snapshot of an aggregate, or fails.
// A is the aggregate type this command targets.
type Command[A Aggregate] interface {
	// Apply evaluates the command against the given aggregate state and
	// returns the events it produces, in order. A non-nil error aborts
	// the command pipeline before any store interaction and is
	// returned to the caller verbatim (spec §7's CommandError).
	Apply(aggregate A) ([]Event, error)
}
