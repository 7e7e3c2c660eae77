package eventlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Pipeline issues commands against aggregates of type A, appending the
// resulting events as a single commit and opportunistically nudging a
// dispatcher afterward.
type Pipeline[A Aggregate] struct {
	store    Store
	replayer *Replayer[A]
	logger   *slog.Logger

	// dispatch is called after a successful append, best-effort: its
	// error is logged and otherwise ignored, per spec §4.4 ("errors
	// ignored"). A nil dispatch disables opportunistic dispatch.
	dispatch func(ctx context.Context) error
}

// PipelineOption configures a Pipeline at construction time.
type PipelineOption[A Aggregate] func(*Pipeline[A])

// WithOpportunisticDispatch registers a best-effort dispatch trigger
// invoked after every successful IssueCommand, with IssueCommand's own
// context. A closure that calls dispatcher.Drain and drops its count
// fits this signature.
func WithOpportunisticDispatch[A Aggregate](dispatch func(ctx context.Context) error) PipelineOption[A] {
	return func(p *Pipeline[A]) { p.dispatch = dispatch }
}

// WithPipelineLogger attaches a structured logger, used only to report
// opportunistic-dispatch failures (which are otherwise swallowed).
func WithPipelineLogger[A Aggregate](logger *slog.Logger) PipelineOption[A] {
	return func(p *Pipeline[A]) { p.logger = logger }
}

// NewPipeline builds a Pipeline over store, replaying aggregates via
// replayer before evaluating each command.
func NewPipeline[A Aggregate](store Store, replayer *Replayer[A], opts ...PipelineOption[A]) *Pipeline[A] {
	p := &Pipeline[A]{
		store:    store,
		replayer: replayer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IssueCommand replays aggregateID to its latest known state, applies
// cmd against it, and appends the resulting events as one commit.
// commit_sequence is assigned as one past the last commit_sequence this
// pipeline's replayer has observed for aggregateID (1-based: the first
// commit for a new aggregate gets commit_sequence 1). On success it
// returns the durable Commit as read back via the store.
func (p *Pipeline[A]) IssueCommand(ctx context.Context, aggregateID uuid.UUID, aggregateType string, cmd Command[A], metadata []byte) (Commit, error) {
	var zero Commit

	state, err := p.replayer.FetchLatest(ctx, aggregateID)
	if err != nil {
		return zero, err
	}

	events, err := cmd.Apply(state)
	if err != nil {
		return zero, err
	}
	if len(events) == 0 {
		return zero, nil
	}

	nextSequence := p.replayer.Watermark(aggregateID) + 1

	attempt := CommitAttempt{
		CommitID:         newCommitID(),
		AggregateID:      aggregateID,
		AggregateType:    aggregateType,
		AggregateVersion: state.AggregateVersion(),
		CommitSequence:   nextSequence,
		Events:           events,
		Metadata:         metadata,
		CreatedAt:        time.Now(),
	}

	committed, err := p.store.Append(ctx, attempt)
	if err != nil {
		return zero, err
	}

	if p.dispatch != nil {
		if err := p.dispatch(ctx); err != nil {
			p.logger.Warn("eventlog: opportunistic dispatch failed, will retry on next drain",
				slog.String("aggregate_id", aggregateID.String()),
				slog.Any("error", err))
		}
	}

	return p.store.GetCommit(ctx, committed.CommitID)
}
