package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// DispatchDelegate receives each commit drained by a Dispatcher,
// in commit_number order, at least once. Implementations include the
// subscription hub (pkg/hub) and the NATS bridge (pkg/natsbus).
type DispatchDelegate interface {
	// OnCommit handles one drained commit. A returned error halts the
	// entire drain: the commit that failed, and every commit after it
	// in this drain batch, remain undispatched and are retried on the
	// next call to Drain.
	OnCommit(ctx context.Context, commit Commit) error
}

// DispatchDelegateFunc adapts a plain function to DispatchDelegate.
type DispatchDelegateFunc func(ctx context.Context, commit Commit) error

func (f DispatchDelegateFunc) OnCommit(ctx context.Context, commit Commit) error {
	return f(ctx, commit)
}

// FanOutDelegate dispatches each drained commit to multiple delegates
// in order, so a single Dispatcher can drive both pkg/hub.Hub (for
// local subscribers) and pkg/natsbus.Bus (for fleet-wide fan-out) from
// one drain loop. The first delegate to error halts the fan-out for
// that commit; since Drain retries the whole commit on its next call,
// delegates that already succeeded may see the same commit again,
// consistent with this package's at-least-once delivery guarantee.
type FanOutDelegate struct {
	delegates []DispatchDelegate
}

// FanOut builds a DispatchDelegate that forwards every commit to each
// of delegates, in order.
func FanOut(delegates ...DispatchDelegate) *FanOutDelegate {
	return &FanOutDelegate{delegates: delegates}
}

// OnCommit implements DispatchDelegate.
func (f *FanOutDelegate) OnCommit(ctx context.Context, commit Commit) error {
	for _, d := range f.delegates {
		if err := d.OnCommit(ctx, commit); err != nil {
			return err
		}
	}
	return nil
}

var _ DispatchDelegate = (*FanOutDelegate)(nil)

// Dispatcher drains undispatched commits from a Store and hands each
// one to a delegate, at least once, in commit_number order. A single
// Drain loop is assumed process-wide per store (spec §5): Dispatcher
// rejects overlapping Drain calls rather than interleave two drains,
// since the subscription hub's fan-out ordering guarantee depends on
// there being exactly one active drain loop.
type Dispatcher struct {
	store    Store
	delegate DispatchDelegate
	logger   *slog.Logger
	batch    int

	draining atomic.Bool
}

// DispatcherOption configures a Dispatcher at construction time.
type DispatcherOption func(*Dispatcher)

// WithBatchSize bounds how many undispatched commits a single Drain
// call will fetch and attempt to deliver. Default is 256.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) { d.batch = n }
}

// WithDispatcherLogger attaches a structured logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// NewDispatcher builds a Dispatcher over store, delivering drained
// commits to delegate.
func NewDispatcher(store Store, delegate DispatchDelegate, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		delegate: delegate,
		logger:   slog.Default(),
		batch:    256,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drain fetches undispatched commits ordered by commit_number and
// delivers each to the delegate in order. On the delegate's first
// error, Drain stops immediately: the failing commit and every commit
// after it in this batch stay undispatched, to be retried by the next
// Drain call. A commit is marked dispatched only after the delegate
// has accepted it successfully, preserving at-least-once delivery
// across process restarts.
//
// Drain returns ErrAlreadyDraining if another Drain call on this
// Dispatcher is already in flight. On success (or a halt partway
// through) it also reports how many commits were delivered and marked
// dispatched before stopping.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	if !d.draining.CompareAndSwap(false, true) {
		return 0, ErrAlreadyDraining
	}
	defer d.draining.Store(false)

	commits, err := d.store.GetUndispatched(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("eventlog: drain: fetch undispatched: %w", err)
	}

	var drained int
	for _, commit := range commits {
		if err := d.delegate.OnCommit(ctx, commit); err != nil {
			d.logger.Warn("eventlog: dispatch delegate rejected commit, halting drain",
				slog.String("commit_id", commit.CommitID),
				slog.Int64("commit_number", commit.CommitNumber),
				slog.Any("error", err))
			return drained, WrapDispatch(err)
		}

		if err := d.store.MarkDispatched(ctx, commit.CommitID); err != nil {
			return drained, fmt.Errorf("eventlog: drain: mark dispatched %s: %w", commit.CommitID, err)
		}
		drained++
	}

	return drained, nil
}
