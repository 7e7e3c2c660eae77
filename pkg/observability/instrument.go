package observability

import (
	"context"
	"errors"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentedStore decorates an eventlog.Store with tracing and
// metrics, following the teacher's EventStoreMiddleware closure-wrap
// shape (tracer.Start / time.Since / span.RecordError) generalized
// from protobuf-framed request/response pairs to this module's plain
// Store methods. Core packages never import this package themselves;
// a caller composing a process (cmd/eventlogd) wraps its Store once at
// the composition root instead.
type InstrumentedStore struct {
	store eventlog.Store
	tel   *Telemetry
}

// InstrumentStore wraps store so Append is traced and, when
// tel.Metrics is non-nil, every call is recorded in eventlog.store.*
// instruments. The other methods open no span.
func InstrumentStore(store eventlog.Store, tel *Telemetry) *InstrumentedStore {
	return &InstrumentedStore{store: store, tel: tel}
}

// Append implements eventlog.Store. It is the "store append" span
// SPEC_FULL.md's ambient stack section names explicitly: it records
// CommitsAppended on success, AppendConflicts (by kind) on a rejected
// append, and StoreLatency in both cases.
func (s *InstrumentedStore) Append(ctx context.Context, attempt eventlog.CommitAttempt) (eventlog.Commit, error) {
	tracer := s.tel.Tracer("eventlog.store")
	ctx, span := StartSpan(ctx, tracer, "store.append", WithAttributes(
		AttrAggregateID.String(attempt.AggregateID.String()),
		AttrAggregateType.String(attempt.AggregateType),
		AttrEventCount.Int(len(attempt.Events)),
	))
	defer span.End()

	start := time.Now()
	commit, err := s.store.Append(ctx, attempt)
	duration := time.Since(start)

	if s.tel.Metrics != nil {
		s.tel.Metrics.StoreLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(AttrOperation.String("append")))
		var conflict *eventlog.ConflictError
		if errors.As(err, &conflict) {
			s.tel.Metrics.AppendConflicts.Add(ctx, 1, metric.WithAttributes(AttrErrorCode.String(string(conflict.Kind))))
		} else if err == nil {
			s.tel.Metrics.CommitsAppended.Add(ctx, 1)
		}
	}
	EndSpan(span, err)

	return commit, err
}

// GetRange implements eventlog.Store, timed under StoreLatency but
// without its own span: replay fetch instrumentation belongs to
// InstrumentedReplayer, which is the caller SPEC_FULL.md names.
func (s *InstrumentedStore) GetRange(ctx context.Context, aggregateID uuid.UUID, afterSequence int64) ([]eventlog.Commit, error) {
	start := time.Now()
	commits, err := s.store.GetRange(ctx, aggregateID, afterSequence)
	if s.tel.Metrics != nil {
		s.tel.Metrics.StoreLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(AttrOperation.String("get_range")))
	}
	return commits, err
}

// GetCommit implements eventlog.Store.
func (s *InstrumentedStore) GetCommit(ctx context.Context, commitID string) (eventlog.Commit, error) {
	start := time.Now()
	commit, err := s.store.GetCommit(ctx, commitID)
	if s.tel.Metrics != nil {
		s.tel.Metrics.StoreLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(AttrOperation.String("get_commit")))
	}
	return commit, err
}

// GetUndispatched implements eventlog.Store.
func (s *InstrumentedStore) GetUndispatched(ctx context.Context, limit int) ([]eventlog.Commit, error) {
	start := time.Now()
	commits, err := s.store.GetUndispatched(ctx, limit)
	if s.tel.Metrics != nil {
		s.tel.Metrics.StoreLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(AttrOperation.String("get_undispatched")))
	}
	return commits, err
}

// MarkDispatched implements eventlog.Store.
func (s *InstrumentedStore) MarkDispatched(ctx context.Context, commitID string) error {
	start := time.Now()
	err := s.store.MarkDispatched(ctx, commitID)
	if s.tel.Metrics != nil {
		s.tel.Metrics.StoreLatency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(AttrOperation.String("mark_dispatched")))
	}
	return err
}

var _ eventlog.Store = (*InstrumentedStore)(nil)

// InstrumentedReplayer decorates an *eventlog.Replayer[A] with tracing
// and the ReplayerFetches/ReplayerLatency metrics around FetchLatest -
// the "replay fetch" span SPEC_FULL.md names. Grounded on the same
// EventStoreMiddleware.WrapLoadEvents shape as InstrumentedStore.Append,
// specialized to the generic Replayer rather than a plain interface
// method since Go methods can't themselves be generic.
type InstrumentedReplayer[A eventlog.Aggregate] struct {
	replayer      *eventlog.Replayer[A]
	tel           *Telemetry
	aggregateType string
}

// InstrumentReplayer wraps replayer, labeling its spans and metrics
// with aggregateType (e.g. "Account", "Widget").
func InstrumentReplayer[A eventlog.Aggregate](replayer *eventlog.Replayer[A], tel *Telemetry, aggregateType string) *InstrumentedReplayer[A] {
	return &InstrumentedReplayer[A]{replayer: replayer, tel: tel, aggregateType: aggregateType}
}

// FetchLatest wraps (*eventlog.Replayer[A]).FetchLatest.
func (r *InstrumentedReplayer[A]) FetchLatest(ctx context.Context, aggregateID uuid.UUID) (A, error) {
	tracer := r.tel.Tracer("eventlog.replayer")
	ctx, span := StartSpan(ctx, tracer, "replayer.fetch_latest", WithAttributes(
		AttrAggregateType.String(r.aggregateType),
		AttrAggregateID.String(aggregateID.String()),
	))
	defer span.End()

	start := time.Now()
	state, err := r.replayer.FetchLatest(ctx, aggregateID)
	duration := time.Since(start)

	if r.tel.Metrics != nil {
		attrs := metric.WithAttributes(AttrAggregateType.String(r.aggregateType))
		r.tel.Metrics.ReplayerFetches.Add(ctx, 1, attrs)
		r.tel.Metrics.ReplayerLatency.Record(ctx, duration.Seconds(), attrs)
	}
	EndSpan(span, err)

	return state, err
}

// Watermark delegates to the wrapped Replayer; watermark lookups are
// in-memory and cheap enough not to warrant their own span.
func (r *InstrumentedReplayer[A]) Watermark(aggregateID uuid.UUID) int64 {
	return r.replayer.Watermark(aggregateID)
}

// Forget delegates to the wrapped Replayer.
func (r *InstrumentedReplayer[A]) Forget(aggregateID uuid.UUID) {
	r.replayer.Forget(aggregateID)
}

// InstrumentedDelegate decorates an eventlog.DispatchDelegate - the
// Dispatcher's hand-off to pkg/hub.Hub or pkg/natsbus.Bus - with
// tracing and delegate-specific metrics around OnCommit. This is the
// "hub publish" span SPEC_FULL.md names; wrapping natsbus.Bus the same
// way gives it real tracing/metrics coverage too, which is also how it
// gets composed into cmd/eventlogd (see eventlog.FanOut in
// pkg/eventlog/dispatcher.go).
type InstrumentedDelegate struct {
	name     string
	delegate eventlog.DispatchDelegate
	tel      *Telemetry
}

// InstrumentDelegate wraps delegate, labeling its span and metrics
// with name ("hub" or "natsbus" pick the matching Metrics fields;
// any other name still gets tracing, just no dedicated counter).
func InstrumentDelegate(name string, delegate eventlog.DispatchDelegate, tel *Telemetry) *InstrumentedDelegate {
	return &InstrumentedDelegate{name: name, delegate: delegate, tel: tel}
}

// OnCommit implements eventlog.DispatchDelegate.
func (d *InstrumentedDelegate) OnCommit(ctx context.Context, commit eventlog.Commit) error {
	tracer := d.tel.Tracer("eventlog." + d.name)
	ctx, span := StartSpan(ctx, tracer, d.name+".on_commit", WithAttributes(
		AttrAggregateID.String(commit.AggregateID.String()),
		AttrAggregateType.String(commit.AggregateType),
	))
	defer span.End()

	start := time.Now()
	err := d.delegate.OnCommit(ctx, commit)
	duration := time.Since(start)

	if d.tel.Metrics != nil {
		switch d.name {
		case "hub":
			d.tel.Metrics.HubDeliveries.Add(ctx, 1)
		case "natsbus":
			d.tel.Metrics.NATSMessages.Add(ctx, 1)
			d.tel.Metrics.NATSPublishLatency.Record(ctx, duration.Seconds())
		}
	}
	EndSpan(span, err)

	return err
}

var _ eventlog.DispatchDelegate = (*InstrumentedDelegate)(nil)

// InstrumentDispatcherDrain wraps a Dispatcher.Drain call (or anything
// of the same shape) with a "dispatcher drain" span and the
// DispatcherDrains/DispatcherDrainedTotal/DispatcherHalts metrics. It
// is a plain function, not a decorator type, because DrainLoopService
// holds a drain func rather than a *Dispatcher (see
// pkg/eventlog/service.go) - wrap once at the composition root and
// hand the result straight to eventlog.NewDrainLoopService.
func InstrumentDispatcherDrain(tel *Telemetry, drain func(context.Context) (int, error)) func(context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		tracer := tel.Tracer("eventlog.dispatcher")
		ctx, span := StartSpan(ctx, tracer, "dispatcher.drain")
		defer span.End()

		drained, err := drain(ctx)

		if tel.Metrics != nil {
			tel.Metrics.DispatcherDrains.Add(ctx, 1)
			if drained > 0 {
				tel.Metrics.DispatcherDrainedTotal.Add(ctx, int64(drained))
			}
			if err != nil && !errors.Is(err, eventlog.ErrAlreadyDraining) {
				tel.Metrics.DispatcherHalts.Add(ctx, 1)
			}
		}
		span.SetAttributes(AttrEventCount.Int(drained))
		if err != nil && !errors.Is(err, eventlog.ErrAlreadyDraining) {
			EndSpan(span, err)
		} else {
			EndSpan(span, nil)
		}

		return drained, err
	}
}
