package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/duskfall/eventlog/pkg/observability"
	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counter is the same trivial Aggregate used by pkg/eventlog's own
// tests, duplicated here since it's unexported there.
type counter struct {
	id    uuid.UUID
	value int64
}

func (c *counter) AggregateID() uuid.UUID  { return c.id }
func (c *counter) AggregateVersion() int64 { return c.value }
func (c *counter) Apply(event eventlog.Event) {
	if event.EventType == "incremented" {
		c.value++
	}
}

func newCounter(id uuid.UUID) *counter { return &counter{id: id} }

// fakeStore is a minimal eventlog.Store for exercising InstrumentedStore
// without pulling in a real storage adapter.
type fakeStore struct {
	appendErr error
	commits   []eventlog.Commit
}

func (s *fakeStore) Append(ctx context.Context, attempt eventlog.CommitAttempt) (eventlog.Commit, error) {
	if s.appendErr != nil {
		return eventlog.Commit{}, s.appendErr
	}
	commit := eventlog.Commit{
		CommitID:       attempt.CommitID,
		AggregateID:    attempt.AggregateID,
		AggregateType:  attempt.AggregateType,
		CommitSequence: int64(len(s.commits)) + 1,
		Events:         attempt.Events,
	}
	s.commits = append(s.commits, commit)
	return commit, nil
}

func (s *fakeStore) GetRange(ctx context.Context, aggregateID uuid.UUID, afterSequence int64) ([]eventlog.Commit, error) {
	var out []eventlog.Commit
	for _, c := range s.commits {
		if c.AggregateID == aggregateID && c.CommitSequence > afterSequence {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetCommit(ctx context.Context, commitID string) (eventlog.Commit, error) {
	for _, c := range s.commits {
		if c.CommitID == commitID {
			return c, nil
		}
	}
	return eventlog.Commit{}, eventlog.NewNotFoundError(commitID)
}

func (s *fakeStore) GetUndispatched(ctx context.Context, limit int) ([]eventlog.Commit, error) {
	return s.commits, nil
}

func (s *fakeStore) MarkDispatched(ctx context.Context, commitID string) error { return nil }

var _ eventlog.Store = (*fakeStore)(nil)

func newTestTelemetry(t *testing.T) (*observability.Telemetry, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	tel, err := observability.Init(context.Background(), observability.Config{
		ServiceName:  "eventlog-test",
		MetricReader: reader,
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return tel, reader
}

func metricSum(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				return total
			}
		}
	}
	return 0
}

func TestInstrumentedStoreRecordsAppendMetrics(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	store := observability.InstrumentStore(&fakeStore{}, tel)

	ctx := context.Background()
	aggregateID := uuid.New()
	if _, err := store.Append(ctx, eventlog.CommitAttempt{
		CommitID:      "c-1",
		AggregateID:   aggregateID,
		AggregateType: "Counter",
		Events:        []eventlog.Event{{EventType: "incremented"}},
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.store.commits_appended"); got != 1 {
		t.Errorf("expected commits_appended=1, got %d", got)
	}
}

func TestInstrumentedStoreRecordsAppendConflicts(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	store := observability.InstrumentStore(&fakeStore{
		appendErr: eventlog.NewConflictError(eventlog.AggregateVersionConflict),
	}, tel)

	ctx := context.Background()
	_, err := store.Append(ctx, eventlog.CommitAttempt{CommitID: "c-1", AggregateID: uuid.New()})
	var conflict *eventlog.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.store.append_conflicts"); got != 1 {
		t.Errorf("expected append_conflicts=1, got %d", got)
	}
	if got := metricSum(t, &rm, "eventlog.store.commits_appended"); got != 0 {
		t.Errorf("expected commits_appended=0 on a rejected append, got %d", got)
	}
}

func TestInstrumentedReplayerRecordsFetchMetrics(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	store := &fakeStore{}
	replayer := eventlog.NewReplayer[*counter](store, newCounter)
	instrumented := observability.InstrumentReplayer[*counter](replayer, tel, "Counter")

	ctx := context.Background()
	aggregateID := uuid.New()
	if _, err := store.Append(ctx, eventlog.CommitAttempt{
		CommitID:      "c-1",
		AggregateID:   aggregateID,
		AggregateType: "Counter",
		Events:        []eventlog.Event{{EventType: "incremented"}, {EventType: "incremented"}},
	}); err != nil {
		t.Fatalf("seed append: %v", err)
	}

	state, err := instrumented.FetchLatest(ctx, aggregateID)
	if err != nil {
		t.Fatalf("FetchLatest: %v", err)
	}
	if state.AggregateVersion() != 2 {
		t.Errorf("expected replayed version 2, got %d", state.AggregateVersion())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.replayer.fetches"); got != 1 {
		t.Errorf("expected replayer.fetches=1, got %d", got)
	}
}

func TestInstrumentedDelegateRecordsHubDeliveries(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	var delivered int
	delegate := observability.InstrumentDelegate("hub", eventlog.DispatchDelegateFunc(func(ctx context.Context, commit eventlog.Commit) error {
		delivered++
		return nil
	}), tel)

	ctx := context.Background()
	if err := delegate.OnCommit(ctx, eventlog.Commit{CommitID: "c-1", AggregateID: uuid.New()}); err != nil {
		t.Fatalf("OnCommit: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected underlying delegate to be called once, got %d", delivered)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.hub.deliveries"); got != 1 {
		t.Errorf("expected hub.deliveries=1, got %d", got)
	}
}

func TestInstrumentedDelegateRecordsNATSMessages(t *testing.T) {
	tel, reader := newTestTelemetry(t)
	delegate := observability.InstrumentDelegate("natsbus", eventlog.DispatchDelegateFunc(func(ctx context.Context, commit eventlog.Commit) error {
		return nil
	}), tel)

	ctx := context.Background()
	if err := delegate.OnCommit(ctx, eventlog.Commit{CommitID: "c-1", AggregateID: uuid.New()}); err != nil {
		t.Fatalf("OnCommit: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.natsbus.messages"); got != 1 {
		t.Errorf("expected natsbus.messages=1, got %d", got)
	}
}

func TestInstrumentDispatcherDrainRecordsMetrics(t *testing.T) {
	tel, reader := newTestTelemetry(t)

	drain := func(ctx context.Context) (int, error) {
		return 3, nil
	}
	instrumented := observability.InstrumentDispatcherDrain(tel, drain)

	ctx := context.Background()
	drained, err := instrumented(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if drained != 3 {
		t.Fatalf("expected drained passthrough of 3, got %d", drained)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.dispatcher.drains"); got != 1 {
		t.Errorf("expected dispatcher.drains=1, got %d", got)
	}
	if got := metricSum(t, &rm, "eventlog.dispatcher.commits_drained"); got != 3 {
		t.Errorf("expected dispatcher.commits_drained=3, got %d", got)
	}
}

func TestInstrumentDispatcherDrainRecordsHalts(t *testing.T) {
	tel, reader := newTestTelemetry(t)

	drainErr := eventlog.WrapDispatch(errors.New("delegate refused"))
	drain := func(ctx context.Context) (int, error) {
		return 1, drainErr
	}
	instrumented := observability.InstrumentDispatcherDrain(tel, drain)

	ctx := context.Background()
	if _, err := instrumented(ctx); !errors.Is(err, eventlog.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := metricSum(t, &rm, "eventlog.dispatcher.halts"); got != 1 {
		t.Errorf("expected dispatcher.halts=1, got %d", got)
	}
}
