// Package hub implements the live subscription fan-out: subscribers
// bind to a single aggregate id and receive every commit dispatched
// for it, in dispatch order, for as long as their channel is kept
// drained.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/duskfall/eventlog/pkg/codec"
	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/google/uuid"
)

// SubscriberID uniquely identifies one live subscription within a Hub.
type SubscriberID uint64

// Hub fans out dispatched commits to per-aggregate subscriber
// channels. It implements eventlog.DispatchDelegate: wire it in as a
// Dispatcher's delegate (directly, or composed behind another delegate
// that also bridges to pkg/natsbus) to turn every drained commit into
// a live push to whatever subscribers are bound to its aggregate.
//
// Grounded on the original implementation's per-aggregate
// concurrent-map-of-maps design (CHashMap<AggregateId,
// CHashMap<SubscriberId, Sender>> plus an atomic subscriber counter);
// translated to Go's sync.Map outer map and a mutex-guarded inner map,
// since no concurrent-map third-party library appears anywhere in the
// example corpus.
type Hub struct {
	// byAggregate maps uuid.UUID -> *subscriberSet
	byAggregate sync.Map

	nextID atomic.Uint64
	logger *slog.Logger
}

type subscriberSet struct {
	mu   sync.Mutex
	subs map[SubscriberID]chan []byte
}

// Option configures a Hub at construction time.
type Option func(*Hub)

// WithLogger attaches a structured logger, used to report dropped
// subscriber sends (a slow or gone subscriber never fails dispatch).
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

// New builds an empty Hub.
func New(opts ...Option) *Hub {
	h := &Hub{logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber for aggregateID and returns its
// id plus a channel that receives the JSON-encoded derived form of
// every commit subsequently delivered via OnCommit. bufferSize bounds
// how many undelivered commits queue before a send is dropped rather
// than blocking the dispatcher; callers that cannot tolerate drops
// should choose a large buffer and drain promptly.
func (h *Hub) Subscribe(aggregateID uuid.UUID, bufferSize int) (SubscriberID, <-chan []byte) {
	set := h.setFor(aggregateID)

	id := SubscriberID(h.nextID.Add(1))
	ch := make(chan []byte, bufferSize)

	set.mu.Lock()
	set.subs[id] = ch
	set.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to
// call more than once.
func (h *Hub) Unsubscribe(aggregateID uuid.UUID, id SubscriberID) {
	value, ok := h.byAggregate.Load(aggregateID)
	if !ok {
		return
	}
	set := value.(*subscriberSet)

	set.mu.Lock()
	ch, ok := set.subs[id]
	if ok {
		delete(set.subs, id)
	}
	set.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *Hub) setFor(aggregateID uuid.UUID) *subscriberSet {
	value, loaded := h.byAggregate.Load(aggregateID)
	if loaded {
		return value.(*subscriberSet)
	}
	newSet := &subscriberSet{subs: make(map[SubscriberID]chan []byte)}
	actual, _ := h.byAggregate.LoadOrStore(aggregateID, newSet)
	return actual.(*subscriberSet)
}

// OnCommit implements eventlog.DispatchDelegate. A subscriber that
// cannot keep up has its send dropped and logged, and never causes an
// error, since a slow reader is not a reason to stop delivering to
// everyone else. An error is returned only when the commit cannot be
// derived or encoded for subscribers.
func (h *Hub) OnCommit(ctx context.Context, commit eventlog.Commit) error {
	value, ok := h.byAggregate.Load(commit.AggregateID)
	if !ok {
		return nil
	}
	set := value.(*subscriberSet)

	derived, err := codec.Derive(commit)
	if err != nil {
		return err
	}
	payload, err := codec.EncodeDerived(derived)
	if err != nil {
		return err
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	for id, ch := range set.subs {
		select {
		case ch <- payload:
		default:
			h.logger.Warn("hub: dropping commit for slow subscriber",
				slog.String("aggregate_id", commit.AggregateID.String()),
				slog.Uint64("subscriber_id", uint64(id)),
				slog.String("commit_id", commit.CommitID))
		}
	}
	return nil
}

var _ eventlog.DispatchDelegate = (*Hub)(nil)
