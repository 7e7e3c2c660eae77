// Package natsbus bridges the dispatcher's drained commits onto NATS
// subjects, so a fleet of processes - each running its own in-memory
// subscription hub for its locally-connected subscribers - all observe
// every commit, at-least-once per subscriber, without sharing a single
// process's Dispatcher.
//
// The embedded server in this package (adapted from the teacher
// repo's infrastructure/nats package) is generic dev/test
// infrastructure: production deployments point Config.URL at a real
// NATS cluster instead of starting one in-process.
package natsbus

import (
	"context"
	"fmt"

	"github.com/duskfall/eventlog/pkg/codec"
	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/nats-io/nats.go"
)

// Config configures a Bus.
type Config struct {
	// URL is the NATS server to connect to.
	URL string

	// SubjectPrefix prefixes every subject this Bus publishes to and
	// subscribes on. Defaults to "commits".
	SubjectPrefix string
}

// DefaultConfig returns a Config pointed at the standard local NATS
// port, with the default subject prefix.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "commits",
	}
}

// Bus is a NATS-backed eventlog.DispatchDelegate. Wire it in
// alongside, or instead of, pkg/hub.Hub as a Dispatcher's delegate.
type Bus struct {
	conn   *nats.Conn
	prefix string
}

// New connects to the NATS server named in cfg and returns a Bus ready
// to publish and subscribe.
func New(cfg Config) (*Bus, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect: %w", err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "commits"
	}
	return &Bus{conn: conn, prefix: prefix}, nil
}

// Close drains and closes the underlying NATS connection.
func (b *Bus) Close() error {
	b.conn.Drain()
	b.conn.Close()
	return nil
}

func (b *Bus) subject(aggregateID string) string {
	return b.prefix + "." + aggregateID
}

// OnCommit implements eventlog.DispatchDelegate: it publishes the
// commit's derived JSON form to "<prefix>.<aggregate_id>". A publish
// failure is returned to the Dispatcher, which will retry this commit
// on the next Drain, matching the at-least-once contract.
func (b *Bus) OnCommit(ctx context.Context, commit eventlog.Commit) error {
	derived, err := codec.Derive(commit)
	if err != nil {
		return err
	}
	payload, err := codec.EncodeDerived(derived)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject(commit.AggregateID.String()), payload); err != nil {
		return eventlog.WrapIO(err)
	}
	return nil
}

// Subscription is an active subscription to one aggregate's commit
// subject.
type Subscription struct {
	sub *nats.Subscription
}

// Unsubscribe cancels the subscription.
func (s *Subscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

// Subscribe registers handler to be called with the raw JSON payload
// of every commit published for aggregateID.
func (b *Bus) Subscribe(aggregateID string, handler func(payload []byte)) (*Subscription, error) {
	sub, err := b.conn.Subscribe(b.subject(aggregateID), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("natsbus: subscribe: %w", err)
	}
	return &Subscription{sub: sub}, nil
}

var _ eventlog.DispatchDelegate = (*Bus)(nil)
