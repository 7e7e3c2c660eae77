package natsbus_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/duskfall/eventlog/pkg/natsbus"
	"github.com/google/uuid"
)

func TestBusPublishAndSubscribe(t *testing.T) {
	srv, err := natsbus.StartEmbeddedServer()
	if err != nil {
		t.Fatalf("StartEmbeddedServer: %v", err)
	}
	defer srv.Shutdown()

	cfg := natsbus.DefaultConfig()
	cfg.URL = srv.URL()
	bus, err := natsbus.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer bus.Close()

	aggregateID := uuid.New()
	received := make(chan []byte, 1)

	sub, err := bus.Subscribe(aggregateID.String(), func(payload []byte) {
		received <- payload
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	time.Sleep(100 * time.Millisecond)

	commit := eventlog.Commit{
		CommitID:    "bus-commit-1",
		AggregateID: aggregateID,
		Events:      []eventlog.Event{{EventType: "created", Payload: []byte(`{"n":1}`)}},
	}
	if err := bus.OnCommit(context.Background(), commit); err != nil {
		t.Fatalf("OnCommit: %v", err)
	}

	select {
	case payload := <-received:
		var doc map[string]any
		if err := json.Unmarshal(payload, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if doc["commit_id"] != "bus-commit-1" {
			t.Errorf("expected commit_id bus-commit-1, got %v", doc["commit_id"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for published commit")
	}
}
