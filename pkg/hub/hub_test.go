package hub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/duskfall/eventlog/pkg/hub"
	"github.com/google/uuid"
)

func TestHubFanOutToMultipleSubscribers(t *testing.T) {
	h := hub.New()
	aggregateID := uuid.New()

	_, ch1 := h.Subscribe(aggregateID, 4)
	_, ch2 := h.Subscribe(aggregateID, 4)

	commit := eventlog.Commit{
		CommitNumber:     1,
		CommitID:         "c-1",
		AggregateID:      aggregateID,
		AggregateType:    "Widget",
		AggregateVersion: 1,
		CommitSequence:   1,
		Events:           []eventlog.Event{{EventType: "created", Payload: []byte(`{"n":1}`)}},
	}

	if err := h.OnCommit(context.Background(), commit); err != nil {
		t.Fatalf("OnCommit: %v", err)
	}

	for _, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case payload := <-ch:
			var doc map[string]any
			if err := json.Unmarshal(payload, &doc); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if doc["commit_id"] != "c-1" {
				t.Errorf("expected commit_id c-1, got %v", doc["commit_id"])
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for fan-out delivery")
		}
	}
}

func TestHubOnCommitIgnoresUnsubscribedAggregate(t *testing.T) {
	h := hub.New()
	commit := eventlog.Commit{CommitID: "c-2", AggregateID: uuid.New()}
	if err := h.OnCommit(context.Background(), commit); err != nil {
		t.Fatalf("expected no error for an aggregate with no subscribers, got %v", err)
	}
}

func TestHubSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	h := hub.New()
	aggregateID := uuid.New()
	_, ch := h.Subscribe(aggregateID, 1)

	for i := 0; i < 3; i++ {
		commit := eventlog.Commit{
			CommitID:    uuid.New().String(),
			AggregateID: aggregateID,
			Events:      []eventlog.Event{{EventType: "tick"}},
		}
		if err := h.OnCommit(context.Background(), commit); err != nil {
			t.Fatalf("OnCommit %d: %v", i, err)
		}
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected at least one buffered payload")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	h := hub.New()
	aggregateID := uuid.New()
	id, ch := h.Subscribe(aggregateID, 1)

	h.Unsubscribe(aggregateID, id)

	_, open := <-ch
	if open {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}
