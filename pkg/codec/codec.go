// Package codec turns the opaque byte payloads carried inside a Commit
// into self-describing document trees and back, using the textual JSON
// encoding the original implementation uses for commits
// (serde_json, per its commit type).
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/duskfall/eventlog/pkg/eventlog"
)

// DerivedEvent is the parsed, human-inspectable form of an Event: the
// event type alongside its payload decoded into a generic document
// tree (map[string]any / []any / scalars), rather than raw bytes.
type DerivedEvent struct {
	EventType string `json:"event_type"`
	Payload   any    `json:"payload"`
}

// DerivedCommit is the parsed form of a Commit, suitable for
// serialization back out to a subscriber or an HTTP response body.
type DerivedCommit struct {
	CommitNumber     int64          `json:"commit_number"`
	CommitID         string         `json:"commit_id"`
	AggregateID      string         `json:"aggregate_id"`
	AggregateType    string         `json:"aggregate_type"`
	AggregateVersion int64          `json:"aggregate_version"`
	CommitSequence   int64          `json:"commit_sequence"`
	Events           []DerivedEvent `json:"events"`
	Metadata         any            `json:"metadata,omitempty"`
}

// EncodeEvent marshals an application-defined payload value into the
// bytes an Event carries.
func EncodeEvent(eventType string, payload any) (eventlog.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return eventlog.Event{}, eventlog.WrapEncoding(err)
	}
	return eventlog.Event{EventType: eventType, Payload: data}, nil
}

// DecodeEvent unmarshals an Event's payload into out.
func DecodeEvent(event eventlog.Event, out any) error {
	if err := json.Unmarshal(event.Payload, out); err != nil {
		return eventlog.WrapEncoding(fmt.Errorf("event %s: %w", event.EventType, err))
	}
	return nil
}

// Derive parses a Commit's opaque event and metadata payloads into a
// DerivedCommit document tree.
func Derive(commit eventlog.Commit) (DerivedCommit, error) {
	derived := DerivedCommit{
		CommitNumber:     commit.CommitNumber,
		CommitID:         commit.CommitID,
		AggregateID:      commit.AggregateID.String(),
		AggregateType:    commit.AggregateType,
		AggregateVersion: commit.AggregateVersion,
		CommitSequence:   commit.CommitSequence,
		Events:           make([]DerivedEvent, 0, len(commit.Events)),
	}

	for _, ev := range commit.Events {
		var payload any
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				return DerivedCommit{}, eventlog.WrapEncoding(fmt.Errorf("event %s: %w", ev.EventType, err))
			}
		}
		derived.Events = append(derived.Events, DerivedEvent{
			EventType: ev.EventType,
			Payload:   payload,
		})
	}

	if len(commit.Metadata) > 0 {
		var meta any
		if err := json.Unmarshal(commit.Metadata, &meta); err != nil {
			return DerivedCommit{}, eventlog.WrapEncoding(fmt.Errorf("metadata: %w", err))
		}
		derived.Metadata = meta
	}

	return derived, nil
}

// EncodeDerived serializes a DerivedCommit back to its wire form - the
// bytes sent to a subscriber or an HTTP response body.
func EncodeDerived(derived DerivedCommit) ([]byte, error) {
	data, err := json.Marshal(derived)
	if err != nil {
		return nil, eventlog.WrapEncoding(err)
	}
	return data, nil
}
