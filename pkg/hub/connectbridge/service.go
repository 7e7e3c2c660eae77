// Package connectbridge exposes pkg/hub's live commit fan-out over a
// Connect (connectrpc.com/connect) streaming RPC, so a process can
// offer the spec's "WS /commits/{aggregate_id}" read surface over
// plain HTTP/2 without pkg/hub itself importing any transport
// package.
package connectbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/duskfall/eventlog/pkg/codec"
	"github.com/duskfall/eventlog/pkg/hub"
	"github.com/google/uuid"
)

// SubscribePath is the Connect procedure this package registers. It
// follows connect's "/<package>.<service>/<method>" convention even
// though no .proto file backs it.
const SubscribePath = "/eventlog.hub.v1.HubService/Subscribe"

const subscriberBufferSize = 64

// SubscribeRequest names the aggregate whose commits the caller wants
// streamed.
type SubscribeRequest struct {
	AggregateID string `json:"aggregate_id"`
}

// Bridge adapts a *hub.Hub to Connect's streaming handler shape.
type Bridge struct {
	hub    *hub.Hub
	logger *slog.Logger
}

// NewBridge wraps h for use as a Connect service. A nil logger falls
// back to slog.Default().
func NewBridge(h *hub.Hub, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{hub: h, logger: logger}
}

// Subscribe streams every commit dispatched to an aggregate until the
// client disconnects. It implements the handler signature expected by
// connect.NewServerStreamHandler.
func (b *Bridge) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest], stream *connect.ServerStream[codec.DerivedCommit]) error {
	aggregateID, err := uuid.Parse(req.Msg.AggregateID)
	if err != nil {
		return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid aggregate_id: %w", err))
	}

	id, commits := b.hub.Subscribe(aggregateID, subscriberBufferSize)
	defer b.hub.Unsubscribe(aggregateID, id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-commits:
			if !ok {
				return nil
			}
			var derived codec.DerivedCommit
			if err := json.Unmarshal(payload, &derived); err != nil {
				return connect.NewError(connect.CodeInternal, err)
			}
			if err := stream.Send(&derived); err != nil {
				return err
			}
		}
	}
}

// NewHandler builds the Connect HTTP handler for b, returning the
// procedure path it serves alongside the handler itself so callers can
// mount it directly on an http.ServeMux.
func NewHandler(b *Bridge, opts ...connect.HandlerOption) (string, *connect.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	return connect.NewServerStreamHandler(SubscribePath, b.Subscribe, opts...)
}
