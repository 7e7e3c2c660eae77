package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the commit-log engine.
type Metrics struct {
	// Pipeline metrics
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	// Store metrics
	CommitsAppended metric.Int64Counter
	AppendConflicts metric.Int64Counter
	StoreLatency    metric.Float64Histogram

	// Replayer metrics
	ReplayerFetches metric.Int64Counter
	ReplayerLatency metric.Float64Histogram

	// Dispatcher metrics
	DispatcherDrains       metric.Int64Counter
	DispatcherDrainedTotal metric.Int64Counter
	DispatcherHalts        metric.Int64Counter

	// Hub metrics
	HubSubscribers  metric.Int64UpDownCounter
	HubDeliveries   metric.Int64Counter
	HubDroppedSends metric.Int64Counter

	// NATS bridge metrics
	NATSPublishLatency metric.Float64Histogram
	NATSMessages       metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.CommandDuration, err = meter.Float64Histogram(
		"eventlog.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	m.CommandTotal, err = meter.Int64Counter(
		"eventlog.command.total",
		metric.WithDescription("Total commands issued"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	m.CommandErrors, err = meter.Int64Counter(
		"eventlog.command.errors",
		metric.WithDescription("Total command errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	m.CommitsAppended, err = meter.Int64Counter(
		"eventlog.store.commits_appended",
		metric.WithDescription("Total commits durably appended"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating store.commits_appended: %w", err)
	}

	m.AppendConflicts, err = meter.Int64Counter(
		"eventlog.store.append_conflicts",
		metric.WithDescription("Total rejected appends, by conflict kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating store.append_conflicts: %w", err)
	}

	m.StoreLatency, err = meter.Float64Histogram(
		"eventlog.store.latency",
		metric.WithDescription("Store operation latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating store.latency: %w", err)
	}

	m.ReplayerFetches, err = meter.Int64Counter(
		"eventlog.replayer.fetches",
		metric.WithDescription("Total FetchLatest calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating replayer.fetches: %w", err)
	}

	m.ReplayerLatency, err = meter.Float64Histogram(
		"eventlog.replayer.latency",
		metric.WithDescription("FetchLatest latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating replayer.latency: %w", err)
	}

	m.DispatcherDrains, err = meter.Int64Counter(
		"eventlog.dispatcher.drains",
		metric.WithDescription("Total Drain calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher.drains: %w", err)
	}

	m.DispatcherDrainedTotal, err = meter.Int64Counter(
		"eventlog.dispatcher.commits_drained",
		metric.WithDescription("Total commits successfully delivered to a delegate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher.commits_drained: %w", err)
	}

	m.DispatcherHalts, err = meter.Int64Counter(
		"eventlog.dispatcher.halts",
		metric.WithDescription("Total drains halted early by a delegate error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher.halts: %w", err)
	}

	m.HubSubscribers, err = meter.Int64UpDownCounter(
		"eventlog.hub.subscribers",
		metric.WithDescription("Current live subscriber count"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hub.subscribers: %w", err)
	}

	m.HubDeliveries, err = meter.Int64Counter(
		"eventlog.hub.deliveries",
		metric.WithDescription("Total commits delivered to subscribers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hub.deliveries: %w", err)
	}

	m.HubDroppedSends, err = meter.Int64Counter(
		"eventlog.hub.dropped_sends",
		metric.WithDescription("Total deliveries dropped for a slow subscriber"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating hub.dropped_sends: %w", err)
	}

	m.NATSPublishLatency, err = meter.Float64Histogram(
		"eventlog.natsbus.publish_latency",
		metric.WithDescription("NATS publish latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating natsbus.publish_latency: %w", err)
	}

	m.NATSMessages, err = meter.Int64Counter(
		"eventlog.natsbus.messages",
		metric.WithDescription("Total messages published to NATS"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating natsbus.messages: %w", err)
	}

	return m, nil
}
