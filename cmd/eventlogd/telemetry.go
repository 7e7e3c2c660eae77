package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/duskfall/eventlog/pkg/observability"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// setupTelemetry builds an observability.Telemetry for this process.
// When telemetryDSN is empty, tracing and metrics stay disabled
// (Telemetry.Init's graceful-degrade path: no-op providers, Metrics
// left nil) - every InstrumentedStore/InstrumentedDelegate call still
// works, it just records nothing, and queries is nil. When set, it
// opens a SQLite database at that DSN and exports every span and
// metric into it via observability.SQLiteTraceExporter/
// SQLiteMetricExporter, and returns an observability.
// SQLiteObservabilityQueries over the same database so the running
// process can expose its own traces/metrics over HTTP (see
// debug_service.go) instead of standing up a separate collector.
func setupTelemetry(ctx context.Context, telemetryDSN string, logger *slog.Logger) (*observability.Telemetry, *observability.SQLiteObservabilityQueries, func() error, error) {
	cfg := observability.Config{
		ServiceName:    "eventlogd",
		ServiceVersion: "dev",
		Environment:    "dev",
		Logger:         logger,
	}

	if telemetryDSN == "" {
		tel, err := observability.Init(ctx, cfg)
		return tel, nil, func() error { return nil }, err
	}

	db, err := sql.Open("sqlite", telemetryDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("eventlogd: open telemetry db: %w", err)
	}

	exporterCfg := observability.DefaultSQLiteExporterConfig(db)
	traceExporter, err := observability.NewSQLiteTraceExporter(exporterCfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("eventlogd: sqlite trace exporter: %w", err)
	}
	metricExporter, err := observability.NewSQLiteMetricExporter(exporterCfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("eventlogd: sqlite metric exporter: %w", err)
	}

	cfg.TraceExporter = traceExporter
	cfg.TraceSampleRate = 1.0
	cfg.MetricReader = sdkmetric.NewPeriodicReader(metricExporter)

	tel, err := observability.Init(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}

	queries := observability.NewSQLiteObservabilityQueries(db, exporterCfg)

	return tel, queries, func() error {
		tel.Shutdown(ctx)
		return db.Close()
	}, nil
}
