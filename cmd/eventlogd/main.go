// Command eventlogd composes the commit-log engine's pieces into a
// single runnable process: a SQLite-backed store (wrapped with
// tracing/metrics), a drain-loop dispatcher fanning out to a live
// subscription hub and, optionally, a NATS bridge, and a Connect
// streaming bridge exposing the hub over HTTP/2. It is a
// demonstration process, not a spec requirement - the natural home
// for connectrpc.com/connect, pkg/observability's decorators, and
// pkg/runner's sequenced startup/shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/duskfall/eventlog/pkg/eventlog"
	"github.com/duskfall/eventlog/pkg/hub"
	"github.com/duskfall/eventlog/pkg/hub/connectbridge"
	"github.com/duskfall/eventlog/pkg/natsbus"
	"github.com/duskfall/eventlog/pkg/observability"
	"github.com/duskfall/eventlog/pkg/runner"
	"github.com/duskfall/eventlog/pkg/store/sqlitestore"
)

func main() {
	var (
		dsn          = flag.String("dsn", "eventlog.db", "sqlite DSN for the commit store")
		addr         = flag.String("addr", ":8080", "HTTP listen address for the commit hub")
		drainEvery   = flag.Duration("drain-interval", time.Second, "dispatcher drain interval")
		shutdownWait = flag.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
		natsURL      = flag.String("nats-url", "", "NATS server URL to also fan out commits to; disabled when empty")
		telemetryDSN = flag.String("telemetry-db", "", "sqlite DSN to export traces/metrics into; disabled when empty")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(*dsn, *addr, *natsURL, *telemetryDSN, *drainEvery, *shutdownWait, logger); err != nil {
		logger.Error("eventlogd: exiting", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(dsn, addr, natsURL, telemetryDSN string, drainEvery, shutdownWait time.Duration, logger *slog.Logger) error {
	ctx := context.Background()

	tel, telemetryQueries, closeTelemetry, err := setupTelemetry(ctx, telemetryDSN, logger)
	if err != nil {
		return err
	}
	defer closeTelemetry()

	rawStore, err := sqlitestore.Open(
		sqlitestore.WithDSN(dsn),
		sqlitestore.WithWALMode(true),
		sqlitestore.WithAutoMigrate(true),
	)
	if err != nil {
		return err
	}
	defer rawStore.Close()
	store := observability.InstrumentStore(rawStore, tel)

	h := hub.New(hub.WithLogger(logger))
	delegate := eventlog.DispatchDelegate(observability.InstrumentDelegate("hub", eventlog.DispatchDelegateFunc(h.OnCommit), tel))

	var bus *natsbus.Bus
	if natsURL != "" {
		bus, err = natsbus.New(natsbus.Config{URL: natsURL, SubjectPrefix: "commits"})
		if err != nil {
			return err
		}
		delegate = eventlog.FanOut(delegate, observability.InstrumentDelegate("natsbus", bus, tel))
	}

	dispatcher := eventlog.NewDispatcher(store, delegate, eventlog.WithDispatcherLogger(logger))
	drainLoop := eventlog.NewDrainLoopService(
		"eventlog-dispatcher",
		observability.InstrumentDispatcherDrain(tel, dispatcher.Drain),
		drainEvery,
		logger,
	)

	bridge := connectbridge.NewBridge(h, logger)
	mux := http.NewServeMux()
	path, handler := connectbridge.NewHandler(bridge)
	mux.Handle(path, handler)
	registerDebugRoutes(mux, telemetryQueries)
	httpService := newHTTPService("eventlog-http", addr, mux)

	services := []runner.Service{drainLoop, httpService}

	r := runner.New(
		services,
		runner.WithLogger(slogRunnerLogger{logger}),
		runner.WithShutdownTimeout(shutdownWait),
	)

	defer func() {
		if bus != nil {
			bus.Close()
		}
	}()

	return r.Run(ctx)
}

// slogRunnerLogger adapts *slog.Logger to runner.Logger's
// keysAndValues-variadic shape.
type slogRunnerLogger struct{ logger *slog.Logger }

func (l slogRunnerLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l slogRunnerLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l slogRunnerLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}
