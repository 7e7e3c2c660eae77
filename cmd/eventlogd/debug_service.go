package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/duskfall/eventlog/pkg/observability"
)

// registerDebugRoutes exposes the SQLite-backed traces/metrics this
// process recorded (see setupTelemetry) over plain JSON endpoints,
// exercising observability.SQLiteObservabilityQueries instead of
// leaving it as a dead library for callers who'd rather query the
// database directly.
func registerDebugRoutes(mux *http.ServeMux, queries *observability.SQLiteObservabilityQueries) {
	if queries == nil {
		return
	}

	mux.HandleFunc("/debug/observability/traces", func(w http.ResponseWriter, r *http.Request) {
		traces, err := queries.QueryTraces(time.Time{}, time.Now(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(traces)
	})

	mux.HandleFunc("/debug/observability/metrics", func(w http.ResponseWriter, r *http.Request) {
		points, err := queries.QueryMetrics(observability.MetricQuery{Limit: 500})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(points)
	})
}
