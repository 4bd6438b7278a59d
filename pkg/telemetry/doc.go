// Package telemetry provides observability instrumentation for setup runs.
//
// The telemetry package integrates structured logging (zerolog), tracing
// (OpenTelemetry), metrics (Prometheus) and event publishing into one
// bundle that plugs into the engine as an engine.Observer.
//
// # Usage
//
// Initialize telemetry before the run:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/froyo.prom"
//	cfg.Events.Enabled = true
//	cfg.Events.Path = "events.jsonl"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	orch := engine.New(engine.Options{
//	    Observer: telemetry.NewObserver(tel),
//	    Logger:   tel.Logger.Zerolog(),
//	    // ...
//	})
//
// # Tracing
//
// Every run gets a "run.execute" span and every call a "call.invoke"
// child span carrying the group, step, action and queue index. Exporters
// are "stdout", "otlp" (gRPC) and "none".
//
// # Metrics
//
// Available metrics, prefixed with the configured namespace:
//
//   - runs_started_total, runs_completed_total{status}
//   - run_duration_seconds{status}
//   - calls_executed_total{action,status}
//   - call_duration_seconds{action}
//   - errors_total{class,code}
//   - active_runs, queued_calls
//
// A command line run is short lived, so metrics are written to a textfile
// on Shutdown. A listen address additionally serves them over HTTP while
// the run lasts.
//
// # Events
//
// Events are delivered in publication order. With Path set they are
// appended to the file as JSON lines:
//
//	{"id":"...","type":"call.failed","run_id":"...","call":"web.install","level":"error",...}
package telemetry
