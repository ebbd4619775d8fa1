// Package telemetry defines the logging and metrics contracts used by the
// assistant runtime, with implementations backed by goa.design/clue/log and
// OTEL metrics plus no-op variants for tests.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log messages. Key-value pairs alternate keys
	// and values.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records runtime instrumentation. Tags alternate keys and
	// values.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
	}
)

// Counter and timer names recorded by the assistant runtime.
const (
	// MetricRoutingTries counts router loop iterations, tagged by agent.
	MetricRoutingTries = "assistant.routing.tries"
	// MetricRoutingExhausted counts messages no agent handled within the
	// routing bound.
	MetricRoutingExhausted = "assistant.routing.exhausted"
	// MetricPersistFailures counts best-effort persistence failures,
	// tagged by target ("store" or "client") and update kind.
	MetricPersistFailures = "assistant.persist.failures"
	// MetricGuardRejections counts guard rail rejections, tagged by
	// verdict.
	MetricGuardRejections = "assistant.guard.rejections"
	// MetricModelLatency times LLM collaborator calls, tagged by caller.
	MetricModelLatency = "assistant.model.latency"
)
