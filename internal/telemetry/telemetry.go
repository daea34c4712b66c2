// Package telemetry wires OpenTelemetry spans and metrics around agent
// invocations and queue dequeues (spec §4.10/§4.6/§4.7): a tracer for the
// former; for the metrics, a queue-depth gauge, a task-latency histogram,
// and counters of dequeues and agent invocations. Callers that never register an SDK exporter still work — the
// underlying otel API falls back to its own no-op implementation — so this
// package has no bespoke no-op variant of its own.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/radiantcore/corerun/internal/telemetry"

// Tracer abstracts span creation so callers stay agnostic of the underlying
// OpenTelemetry TracerProvider.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
}

// Span represents an in-flight trace span.
type Span interface {
	End()
	RecordError(err error)
	SetAttributes(attrs ...attribute.KeyValue)
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by the globally registered
// TracerProvider. Passing a distinct name per long-lived component
// (dispatcher, executor, queue, ...) keeps spans attributable in a
// multi-component trace.
func NewTracer(name string) Tracer {
	if name == "" {
		name = instrumentationName
	}
	return &otelTracer{tracer: otel.Tracer(name)}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// Instrumentation bundles the specific metrics spec §4.10/§4.6/§4.7 call
// for: queue depth (a gauge, since it is a point-in-time level rather than
// a monotonic count) and task latency (a histogram), plus a Tracer for
// agent-invocation and queue-dequeue spans.
type Instrumentation struct {
	tracer        Tracer
	queueDepth    metric.Float64Gauge
	taskLatency   metric.Float64Histogram
	dequeueCount  metric.Int64Counter
	invokeCounter metric.Int64Counter
}

// New builds an Instrumentation bundle from the globally registered
// MeterProvider and TracerProvider. meterName/tracerName let callers
// disambiguate instrumentation scopes when more than one component shares
// a process; an empty string falls back to this package's own name.
func New(meterName, tracerName string) (*Instrumentation, error) {
	if meterName == "" {
		meterName = instrumentationName
	}
	meter := otel.Meter(meterName)

	queueDepth, err := meter.Float64Gauge(
		"corerun.queue.depth",
		metric.WithDescription("number of tasks currently queued for dispatch"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: queue depth gauge: %w", err)
	}
	taskLatency, err := meter.Float64Histogram(
		"corerun.task.latency",
		metric.WithDescription("wall-clock duration of a dispatched task, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: task latency histogram: %w", err)
	}
	dequeueCount, err := meter.Int64Counter(
		"corerun.queue.dequeues",
		metric.WithDescription("number of tasks dequeued for dispatch"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dequeue counter: %w", err)
	}
	invokeCounter, err := meter.Int64Counter(
		"corerun.agent.invocations",
		metric.WithDescription("number of agent invocations started"),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: invocation counter: %w", err)
	}

	return &Instrumentation{
		tracer:        NewTracer(tracerName),
		queueDepth:    queueDepth,
		taskLatency:   taskLatency,
		dequeueCount:  dequeueCount,
		invokeCounter: invokeCounter,
	}, nil
}

// StartAgentInvocation opens a span around a single agent invocation.
func (i *Instrumentation) StartAgentInvocation(ctx context.Context, agentID, taskID string) (context.Context, Span) {
	i.invokeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("agent_id", agentID)))
	return i.tracer.Start(ctx, "agent.invoke",
		attribute.String("agent_id", agentID),
		attribute.String("task_id", taskID),
	)
}

// StartQueueDequeue opens a span around a single queue pop.
func (i *Instrumentation) StartQueueDequeue(ctx context.Context) (context.Context, Span) {
	i.dequeueCount.Add(ctx, 1)
	return i.tracer.Start(ctx, "queue.dequeue")
}

// RecordQueueDepth reports the current number of queued tasks.
func (i *Instrumentation) RecordQueueDepth(ctx context.Context, depth int) {
	i.queueDepth.Record(ctx, float64(depth))
}

// RecordTaskLatency reports how long a dispatched task took end to end.
func (i *Instrumentation) RecordTaskLatency(ctx context.Context, taskID string, d time.Duration) {
	i.taskLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("task_id", taskID)))
}
