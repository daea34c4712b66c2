package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracerStartEndDoesNotPanic(t *testing.T) {
	tracer := NewTracer("test-tracer")
	ctx, span := tracer.Start(context.Background(), "unit.op")
	assert.NotNil(t, ctx)
	span.RecordError(errors.New("boom"))
	span.SetAttributes()
	span.End()
}

func TestNewBuildsInstrumentationWithoutSDK(t *testing.T) {
	inst, err := New("test-meter", "test-tracer")
	require.NoError(t, err)
	require.NotNil(t, inst)

	ctx := context.Background()
	ctx, span := inst.StartAgentInvocation(ctx, "agent-1", "task-1")
	span.End()

	ctx, span = inst.StartQueueDequeue(ctx)
	span.End()

	inst.RecordQueueDepth(ctx, 3)
	inst.RecordTaskLatency(ctx, "task-1", 250*time.Millisecond)
}
