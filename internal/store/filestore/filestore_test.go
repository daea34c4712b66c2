package filestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiantcore/corerun/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	return s
}

func TestUpsertPlanPreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPlan(ctx, store.PlanRecord{RequirementID: "REQ-1", TotalTasks: 2}))
	first, err := s.LoadPlan(ctx, "REQ-1")
	require.NoError(t, err)

	require.NoError(t, s.UpsertPlan(ctx, store.PlanRecord{RequirementID: "REQ-1", TotalTasks: 2, CompletedTasks: 1}))
	second, err := s.LoadPlan(ctx, "REQ-1")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 1, second.CompletedTasks)
	assert.True(t, second.UpdatedAt.Equal(second.UpdatedAt))
}

func TestLoadPlanNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadPlan(context.Background(), "missing")
	assert.Error(t, err)
}

func TestUpsertTaskReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertTask(ctx, store.TaskRecord{RequirementID: "REQ-1", TaskID: "I1.T1", Status: "running"}))
	require.NoError(t, s.UpsertTask(ctx, store.TaskRecord{RequirementID: "REQ-1", TaskID: "I1.T1", Status: "completed"}))

	tasks, err := s.ListTasks(ctx, "REQ-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "completed", tasks[0].Status)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitoring.db")
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.RecordAgentSpawn(ctx, store.AgentRecord{ID: "a1", AgentID: "code-agent", RequirementID: "REQ-1"}))

	s2, err := Open(path)
	require.NoError(t, err)
	doc, err := s2.load()
	require.NoError(t, err)
	require.Len(t, doc.AgentRecs, 1)
	assert.Equal(t, "code-agent", doc.AgentRecs[0].AgentID)
}

func TestCostAnalyticsGroupsByModelAndBucket(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	day1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	events := []store.CostEvent{
		{Timestamp: day1, RequirementID: "REQ-1", Model: "claude-opus", Provider: "anthropic", TokensInput: 100, TokensOutput: 50, CostUSD: 1.0},
		{Timestamp: day1, RequirementID: "REQ-1", Model: "claude-opus", Provider: "anthropic", TokensInput: 200, TokensOutput: 60, CostUSD: 2.0},
		{Timestamp: day2, RequirementID: "REQ-1", Model: "gpt-4", Provider: "openai", TokensInput: 50, TokensOutput: 10, CostUSD: 0.5},
	}
	for _, ev := range events {
		require.NoError(t, s.RecordCostEvent(ctx, ev))
	}

	rows, err := s.Query(ctx, store.AnalyticsQuery{
		Bucket:  store.BucketDay,
		GroupBy: []string{"model", "bucket"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var opusRow store.AnalyticsRow
	for _, r := range rows {
		if r.Model == "claude-opus" {
			opusRow = r
		}
	}
	assert.Equal(t, int64(2), opusRow.EventCount)
	assert.InDelta(t, 3.0, opusRow.CostUSD, 0.0001)
	assert.Equal(t, "2026-01-01", opusRow.Bucket)
}

func TestCostAnalyticsFiltersByRequirementAndDateRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inRange := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	outOfRange := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordCostEvent(ctx, store.CostEvent{Timestamp: inRange, RequirementID: "REQ-1", CostUSD: 1}))
	require.NoError(t, s.RecordCostEvent(ctx, store.CostEvent{Timestamp: outOfRange, RequirementID: "REQ-1", CostUSD: 5}))
	require.NoError(t, s.RecordCostEvent(ctx, store.CostEvent{Timestamp: inRange, RequirementID: "REQ-2", CostUSD: 9}))

	rows, err := s.Query(ctx, store.AnalyticsQuery{
		From:          time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		To:            time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		RequirementID: "REQ-1",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 1.0, rows[0].CostUSD, 0.0001)
}
