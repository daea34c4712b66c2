package store

import "context"

// PlanRepository persists PlanRecord aggregates.
type PlanRepository interface {
	UpsertPlan(ctx context.Context, rec PlanRecord) error
	LoadPlan(ctx context.Context, requirementID string) (PlanRecord, error)
	ListPlans(ctx context.Context) ([]PlanRecord, error)
}

// IterationRepository persists IterationRecord rows.
type IterationRepository interface {
	UpsertIteration(ctx context.Context, rec IterationRecord) error
	ListIterations(ctx context.Context, requirementID string) ([]IterationRecord, error)
}

// TaskRepository persists TaskRecord rows.
type TaskRepository interface {
	UpsertTask(ctx context.Context, rec TaskRecord) error
	ListTasks(ctx context.Context, requirementID string) ([]TaskRecord, error)
}

// AgentRepository records agent spawns.
type AgentRepository interface {
	RecordAgentSpawn(ctx context.Context, rec AgentRecord) error
}

// TelemetryRepository records model-response telemetry and the CostEvent
// each telemetry record in turn persists.
type TelemetryRepository interface {
	RecordTelemetry(ctx context.Context, rec TelemetryRecord) error
	RecordCostEvent(ctx context.Context, ev CostEvent) error
}

// CostAnalytics answers date-range cost queries grouped by requirement,
// model, provider, and time bucket (spec §4.10).
type CostAnalytics interface {
	Query(ctx context.Context, q AnalyticsQuery) ([]AnalyticsRow, error)
}

// Store is the full C10 surface a caller (planner, executor, dispatcher)
// depends on.
type Store interface {
	PlanRepository
	IterationRepository
	TaskRepository
	AgentRepository
	TelemetryRepository
}
