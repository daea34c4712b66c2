// Package store defines the Persistence Layer (spec §4.10): repositories
// over a local database for Plans, Iterations, Tasks, AgentRecords,
// TelemetryRecords, and CostEvents.
//
// The executor (internal/executor) keeps per-task status in memory in its
// State and does not write the PlanManifest back to disk. The PlanRecord
// persisted here carries aggregate counts only, not per-task status.
package store

import "time"

// PlanRecord is the durable, aggregate-only counterpart of a PlanManifest.
type PlanRecord struct {
	RequirementID  string
	ProjectTitle   string
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IterationRecord is a durable row for one iteration of a plan.
type IterationRecord struct {
	RequirementID string
	IterationID   string
	Number        int
	Name          string
	TotalTasks    int
}

// TaskRecord is a durable row mirroring one task's terminal/current status.
type TaskRecord struct {
	RequirementID string
	TaskID        string
	AgentID       string
	Status        string // pending | running | completed | failed | blocked
	StartedAt     time.Time
	CompletedAt   time.Time
	Error         string
}

// AgentRecord is written whenever an agent is spawned to execute a task
// (spec §4 glossary: "an agent spawn creates an AgentRecord").
type AgentRecord struct {
	ID            string
	RequirementID string
	TaskID        string
	AgentID       string
	SpawnedAt     time.Time
}

// TelemetryRecord is written for every model response (spec §4 glossary:
// "each model response emits a TelemetryRecord").
type TelemetryRecord struct {
	ID            string
	RequirementID string
	TaskID        string
	AgentID       string
	Model         string
	Provider      string
	InputTokens   uint64
	OutputTokens  uint64
	DurationMS    int64
	Timestamp     time.Time
}

// CostEvent is the billing-facing row a TelemetryRecord in turn persists
// (spec §4 glossary): `{timestamp, requirement_id?, model, provider,
// tokens_input, tokens_output, cost_usd, session_id}`.
type CostEvent struct {
	Timestamp     time.Time
	RequirementID string
	Model         string
	Provider      string
	TokensInput   uint64
	TokensOutput  uint64
	CostUSD       float64
	SessionID     string
}

// TimeBucket is a CostAnalytics grouping granularity.
type TimeBucket string

const (
	BucketDay   TimeBucket = "day"
	BucketWeek  TimeBucket = "week"
	BucketMonth TimeBucket = "month"
)

// AnalyticsQuery scopes a CostAnalytics aggregation.
type AnalyticsQuery struct {
	From          time.Time
	To            time.Time
	RequirementID string // optional filter
	Bucket        TimeBucket
	GroupBy       []string // any of "requirement", "model", "provider", "bucket"
}

// AnalyticsRow is one grouped aggregate result.
type AnalyticsRow struct {
	RequirementID string
	Model         string
	Provider      string
	Bucket        string
	TokensInput   uint64
	TokensOutput  uint64
	CostUSD       float64
	EventCount    int64
}
