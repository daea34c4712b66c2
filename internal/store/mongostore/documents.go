package mongostore

import (
	"time"

	"github.com/radiantcore/corerun/internal/store"
)

type planDocument struct {
	RequirementID  string    `bson:"requirement_id"`
	ProjectTitle   string    `bson:"project_title"`
	TotalTasks     int       `bson:"total_tasks"`
	CompletedTasks int       `bson:"completed_tasks"`
	FailedTasks    int       `bson:"failed_tasks"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func fromPlanRecord(r store.PlanRecord) planDocument {
	return planDocument{
		RequirementID:  r.RequirementID,
		ProjectTitle:   r.ProjectTitle,
		TotalTasks:     r.TotalTasks,
		CompletedTasks: r.CompletedTasks,
		FailedTasks:    r.FailedTasks,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (d planDocument) toRecord() store.PlanRecord {
	return store.PlanRecord{
		RequirementID:  d.RequirementID,
		ProjectTitle:   d.ProjectTitle,
		TotalTasks:     d.TotalTasks,
		CompletedTasks: d.CompletedTasks,
		FailedTasks:    d.FailedTasks,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type iterationDocument struct {
	RequirementID string `bson:"requirement_id"`
	IterationID   string `bson:"iteration_id"`
	Number        int    `bson:"number"`
	Name          string `bson:"name"`
	TotalTasks    int    `bson:"total_tasks"`
}

func fromIterationRecord(r store.IterationRecord) iterationDocument {
	return iterationDocument{
		RequirementID: r.RequirementID,
		IterationID:   r.IterationID,
		Number:        r.Number,
		Name:          r.Name,
		TotalTasks:    r.TotalTasks,
	}
}

func (d iterationDocument) toRecord() store.IterationRecord {
	return store.IterationRecord{
		RequirementID: d.RequirementID,
		IterationID:   d.IterationID,
		Number:        d.Number,
		Name:          d.Name,
		TotalTasks:    d.TotalTasks,
	}
}

type taskDocument struct {
	RequirementID string    `bson:"requirement_id"`
	TaskID        string    `bson:"task_id"`
	AgentID       string    `bson:"agent_id"`
	Status        string    `bson:"status"`
	StartedAt     time.Time `bson:"started_at"`
	CompletedAt   time.Time `bson:"completed_at"`
	Error         string    `bson:"error,omitempty"`
}

func fromTaskRecord(r store.TaskRecord) taskDocument {
	return taskDocument{
		RequirementID: r.RequirementID,
		TaskID:        r.TaskID,
		AgentID:       r.AgentID,
		Status:        r.Status,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
		Error:         r.Error,
	}
}

func (d taskDocument) toRecord() store.TaskRecord {
	return store.TaskRecord{
		RequirementID: d.RequirementID,
		TaskID:        d.TaskID,
		AgentID:       d.AgentID,
		Status:        d.Status,
		StartedAt:     d.StartedAt,
		CompletedAt:   d.CompletedAt,
		Error:         d.Error,
	}
}

type costEventDocument struct {
	Timestamp     time.Time `bson:"timestamp"`
	RequirementID string    `bson:"requirement_id,omitempty"`
	Model         string    `bson:"model"`
	Provider      string    `bson:"provider"`
	TokensInput   uint64    `bson:"tokens_input"`
	TokensOutput  uint64    `bson:"tokens_output"`
	CostUSD       float64   `bson:"cost_usd"`
	SessionID     string    `bson:"session_id,omitempty"`
}

func fromCostEvent(ev store.CostEvent) costEventDocument {
	return costEventDocument{
		Timestamp:     ev.Timestamp,
		RequirementID: ev.RequirementID,
		Model:         ev.Model,
		Provider:      ev.Provider,
		TokensInput:   ev.TokensInput,
		TokensOutput:  ev.TokensOutput,
		CostUSD:       ev.CostUSD,
		SessionID:     ev.SessionID,
	}
}

type telemetryDocument struct {
	ID            string    `bson:"_id,omitempty"`
	RequirementID string    `bson:"requirement_id,omitempty"`
	TaskID        string    `bson:"task_id,omitempty"`
	AgentID       string    `bson:"agent_id,omitempty"`
	Model         string    `bson:"model"`
	Provider      string    `bson:"provider"`
	InputTokens   uint64    `bson:"input_tokens"`
	OutputTokens  uint64    `bson:"output_tokens"`
	DurationMS    int64     `bson:"duration_ms"`
	Timestamp     time.Time `bson:"timestamp"`
}

func fromTelemetryRecord(r store.TelemetryRecord) telemetryDocument {
	return telemetryDocument{
		ID:            r.ID,
		RequirementID: r.RequirementID,
		TaskID:        r.TaskID,
		AgentID:       r.AgentID,
		Model:         r.Model,
		Provider:      r.Provider,
		InputTokens:   r.InputTokens,
		OutputTokens:  r.OutputTokens,
		DurationMS:    r.DurationMS,
		Timestamp:     r.Timestamp,
	}
}

type agentRecordDocument struct {
	ID            string    `bson:"_id,omitempty"`
	RequirementID string    `bson:"requirement_id,omitempty"`
	TaskID        string    `bson:"task_id,omitempty"`
	AgentID       string    `bson:"agent_id"`
	SpawnedAt     time.Time `bson:"spawned_at"`
}

func fromAgentRecord(r store.AgentRecord) agentRecordDocument {
	return agentRecordDocument{
		ID:            r.ID,
		RequirementID: r.RequirementID,
		TaskID:        r.TaskID,
		AgentID:       r.AgentID,
		SpawnedAt:     r.SpawnedAt,
	}
}
