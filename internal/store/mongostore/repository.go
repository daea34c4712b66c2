package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/radiantcore/corerun/internal/store"
)

// UpsertPlan implements store.PlanRepository.
func (s *Store) UpsertPlan(ctx context.Context, rec store.PlanRecord) error {
	if rec.RequirementID == "" {
		return errors.New("mongostore: requirement id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	rec.UpdatedAt = now
	doc := fromPlanRecord(rec)
	filter := bson.D{{Key: "requirement_id", Value: rec.RequirementID}}
	update := bson.D{
		{Key: "$set", Value: doc},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: now}}},
	}
	_, err := s.plans.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// LoadPlan implements store.PlanRepository.
func (s *Store) LoadPlan(ctx context.Context, requirementID string) (store.PlanRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc planDocument
	err := s.plans.FindOne(ctx, bson.D{{Key: "requirement_id", Value: requirementID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.PlanRecord{}, fmt.Errorf("mongostore: plan not found: %s", requirementID)
	}
	if err != nil {
		return store.PlanRecord{}, err
	}
	return doc.toRecord(), nil
}

// ListPlans implements store.PlanRepository.
func (s *Store) ListPlans(ctx context.Context) ([]store.PlanRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.plans.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "requirement_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []store.PlanRecord
	for cur.Next(ctx) {
		var doc planDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRecord())
	}
	return out, cur.Err()
}

// UpsertIteration implements store.IterationRepository.
func (s *Store) UpsertIteration(ctx context.Context, rec store.IterationRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.D{{Key: "requirement_id", Value: rec.RequirementID}, {Key: "iteration_id", Value: rec.IterationID}}
	update := bson.D{{Key: "$set", Value: fromIterationRecord(rec)}}
	_, err := s.iterations.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// ListIterations implements store.IterationRepository.
func (s *Store) ListIterations(ctx context.Context, requirementID string) ([]store.IterationRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.iterations.Find(ctx, bson.D{{Key: "requirement_id", Value: requirementID}},
		options.Find().SetSort(bson.D{{Key: "number", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []store.IterationRecord
	for cur.Next(ctx) {
		var doc iterationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRecord())
	}
	return out, cur.Err()
}

// UpsertTask implements store.TaskRepository.
func (s *Store) UpsertTask(ctx context.Context, rec store.TaskRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.D{{Key: "requirement_id", Value: rec.RequirementID}, {Key: "task_id", Value: rec.TaskID}}
	update := bson.D{{Key: "$set", Value: fromTaskRecord(rec)}}
	_, err := s.tasks.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// ListTasks implements store.TaskRepository.
func (s *Store) ListTasks(ctx context.Context, requirementID string) ([]store.TaskRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.tasks.Find(ctx, bson.D{{Key: "requirement_id", Value: requirementID}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []store.TaskRecord
	for cur.Next(ctx) {
		var doc taskDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.toRecord())
	}
	return out, cur.Err()
}

// RecordAgentSpawn implements store.AgentRepository.
func (s *Store) RecordAgentSpawn(ctx context.Context, rec store.AgentRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.agentRecs.InsertOne(ctx, fromAgentRecord(rec))
	return err
}

// RecordTelemetry implements store.TelemetryRepository.
func (s *Store) RecordTelemetry(ctx context.Context, rec store.TelemetryRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.telemetry.InsertOne(ctx, fromTelemetryRecord(rec))
	return err
}

// RecordCostEvent implements store.TelemetryRepository.
func (s *Store) RecordCostEvent(ctx context.Context, ev store.CostEvent) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.costEvents.InsertOne(ctx, fromCostEvent(ev))
	return err
}

// Query implements store.CostAnalytics by pushing the date-range filter and
// the requirement/model/provider/bucket grouping into a Mongo aggregation
// pipeline, per spec §4.10 ("all aggregation is pushed into the underlying
// store").
func (s *Store) Query(ctx context.Context, q store.AnalyticsQuery) ([]store.AnalyticsRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	match := bson.D{}
	if !q.From.IsZero() || !q.To.IsZero() {
		rng := bson.D{}
		if !q.From.IsZero() {
			rng = append(rng, bson.E{Key: "$gte", Value: q.From})
		}
		if !q.To.IsZero() {
			rng = append(rng, bson.E{Key: "$lte", Value: q.To})
		}
		match = append(match, bson.E{Key: "timestamp", Value: rng})
	}
	if q.RequirementID != "" {
		match = append(match, bson.E{Key: "requirement_id", Value: q.RequirementID})
	}

	bucket := q.Bucket
	if bucket == "" {
		bucket = store.BucketDay
	}
	groupBy := make(map[string]bool, len(q.GroupBy))
	for _, g := range q.GroupBy {
		groupBy[g] = true
	}

	groupID := bson.D{}
	if groupBy["requirement"] {
		groupID = append(groupID, bson.E{Key: "requirement", Value: "$requirement_id"})
	}
	if groupBy["model"] {
		groupID = append(groupID, bson.E{Key: "model", Value: "$model"})
	}
	if groupBy["provider"] {
		groupID = append(groupID, bson.E{Key: "provider", Value: "$provider"})
	}
	if groupBy["bucket"] {
		groupID = append(groupID, bson.E{Key: "bucket", Value: bucketExpr(bucket)})
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: groupID},
			{Key: "tokens_input", Value: bson.D{{Key: "$sum", Value: "$tokens_input"}}},
			{Key: "tokens_output", Value: bson.D{{Key: "$sum", Value: "$tokens_output"}}},
			{Key: "cost_usd", Value: bson.D{{Key: "$sum", Value: "$cost_usd"}}},
			{Key: "event_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := s.costEvents.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []store.AnalyticsRow
	for cur.Next(ctx) {
		var doc aggregateDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, store.AnalyticsRow{
			RequirementID: doc.ID.Requirement,
			Model:         doc.ID.Model,
			Provider:      doc.ID.Provider,
			Bucket:        doc.ID.Bucket,
			TokensInput:   doc.TokensInput,
			TokensOutput:  doc.TokensOutput,
			CostUSD:       doc.CostUSD,
			EventCount:    doc.EventCount,
		})
	}
	return out, cur.Err()
}

// bucketExpr builds the Mongo date-truncation expression for a bucket
// granularity, computed server-side: $dateToString for day ("%Y-%m-%d")
// and month ("%Y-%m"), and for week a $concat of $isoWeekYear, "-W" and
// $isoWeek, whose week number is not zero-padded.
func bucketExpr(bucket store.TimeBucket) bson.D {
	format := "%Y-%m-%d"
	switch bucket {
	case store.BucketWeek:
		return bson.D{{Key: "$concat", Value: bson.A{
			bson.D{{Key: "$toString", Value: bson.D{{Key: "$isoWeekYear", Value: "$timestamp"}}}},
			"-W",
			bson.D{{Key: "$toString", Value: bson.D{{Key: "$isoWeek", Value: "$timestamp"}}}},
		}}}
	case store.BucketMonth:
		format = "%Y-%m"
	}
	return bson.D{{Key: "$dateToString", Value: bson.D{{Key: "format", Value: format}, {Key: "date", Value: "$timestamp"}}}}
}

type aggregateDocument struct {
	ID           aggregateKey `bson:"_id"`
	TokensInput  uint64       `bson:"tokens_input"`
	TokensOutput uint64       `bson:"tokens_output"`
	CostUSD      float64      `bson:"cost_usd"`
	EventCount   int64        `bson:"event_count"`
}

type aggregateKey struct {
	Requirement string `bson:"requirement"`
	Model       string `bson:"model"`
	Provider    string `bson:"provider"`
	Bucket      string `bson:"bucket"`
}
