// Package mongostore is the Mongo-backed C10 backend (spec §4.10): used in
// place of filestore when a Mongo DSN is configured, primarily to push
// CostAnalytics aggregation into the database rather than computing it in
// process memory.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/radiantcore/corerun/internal/store"
)

const (
	defaultCostEventsCollection  = "cost_events"
	defaultPlansCollection       = "plans"
	defaultTasksCollection       = "tasks"
	defaultIterationsCollection  = "iterations"
	defaultAgentRecordCollection = "agent_records"
	defaultTelemetryCollection   = "telemetry"
	defaultOpTimeout             = 5 * time.Second
)

// Options configures a Store.
type Options struct {
	Client         *mongo.Client
	Database       string
	CostEventsColl string
	PlansColl      string
	TasksColl      string
	IterationsColl string
	AgentRecsColl  string
	TelemetryColl  string
	Timeout        time.Duration
}

// Store implements store.Store and store.CostAnalytics over MongoDB.
type Store struct {
	costEvents *mongo.Collection
	plans      *mongo.Collection
	tasks      *mongo.Collection
	iterations *mongo.Collection
	agentRecs  *mongo.Collection
	telemetry  *mongo.Collection
	timeout    time.Duration
}

// New connects Store to the given database/collections.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	costColl := opts.CostEventsColl
	if costColl == "" {
		costColl = defaultCostEventsCollection
	}
	plansColl := opts.PlansColl
	if plansColl == "" {
		plansColl = defaultPlansCollection
	}
	tasksColl := opts.TasksColl
	if tasksColl == "" {
		tasksColl = defaultTasksCollection
	}
	iterColl := opts.IterationsColl
	if iterColl == "" {
		iterColl = defaultIterationsCollection
	}
	agentColl := opts.AgentRecsColl
	if agentColl == "" {
		agentColl = defaultAgentRecordCollection
	}
	telemetryColl := opts.TelemetryColl
	if telemetryColl == "" {
		telemetryColl = defaultTelemetryCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		costEvents: db.Collection(costColl),
		plans:      db.Collection(plansColl),
		tasks:      db.Collection(tasksColl),
		iterations: db.Collection(iterColl),
		agentRecs:  db.Collection(agentColl),
		telemetry:  db.Collection(telemetryColl),
		timeout:    timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.costEvents.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "requirement_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "model", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = s.plans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "requirement_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Ping satisfies a health-check surface analogous to the teacher's
// health.Pinger on its session client.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.plans.Database().Client().Ping(ctx, nil)
}

var _ store.PlanRepository = (*Store)(nil)
var _ store.TaskRepository = (*Store)(nil)
var _ store.TelemetryRepository = (*Store)(nil)
var _ store.CostAnalytics = (*Store)(nil)
