// Package filestore is the default Persistence Layer backend (spec §4.10):
// a JSON-file-backed, in-memory repository requiring no external database.
// It implements store.Store and store.CostAnalytics the same way
// internal/vault persists its secrets file: the whole document is decoded
// on open, held in memory behind a mutex, and re-encoded to disk on every
// write.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/radiantcore/corerun/internal/store"
)

const fileMode = 0o644
const dirMode = 0o755

// document is the on-disk layout of monitoring.db (spec §6).
type document struct {
	Plans      map[string]store.PlanRecord        `json:"plans"`
	Iterations map[string][]store.IterationRecord `json:"iterations"` // keyed by requirement id
	Tasks      map[string][]store.TaskRecord       `json:"tasks"`      // keyed by requirement id
	AgentRecs  []store.AgentRecord                 `json:"agent_records"`
	Telemetry  []store.TelemetryRecord             `json:"telemetry"`
	CostEvents []store.CostEvent                   `json:"cost_events"`
}

func emptyDocument() *document {
	return &document{
		Plans:      map[string]store.PlanRecord{},
		Iterations: map[string][]store.IterationRecord{},
		Tasks:      map[string][]store.TaskRecord{},
	}
}

// Store is the JSON-file + in-memory default C10 backend.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open creates or opens the store file at path, creating its parent
// directory if necessary. An absent file is treated as an empty document,
// matching vault.Open's "first use" behavior.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := emptyDocument()
		if werr := s.save(doc); werr != nil {
			return nil, werr
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("filestore: corrupt store file: %w", err)
	}
	if doc.Plans == nil {
		doc.Plans = map[string]store.PlanRecord{}
	}
	if doc.Iterations == nil {
		doc.Iterations = map[string][]store.IterationRecord{}
	}
	if doc.Tasks == nil {
		doc.Tasks = map[string][]store.TaskRecord{}
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, fileMode); err != nil {
		return fmt.Errorf("filestore: write: %w", err)
	}
	return nil
}

// UpsertPlan implements store.PlanRepository.
func (s *Store) UpsertPlan(_ context.Context, rec store.PlanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if existing, ok := doc.Plans[rec.RequirementID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	doc.Plans[rec.RequirementID] = rec
	return s.save(doc)
}

// LoadPlan implements store.PlanRepository.
func (s *Store) LoadPlan(_ context.Context, requirementID string) (store.PlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return store.PlanRecord{}, err
	}
	rec, ok := doc.Plans[requirementID]
	if !ok {
		return store.PlanRecord{}, fmt.Errorf("filestore: plan not found: %s", requirementID)
	}
	return rec, nil
}

// ListPlans implements store.PlanRepository.
func (s *Store) ListPlans(_ context.Context) ([]store.PlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]store.PlanRecord, 0, len(doc.Plans))
	for _, rec := range doc.Plans {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequirementID < out[j].RequirementID })
	return out, nil
}

// UpsertIteration implements store.IterationRepository.
func (s *Store) UpsertIteration(_ context.Context, rec store.IterationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	list := doc.Iterations[rec.RequirementID]
	replaced := false
	for i, existing := range list {
		if existing.IterationID == rec.IterationID {
			list[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, rec)
	}
	doc.Iterations[rec.RequirementID] = list
	return s.save(doc)
}

// ListIterations implements store.IterationRepository.
func (s *Store) ListIterations(_ context.Context, requirementID string) ([]store.IterationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return append([]store.IterationRecord(nil), doc.Iterations[requirementID]...), nil
}

// UpsertTask implements store.TaskRepository.
func (s *Store) UpsertTask(_ context.Context, rec store.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	list := doc.Tasks[rec.RequirementID]
	replaced := false
	for i, existing := range list {
		if existing.TaskID == rec.TaskID {
			list[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, rec)
	}
	doc.Tasks[rec.RequirementID] = list
	return s.save(doc)
}

// ListTasks implements store.TaskRepository.
func (s *Store) ListTasks(_ context.Context, requirementID string) ([]store.TaskRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return append([]store.TaskRecord(nil), doc.Tasks[requirementID]...), nil
}

// RecordAgentSpawn implements store.AgentRepository.
func (s *Store) RecordAgentSpawn(_ context.Context, rec store.AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.AgentRecs = append(doc.AgentRecs, rec)
	return s.save(doc)
}

// RecordTelemetry implements store.TelemetryRepository.
func (s *Store) RecordTelemetry(_ context.Context, rec store.TelemetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Telemetry = append(doc.Telemetry, rec)
	return s.save(doc)
}

// RecordCostEvent implements store.TelemetryRepository.
func (s *Store) RecordCostEvent(_ context.Context, ev store.CostEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.CostEvents = append(doc.CostEvents, ev)
	return s.save(doc)
}

// Query implements store.CostAnalytics by aggregating the in-file
// CostEvents slice in memory. This mirrors the Mongo-backed
// implementation's grouping semantics (internal/store/mongostore) for
// deployments without an external database.
func (s *Store) Query(_ context.Context, q store.AnalyticsQuery) ([]store.AnalyticsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	bucket := q.Bucket
	if bucket == "" {
		bucket = store.BucketDay
	}
	groupBy := make(map[string]bool, len(q.GroupBy))
	for _, g := range q.GroupBy {
		groupBy[g] = true
	}

	type key struct{ requirement, model, provider, bucket string }
	agg := map[key]*store.AnalyticsRow{}

	for _, ev := range doc.CostEvents {
		if !q.From.IsZero() && ev.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && ev.Timestamp.After(q.To) {
			continue
		}
		if q.RequirementID != "" && ev.RequirementID != q.RequirementID {
			continue
		}

		k := key{}
		if groupBy["requirement"] {
			k.requirement = ev.RequirementID
		}
		if groupBy["model"] {
			k.model = ev.Model
		}
		if groupBy["provider"] {
			k.provider = ev.Provider
		}
		if groupBy["bucket"] {
			k.bucket = bucketLabel(ev.Timestamp, bucket)
		}

		row, ok := agg[k]
		if !ok {
			row = &store.AnalyticsRow{
				RequirementID: k.requirement,
				Model:         k.model,
				Provider:      k.provider,
				Bucket:        k.bucket,
			}
			agg[k] = row
		}
		row.TokensInput += ev.TokensInput
		row.TokensOutput += ev.TokensOutput
		row.CostUSD += ev.CostUSD
		row.EventCount++
	}

	out := make([]store.AnalyticsRow, 0, len(agg))
	for _, row := range agg {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].RequirementID < out[j].RequirementID
	})
	return out, nil
}

func bucketLabel(t time.Time, bucket store.TimeBucket) string {
	t = t.UTC()
	switch bucket {
	case store.BucketWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case store.BucketMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}
