package planner

import "encoding/json"

// wireManifest mirrors validator.ValidateStructure's JSON Schema (plan
// manifest wire shape, spec §6 / §3): the same Plan assignIDs produces,
// reshaped into the document a model would actually emit on the wire.
// completed is always false here — it is a runtime/executor concept that
// does not exist yet at plan-build time.
type wireManifest struct {
	ProjectName string          `json:"project_name,omitempty"`
	Iterations  []wireIteration `json:"iterations"`
}

type wireIteration struct {
	ID     string     `json:"id"`
	Number int        `json:"number"`
	Name   string     `json:"name"`
	Tasks  []wireTask `json:"tasks"`
}

type wireTask struct {
	ID                 string   `json:"id"`
	Number             int      `json:"number"`
	Title              string   `json:"title"`
	AgentID            string   `json:"agent_id,omitempty"`
	Dependencies       []string `json:"dependencies"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
	Completed          bool     `json:"completed"`
}

// toWireManifest marshals plan into the JSON document ValidateStructure
// checks. Dependencies and AcceptanceCriteria are normalized to non-nil
// slices since json.Marshal renders a nil slice as `null`, which a
// `"type": "array"` schema rejects.
func toWireManifest(plan Plan) ([]byte, error) {
	manifest := wireManifest{ProjectName: plan.ProjectTitle}
	for _, iter := range plan.Iterations {
		wi := wireIteration{ID: iter.ID, Number: iter.Number, Name: iter.Name, Tasks: []wireTask{}}
		for _, t := range iter.Tasks {
			deps := t.Dependencies
			if deps == nil {
				deps = []string{}
			}
			criteria := t.AcceptanceCriteria
			if criteria == nil {
				criteria = []string{}
			}
			wi.Tasks = append(wi.Tasks, wireTask{
				ID:                 t.ID,
				Number:             t.Number,
				Title:              t.Title,
				AgentID:            t.AgentID,
				Dependencies:       deps,
				AcceptanceCriteria: criteria,
				Completed:          false,
			})
		}
		manifest.Iterations = append(manifest.Iterations, wi)
	}
	return json.Marshal(manifest)
}
