package agents

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// BaselineAgent is monitor.baseline: snapshots bucket counts for drift
// detection (its one-line Monitor sketch), writing under
// "<data_root>/monitoring/baselines/..." per its data directory layout.
type BaselineAgent struct{ deps Deps }

// NewBaselineAgent is the AgentConstructor registered under
// "monitor.baseline".
func NewBaselineAgent(deps Deps) (Agent, error) { return &BaselineAgent{deps: deps}, nil }

func (a *BaselineAgent) Name() string { return "monitor.baseline" }
func (a *BaselineAgent) InputSchemaID() string { return "" }
func (a *BaselineAgent) OutputSchemaID() string { return monitorBaselineSchemaID }
func (a *BaselineAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *BaselineAgent) CrawlerClass() CrawlerClass { return ClassNone }

func (a *BaselineAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	bucketCounts, _ := task.Payload["bucket_counts"].(map[string]interface{})
	jobID, _ := task.Payload["job_id"].(string)

	takenAt := time.Now().UTC().Format(time.RFC3339)
	baseline := map[string]interface{}{
		"taken_at": takenAt,
		"bucket_counts": bucketCounts,
	}

	if !a.deps.DryRun {
		dir := filepath.Join(a.deps.DataRoot, "monitoring", "baselines")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return AgentResult{}, err
		}
		path := filepath.Join(dir, jobID+".json")
		raw, err := json.MarshalIndent(baseline, "", " ")
		if err != nil {
			return AgentResult{}, err
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return AgentResult{}, err
		}
	}

	return AgentResult{Success: true, Output: baseline}, nil
}

const monitorBaselineSchemaID = "https://assoc-pipeline.internal/schemas/monitor.baseline.json"
