package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriterAgent is export.writer: emits one export artifact file under
// "<data_root>/validated/<timestamp>/..." per its data directory
// layout, line-delimited JSON, and registers it as an ExportArtifact
// (the Export sketch).
type WriterAgent struct{ deps Deps }

// NewWriterAgent is the AgentConstructor registered under
// "export.writer".
func NewWriterAgent(deps Deps) (Agent, error) { return &WriterAgent{deps: deps}, nil }

func (a *WriterAgent) Name() string { return "export.writer" }
func (a *WriterAgent) InputSchemaID() string { return "" }
func (a *WriterAgent) OutputSchemaID() string { return exportArtifactSchemaID }
func (a *WriterAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *WriterAgent) CrawlerClass() CrawlerClass { return ClassNone }

func (a *WriterAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	kind, _ := task.Payload["kind"].(string)
	records, _ := task.Payload["records"].([]interface{})
	if kind == "" {
		return AgentResult{Success: false, Errors: []string{"missing kind in payload"}}, nil
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	path := ""
	if !a.deps.DryRun {
		dir := filepath.Join(a.deps.DataRoot, "validated", stamp)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return AgentResult{}, err
		}
		path = filepath.Join(dir, kind+".jsonl")

		f, err := os.Create(path)
		if err != nil {
			return AgentResult{}, err
		}
		defer f.Close()

		for _, r := range records {
			raw, err := json.Marshal(r)
			if err != nil {
				continue
			}
			if _, err := f.Write(append(raw, '\n')); err != nil {
				return AgentResult{}, err
			}
		}
	}

	artifact := map[string]interface{}{
		"id": fmt.Sprintf("export:%s:%s", kind, stamp),
		"kind": kind,
		"path": path,
		"row_count": len(records),
		"provenance": []map[string]interface{}{{
			"source_url": "internal://export",
			"extracted_at": time.Now().UTC().Format(time.RFC3339),
			"extracted_by": a.Name(),
		}},
	}

	return AgentResult{
		Success: true,
		Output: artifact,
		Deltas: []Delta{{Bucket: "exports", Records: []map[string]interface{}{artifact}}},
	}, nil
}

const exportArtifactSchemaID = "https://assoc-pipeline.internal/schemas/export.artifact.json"
