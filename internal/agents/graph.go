package agents

import (
	"context"
	"fmt"
	"time"
)

// SignalMinerAgent is graph.signal_miner: inspects a canonical entity's
// tech stack / firmographic overlap against peers and emits
// CompetitorSignal records (the Graph sketch, first half).
type SignalMinerAgent struct{ deps Deps }

// NewSignalMinerAgent is the AgentConstructor registered under
// "graph.signal_miner".
func NewSignalMinerAgent(deps Deps) (Agent, error) { return &SignalMinerAgent{deps: deps}, nil }

func (a *SignalMinerAgent) Name() string { return "graph.signal_miner" }
func (a *SignalMinerAgent) InputSchemaID() string { return "" }
func (a *SignalMinerAgent) OutputSchemaID() string { return graphCompetitorSignalSchemaID }
func (a *SignalMinerAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *SignalMinerAgent) CrawlerClass() CrawlerClass { return ClassNone }

func (a *SignalMinerAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	entityID, _ := task.Payload["entity_id"].(string)
	sharedTech, _ := task.Payload["shared_technology_count"].(float64)
	if entityID == "" {
		return AgentResult{Success: false, Errors: []string{"missing entity_id in payload"}}, nil
	}
	if sharedTech <= 0 {
		return AgentResult{Success: true, Output: map[string]interface{}{"entity_id": entityID, "signals_found": 0}}, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	signal := map[string]interface{}{
		"id": fmt.Sprintf("signal:%s:tech_overlap", entityID),
		"company_id": entityID,
		"signal_type": "tech_overlap",
		"strength": sharedTech,
		"provenance": []map[string]interface{}{{
			"source_url": "internal://graph",
			"extracted_at": now,
			"extracted_by": a.Name(),
		}},
	}

	return AgentResult{
		Success: true,
		Output: signal,
		Deltas: []Delta{{Bucket: "competitor_signals", Records: []map[string]interface{}{signal}}},
	}, nil
}

// EdgeBuilderAgent is graph.edge_builder: the second half of the Graph
// phase, materializing a GraphEdge between two canonical entities from a
// mined signal.
type EdgeBuilderAgent struct{ deps Deps }

// NewEdgeBuilderAgent is the AgentConstructor registered under
// "graph.edge_builder".
func NewEdgeBuilderAgent(deps Deps) (Agent, error) { return &EdgeBuilderAgent{deps: deps}, nil }

func (a *EdgeBuilderAgent) Name() string { return "graph.edge_builder" }
func (a *EdgeBuilderAgent) InputSchemaID() string { return "" }
func (a *EdgeBuilderAgent) OutputSchemaID() string { return graphEdgeSchemaID }
func (a *EdgeBuilderAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *EdgeBuilderAgent) CrawlerClass() CrawlerClass { return ClassNone }

func (a *EdgeBuilderAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	sourceID, _ := task.Payload["source_id"].(string)
	targetID, _ := task.Payload["target_id"].(string)
	edgeType, _ := task.Payload["edge_type"].(string)
	if sourceID == "" || targetID == "" {
		return AgentResult{Success: false, Errors: []string{"missing source_id or target_id in payload"}}, nil
	}
	if edgeType == "" {
		edgeType = "competitor"
	}

	now := time.Now().UTC().Format(time.RFC3339)
	edge := map[string]interface{}{
		"id": fmt.Sprintf("edge:%s:%s", sourceID, targetID),
		"from_id": sourceID,
		"to_id": targetID,
		"kind": edgeType,
		"provenance": []map[string]interface{}{{
			"source_url": "internal://graph",
			"extracted_at": now,
			"extracted_by": a.Name(),
		}},
	}

	return AgentResult{
		Success: true,
		Output: edge,
		Deltas: []Delta{{Bucket: "graph_edges", Records: []map[string]interface{}{edge}}},
	}, nil
}

const (
	graphCompetitorSignalSchemaID = "https://assoc-pipeline.internal/schemas/graph.competitor_signal.json"
	graphEdgeSchemaID = "https://assoc-pipeline.internal/schemas/graph.edge.json"
)
