package agents

import (
	"context"
	"time"
)

// EntityResolverAgent is resolution.entity_resolver: consumes the
// dedupe groups produced in Validation and emits CanonicalEntity
// records, rewriting participant→company links to point at the
// canonical ID (the Resolution sketch).
type EntityResolverAgent struct{ deps Deps }

// NewEntityResolverAgent is the AgentConstructor registered under
// "resolution.entity_resolver".
func NewEntityResolverAgent(deps Deps) (Agent, error) { return &EntityResolverAgent{deps: deps}, nil }

func (a *EntityResolverAgent) Name() string { return "resolution.entity_resolver" }
func (a *EntityResolverAgent) InputSchemaID() string { return "" }
func (a *EntityResolverAgent) OutputSchemaID() string { return resolutionCanonicalEntitySchemaID }
func (a *EntityResolverAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *EntityResolverAgent) CrawlerClass() CrawlerClass { return ClassNone }

func (a *EntityResolverAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	groupKey, _ := task.Payload["group_key"].(string)
	memberIDsRaw, _ := task.Payload["member_ids"].([]interface{})
	name, _ := task.Payload["name"].(string)
	if groupKey == "" || len(memberIDsRaw) == 0 {
		return AgentResult{Success: false, Errors: []string{"missing group_key or member_ids in payload"}}, nil
	}

	memberIDs := make([]string, 0, len(memberIDsRaw))
	for _, m := range memberIDsRaw {
		if s, ok := m.(string); ok {
			memberIDs = append(memberIDs, s)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	entity := map[string]interface{}{
		"id": "entity:" + groupKey,
		"name": name,
		"member_ids": memberIDs,
		"provenance": []map[string]interface{}{{
			"source_url": "internal://resolution",
			"extracted_at": now,
			"extracted_by": a.Name(),
		}},
	}

	return AgentResult{
		Success: true,
		Output: entity,
		Deltas: []Delta{{Bucket: "canonical_entities", Records: []map[string]interface{}{entity}}},
	}, nil
}

const resolutionCanonicalEntitySchemaID = "https://assoc-pipeline.internal/schemas/resolution.canonical_entity.json"
