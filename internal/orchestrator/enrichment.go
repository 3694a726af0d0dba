package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// enrichmentStepKey maps an enrichment.* agent name to the short key the
// repeatable --enrichment flag selects by.
func enrichmentStepKey(agentName string) string {
	switch agentName {
	case "enrichment.firmographic":
		return "firmographic"
	case "enrichment.tech_stack":
		return "techstack"
	case "enrichment.contact_finder":
		return "contacts"
	default:
		return ""
	}
}

// runEnrichment runs the fixed firmographic -> tech_stack -> contact_finder
// sub-step order against every company not yet fully enriched, honoring
// the --enrichment selection flag.
func (o *Orchestrator) runEnrichment(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor EnrichmentCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseEnrichment), &cursor); err != nil {
		return err
	}
	if cursor.CompanySteps == nil {
		cursor.CompanySteps = map[string][]string{}
	}
	all := forceAllItems(o.opts.Mode)

	ticker := o.newItemCheckpointer(state)
	for _, r := range state.Bucket(pipeline.BucketCompanies).Records() {
		company, ok := r.(pipeline.Company)
		if !ok || company.Domain == "" {
			continue
		}
		stepsDone := stringSet(cursor.CompanySteps[company.ID])

		for _, step := range agents.EnrichmentOrder {
			key := enrichmentStepKey(step)
			if !enrichmentSelected(o.opts.EnrichmentSelection, key) {
				continue
			}
			if !all && stepsDone[step] {
				continue
			}

			res := o.spawnAgent(ctx, step, map[string]interface{}{
				"company_id": company.ID,
				"domain": company.Domain,
			})
			if err := o.merge(state, step, res); err != nil {
				return err
			}

			cursor.CompanySteps[company.ID] = addToSet(cursor.CompanySteps[company.ID], step)
			if err := state.SetCursor(pipeline.PhaseEnrichment, cursor); err != nil {
				return err
			}
			ticker.tick(ctx)
		}
	}
	return nil
}
