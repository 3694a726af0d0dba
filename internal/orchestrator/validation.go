package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/executor"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runValidation runs the fixed dedupe -> crossref -> scorer sub-step order
//, honoring the --validation selection flag. Since
// validation.dedupe returns grouping decisions as Output rather than a
// Delta, this handler itself patches each grouped company's
// dedupe_group_key/canonical_id so Resolution can read group membership
// directly off the companies bucket.
func (o *Orchestrator) runValidation(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor ValidationCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseValidation), &cursor); err != nil {
		return err
	}
	done := stringSet(cursor.StepsDone)
	all := forceAllItems(o.opts.Mode)

	companies := companyRecords(state)
	if len(companies) == 0 {
		return nil
	}

	if validationSelected(o.opts.ValidationSelection, "dedupe") && (all || !done["validation.dedupe"]) {
		if err := o.runDedupe(ctx, state, companies); err != nil {
			return err
		}
		cursor.StepsDone = addToSet(cursor.StepsDone, "validation.dedupe")
		if err := state.SetCursor(pipeline.PhaseValidation, cursor); err != nil {
			return err
		}
	}

	if validationSelected(o.opts.ValidationSelection, "crossref") && (all || !done["validation.crossref"]) {
		if err := o.runCrossref(ctx, state, companies); err != nil {
			return err
		}
		cursor.StepsDone = addToSet(cursor.StepsDone, "validation.crossref")
		if err := state.SetCursor(pipeline.PhaseValidation, cursor); err != nil {
			return err
		}
	}

	if validationSelected(o.opts.ValidationSelection, "score") && (all || !done["validation.scorer"]) {
		if err := o.runScorer(ctx, state, companies); err != nil {
			return err
		}
		cursor.StepsDone = addToSet(cursor.StepsDone, "validation.scorer")
		if err := state.SetCursor(pipeline.PhaseValidation, cursor); err != nil {
			return err
		}
	}

	return nil
}

func companyRecords(state *pipeline.PipelineState) []pipeline.Company {
	var out []pipeline.Company
	for _, r := range state.Bucket(pipeline.BucketCompanies).Records() {
		if c, ok := r.(pipeline.Company); ok {
			out = append(out, c)
		}
	}
	return out
}

func (o *Orchestrator) runDedupe(ctx context.Context, state *pipeline.PipelineState, companies []pipeline.Company) error {
	payload := make([]interface{}, 0, len(companies))
	for _, c := range companies {
		payload = append(payload, map[string]interface{}{"id": c.ID, "name": c.Name})
	}

	res := o.spawnAgent(ctx, "validation.dedupe", map[string]interface{}{"companies": payload})
	if res.Outcome != executor.OutcomeSuccess {
		return o.merge(state, "validation.dedupe", res)
	}

	// validation.dedupe builds []map groups with []string member ids; a
	// JSON-decoded result carries []interface{} instead. Both are accepted.
	groups, _ := res.Result.Output["groups"].([]interface{})
	if typed, ok := res.Result.Output["groups"].([]map[string]interface{}); ok {
		for _, m := range typed {
			groups = append(groups, m)
		}
	}
	var records []map[string]interface{}
	for _, g := range groups {
		group, ok := g.(map[string]interface{})
		if !ok {
			continue
		}
		groupKey, _ := group["group_key"].(string)
		canonicalID, _ := group["canonical_id"].(string)
		memberIDs, _ := group["member_ids"].([]interface{})
		if ids, ok := group["member_ids"].([]string); ok {
			for _, id := range ids {
				memberIDs = append(memberIDs, id)
			}
		}
		for _, m := range memberIDs {
			id, _ := m.(string)
			if id == "" {
				continue
			}
			records = append(records, map[string]interface{}{
				"id": id,
				"dedupe_group_key": groupKey,
				"canonical_id": canonicalID,
			})
		}
	}
	return mergeDeltas(state, []agents.Delta{{Bucket: string(pipeline.BucketCompanies), Records: records}})
}

func (o *Orchestrator) runCrossref(ctx context.Context, state *pipeline.PipelineState, companies []pipeline.Company) error {
	for _, c := range companies {
		values := make([]interface{}, 0, 1)
		if c.Name != "" {
			values = append(values, c.Name)
		}
		res := o.spawnAgent(ctx, "validation.crossref", map[string]interface{}{
			"company_id": c.ID,
			"field": "name",
			"values": values,
		})
		if err := o.merge(state, "validation.crossref", res); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runScorer(ctx context.Context, state *pipeline.PipelineState, companies []pipeline.Company) error {
	for _, c := range companies {
		res := o.spawnAgent(ctx, "validation.scorer", map[string]interface{}{
			"company_id": c.ID,
			"provenance_count": float64(len(c.Provenance)),
			"field_agreement_ratio": 1.0,
		})
		if err := o.merge(state, "validation.scorer", res); err != nil {
			return err
		}
	}
	return nil
}
