package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runResolution groups companies by the dedupe_group_key Validation
// patched onto them, resolves each group to one CanonicalEntity via
// resolution.entity_resolver, and rewrites participant->company links to
// the canonical entity id (the Resolution sketch). The cursor is a single
// boolean: Resolution runs once per job, not incrementally per group.
func (o *Orchestrator) runResolution(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor ResolutionCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseResolution), &cursor); err != nil {
		return err
	}
	if cursor.Done && !forceAllItems(o.opts.Mode) {
		return nil
	}

	groups := map[string][]pipeline.Company{}
	for _, c := range companyRecords(state) {
		key := c.DedupeGroupKey
		if key == "" {
			key = c.ID
		}
		groups[key] = append(groups[key], c)
	}

	memberToEntity := map[string]string{}
	for groupKey, members := range groups {
		name := members[0].Name
		memberIDs := make([]interface{}, 0, len(members))
		for _, m := range members {
			memberIDs = append(memberIDs, m.ID)
		}

		res := o.spawnAgent(ctx, "resolution.entity_resolver", map[string]interface{}{
			"group_key": groupKey,
			"member_ids": memberIDs,
			"name": name,
		})
		if err := o.merge(state, "resolution.entity_resolver", res); err != nil {
			return err
		}
		entityID := "entity:" + groupKey
		for _, m := range members {
			memberToEntity[m.ID] = entityID
		}
	}

	if err := o.rewriteParticipantLinks(state, memberToEntity); err != nil {
		return err
	}

	cursor.Done = true
	return state.SetCursor(pipeline.PhaseResolution, cursor)
}

// rewriteParticipantLinks patches every participant's company_id to its
// canonical entity id, so downstream Graph/Export consumers don't need to
// re-resolve membership themselves.
func (o *Orchestrator) rewriteParticipantLinks(state *pipeline.PipelineState, memberToEntity map[string]string) error {
	var records []map[string]interface{}
	for _, r := range state.Bucket(pipeline.BucketParticipants).Records() {
		p, ok := r.(pipeline.Participant)
		if !ok || p.CompanyID == "" {
			continue
		}
		canonical, ok := memberToEntity[p.CompanyID]
		if !ok || canonical == p.CompanyID {
			continue
		}
		records = append(records, map[string]interface{}{"id": p.ID, "company_id": canonical})
	}
	if len(records) == 0 {
		return nil
	}
	return mergeDeltas(state, []agents.Delta{{Bucket: string(pipeline.BucketParticipants), Records: records}})
}
