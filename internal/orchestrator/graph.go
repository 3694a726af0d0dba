package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runGraph mines competitor signals for every canonical entity sharing
// tech-stack overlap with a peer, then builds graph edges between
// entities that share a signal (the Graph sketch, first and second
// halves). Edge-building runs once per job, after every entity has had a
// chance to be mined, mirroring the two-stage "mine then connect" shape
// of the sketch.
func (o *Orchestrator) runGraph(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor GraphCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseGraph), &cursor); err != nil {
		return err
	}
	mined := stringSet(cursor.CompaniesMined)
	all := forceAllItems(o.opts.Mode)

	entities := entityRecords(state)
	techByEntity := techStackByEntity(state)

	ticker := o.newItemCheckpointer(state)
	for _, entity := range entities {
		if !all && mined[entity.ID] {
			continue
		}

		shared := maxSharedTechnology(entity.ID, techByEntity)
		res := o.spawnAgent(ctx, "graph.signal_miner", map[string]interface{}{
			"entity_id": entity.ID,
			"shared_technology_count": float64(shared),
		})
		if err := o.merge(state, "graph.signal_miner", res); err != nil {
			return err
		}

		cursor.CompaniesMined = addToSet(cursor.CompaniesMined, entity.ID)
		if err := state.SetCursor(pipeline.PhaseGraph, cursor); err != nil {
			return err
		}
		ticker.tick(ctx)
	}

	if cursor.GraphBuilt && !all {
		return nil
	}

	signaled := entitiesWithSignals(state)
	for i := 0; i < len(signaled); i++ {
		for j := i + 1; j < len(signaled); j++ {
			res := o.spawnAgent(ctx, "graph.edge_builder", map[string]interface{}{
				"source_id": signaled[i],
				"target_id": signaled[j],
				"edge_type": "competitor",
			})
			if err := o.merge(state, "graph.edge_builder", res); err != nil {
				return err
			}
		}
	}

	cursor.GraphBuilt = true
	return state.SetCursor(pipeline.PhaseGraph, cursor)
}

func entityRecords(state *pipeline.PipelineState) []pipeline.CanonicalEntity {
	var out []pipeline.CanonicalEntity
	for _, r := range state.Bucket(pipeline.BucketCanonicalEntities).Records() {
		if e, ok := r.(pipeline.CanonicalEntity); ok {
			out = append(out, e)
		}
	}
	return out
}

// techStackByEntity maps a canonical entity id to the union of its member
// companies' tech stacks.
func techStackByEntity(state *pipeline.PipelineState) map[string][]string {
	companiesByID := map[string]pipeline.Company{}
	for _, c := range companyRecords(state) {
		companiesByID[c.ID] = c
	}

	out := map[string][]string{}
	for _, e := range entityRecords(state) {
		var techs []string
		for _, memberID := range e.MemberIDs {
			if c, ok := companiesByID[memberID]; ok {
				techs = append(techs, c.TechStack...)
			}
		}
		out[e.ID] = techs
	}
	return out
}

// maxSharedTechnology returns the largest tech-stack overlap between
// entityID and any other entity, counted as the technologies the two
// stacks have in common: a cheap heuristic standing in for a full
// pairwise similarity model.
func maxSharedTechnology(entityID string, techByEntity map[string][]string) int {
	mine := stringSet(techByEntity[entityID])
	best := 0
	for other, techs := range techByEntity {
		if other == entityID {
			continue
		}
		count := 0
		for _, t := range techs {
			if mine[t] {
				count++
			}
		}
		if count > best {
			best = count
		}
	}
	return best
}

func entitiesWithSignals(state *pipeline.PipelineState) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range state.Bucket(pipeline.BucketCompetitorSignals).Records() {
		s, ok := r.(pipeline.CompetitorSignal)
		if !ok || seen[s.CompanyID] {
			continue
		}
		seen[s.CompanyID] = true
		out = append(out, s.CompanyID)
	}
	return out
}
