package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// exportKinds are the buckets the Export phase mirrors to disk (the data
// directory layout "validated/"): the resolved companies, their canonical
// identities, and the graph built over them.
var exportKinds = []pipeline.BucketName{
	pipeline.BucketCompanies,
	pipeline.BucketCanonicalEntities,
	pipeline.BucketGraphEdges,
}

// runExport writes one export.writer artifact per not-yet-exported kind
// (the Export sketch).
func (o *Orchestrator) runExport(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor ExportCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseExport), &cursor); err != nil {
		return err
	}
	done := stringSet(cursor.KindsDone)
	all := forceAllItems(o.opts.Mode)

	for _, kind := range exportKinds {
		if !all && done[string(kind)] {
			continue
		}

		records := make([]interface{}, 0)
		for _, r := range state.Bucket(kind).Records() {
			records = append(records, recordToMap(r))
		}

		res := o.spawnAgent(ctx, "export.writer", map[string]interface{}{
			"kind": string(kind),
			"records": records,
		})
		if err := o.merge(state, "export.writer", res); err != nil {
			return err
		}

		cursor.KindsDone = addToSet(cursor.KindsDone, string(kind))
		if err := state.SetCursor(pipeline.PhaseExport, cursor); err != nil {
			return err
		}
	}
	return nil
}
