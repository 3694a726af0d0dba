package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runClassification annotates every page not yet classified with a
// page_type/recommended_extractor via classification.page_classifier
//.
func (o *Orchestrator) runClassification(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor ClassificationCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseClassification), &cursor); err != nil {
		return err
	}
	done := stringSet(cursor.PagesDone)
	all := forceAllItems(o.opts.Mode)

	ticker := o.newItemCheckpointer(state)
	for _, r := range state.Bucket(pipeline.BucketPages).Records() {
		page, ok := r.(pipeline.PageSnapshot)
		if !ok {
			continue
		}
		if !all && (done[page.URL] || page.PageType != "") {
			continue
		}

		res := o.spawnAgent(ctx, "classification.page_classifier", map[string]interface{}{"url": page.URL})
		if err := o.merge(state, "classification.page_classifier", res); err != nil {
			return err
		}

		cursor.PagesDone = addToSet(cursor.PagesDone, page.URL)
		if err := state.SetCursor(pipeline.PhaseClassification, cursor); err != nil {
			return err
		}
		ticker.tick(ctx)
	}
	return nil
}
