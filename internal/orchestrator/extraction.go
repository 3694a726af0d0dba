package orchestrator

import (
	"context"
	"os"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runExtraction runs extraction.html_parser over every page Classification
// recommended it for and that hasn't been extracted yet, reading the raw
// snapshot Discovery stored under ContentLocation back off disk (the
// Extraction sketch). A page with no stored content (dry-run discovery, or
// a read failure) is still handed to the agent with an empty content
// string rather than skipped, so the phase still visits every page.
func (o *Orchestrator) runExtraction(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor ExtractionCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseExtraction), &cursor); err != nil {
		return err
	}
	done := stringSet(cursor.PagesDone)
	all := forceAllItems(o.opts.Mode)

	ticker := o.newItemCheckpointer(state)
	for _, r := range state.Bucket(pipeline.BucketPages).Records() {
		page, ok := r.(pipeline.PageSnapshot)
		if !ok || page.RecommendedExtractor != "extraction.html_parser" {
			continue
		}
		if !all && done[page.URL] {
			continue
		}

		var content string
		if page.ContentLocation != "" {
			if data, err := os.ReadFile(page.ContentLocation); err == nil {
				content = string(data)
			}
		}

		res := o.spawnAgent(ctx, "extraction.html_parser", map[string]interface{}{
			"page": map[string]interface{}{"url": page.URL},
			"content": content,
			"requires_auth": page.RequiresAuth,
		})
		if err := o.merge(state, "extraction.html_parser", res); err != nil {
			return err
		}

		cursor.PagesDone = addToSet(cursor.PagesDone, page.URL)
		if err := state.SetCursor(pipeline.PhaseExtraction, cursor); err != nil {
			return err
		}
		ticker.tick(ctx)
	}
	return nil
}
