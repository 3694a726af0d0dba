package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runMonitor snapshots bucket counts via monitor.baseline (its one-line
// Monitor sketch). There is no cursor entry for Monitor in the: it runs
// exactly once, unconditionally, every time the phase is active.
func (o *Orchestrator) runMonitor(ctx context.Context, state *pipeline.PipelineState) error {
	counts := make(map[string]interface{}, len(pipeline.AllBuckets))
	for k, v := range state.BucketCounts() {
		counts[k] = v
	}

	res := o.spawnAgent(ctx, "monitor.baseline", map[string]interface{}{
		"job_id": state.JobID,
		"bucket_counts": counts,
	})
	return o.merge(state, "monitor.baseline", res)
}
