package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runGatekeeper adjudicates every domain named by a crawl_queue entry that
// hasn't already been checked, spawning one gatekeeper.domain_checker call
// per domain.
func (o *Orchestrator) runGatekeeper(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor GatekeeperCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseGatekeeper), &cursor); err != nil {
		return err
	}
	done := stringSet(cursor.DomainsDone)
	all := forceAllItems(o.opts.Mode)

	domains := map[string]bool{}
	for _, r := range state.Bucket(pipeline.BucketCrawlQueue).Records() {
		raw, ok := r.(pipeline.RawRecord)
		if !ok {
			continue
		}
		url, _ := raw.Payload["url"].(string)
		if host := hostOf(url); host != "" {
			domains[host] = true
		}
	}

	ticker := o.newItemCheckpointer(state)
	for domain := range domains {
		if !all && done[domain] {
			continue
		}

		res := o.spawnAgent(ctx, "gatekeeper.domain_checker", map[string]interface{}{"domain": domain})
		if err := o.merge(state, "gatekeeper.domain_checker", res); err != nil {
			return err
		}

		cursor.DomainsDone = addToSet(cursor.DomainsDone, domain)
		if err := state.SetCursor(pipeline.PhaseGatekeeper, cursor); err != nil {
			return err
		}
		ticker.tick(ctx)
	}
	return nil
}
