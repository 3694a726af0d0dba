package orchestrator

import (
	"context"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// runDiscovery drains crawl_queue, fetching each not-yet-visited,
// not-blocked URL through discovery.site_mapper until the queue is empty
// or Options.MaxPages pages have been fetched (the Discovery sketch). The
// bound counts pages across all hosts together; it is not applied per
// domain. The queue is re-read on every iteration because site_mapper
// enqueues freshly discovered links as it runs.
func (o *Orchestrator) runDiscovery(ctx context.Context, state *pipeline.PipelineState) error {
	var cursor DiscoveryCursor
	if err := decodeCursor(state.Cursor(pipeline.PhaseDiscovery), &cursor); err != nil {
		return err
	}
	fetched := stringSet(cursor.URLsFetched)
	all := forceAllItems(o.opts.Mode)

	maxPages := o.opts.MaxPages
	ticker := o.newItemCheckpointer(state)

	for {
		if maxPages > 0 && cursor.PagesFetched >= maxPages {
			break
		}

		next := o.nextQueuedURL(state, fetched, all)
		if next == "" {
			break
		}

		res := o.spawnAgent(ctx, "discovery.site_mapper", map[string]interface{}{
			"url": next,
			"association": hostOf(next),
			// nextQueuedURL never returns a URL whose host is in blocked_urls.
			"robots_allowed": true,
		})
		if err := o.merge(state, "discovery.site_mapper", res); err != nil {
			return err
		}

		fetched[next] = true
		cursor.URLsFetched = addToSet(cursor.URLsFetched, next)
		cursor.PagesFetched++
		if err := state.SetCursor(pipeline.PhaseDiscovery, cursor); err != nil {
			return err
		}
		ticker.tick(ctx)
	}
	return nil
}

// nextQueuedURL returns the next crawl_queue URL that hasn't been fetched
// (unless all forces reprocessing) and whose host isn't in blocked_urls,
// or "" once none remain.
func (o *Orchestrator) nextQueuedURL(state *pipeline.PipelineState, fetched map[string]bool, all bool) string {
	blocked := blockedDomains(state)
	for _, r := range state.Bucket(pipeline.BucketCrawlQueue).Records() {
		raw, ok := r.(pipeline.RawRecord)
		if !ok {
			continue
		}
		url, _ := raw.Payload["url"].(string)
		if url == "" {
			continue
		}
		if !all && fetched[url] {
			continue
		}
		if blocked[hostOf(url)] {
			continue
		}
		return url
	}
	return ""
}

func blockedDomains(state *pipeline.PipelineState) map[string]bool {
	out := map[string]bool{}
	for _, r := range state.Bucket(pipeline.BucketBlockedURLs).Records() {
		out[r.RecordID()] = true
	}
	return out
}
