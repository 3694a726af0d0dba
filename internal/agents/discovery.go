package agents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// SiteMapperAgent is discovery.site_mapper: fetches one URL, records it
// as a PageSnapshot, and proposes new same-origin links for the crawl
// queue (the Discovery sketch).
type SiteMapperAgent struct {
	deps Deps
}

// NewSiteMapperAgent is the AgentConstructor registered under
// "discovery.site_mapper".
func NewSiteMapperAgent(deps Deps) (Agent, error) {
	return &SiteMapperAgent{deps: deps}, nil
}

func (a *SiteMapperAgent) Name() string { return "discovery.site_mapper" }
func (a *SiteMapperAgent) InputSchemaID() string { return "" }
func (a *SiteMapperAgent) OutputSchemaID() string { return discoveryPageSchemaID }
func (a *SiteMapperAgent) RequiredCapabilities() []Capability {
	return []Capability{CapabilityNetwork}
}
func (a *SiteMapperAgent) CrawlerClass() CrawlerClass { return ClassCrawler }

func (a *SiteMapperAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	target, _ := task.Payload["url"].(string)
	if target == "" {
		return AgentResult{Success: false, Errors: []string{"missing url in payload"}}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return AgentResult{}, err
	}

	resp, err := a.deps.HTTP.Do(ctx, req)
	if err != nil {
		return AgentResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return AgentResult{}, err
	}

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	fetchedAt := time.Now().UTC().Format(time.RFC3339)

	links := extractLinks(target, body)

	association, _ := task.Payload["association"].(string)
	if association == "" {
		association = "_unassociated"
	}
	contentLocation := a.storeContent(association, digest, body)

	snapshot := map[string]interface{}{
		"url": target,
		"fetched_at": fetchedAt,
		"content_hash": digest,
		"content_location": contentLocation,
		"status_code": resp.StatusCode,
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		snapshot["requires_auth"] = true
	}

	queueRecords := make([]map[string]interface{}, 0, len(links))
	for _, link := range links {
		queueRecords = append(queueRecords, map[string]interface{}{
			"id": link,
			"payload": map[string]interface{}{"url": link},
		})
	}

	return AgentResult{
		Success: true,
		Output: snapshot,
		Deltas: []Delta{
			{Bucket: "pages", Records: []map[string]interface{}{snapshot}},
			{Bucket: "visited_urls", Records: []map[string]interface{}{{"id": target}}},
			{Bucket: "crawl_queue", Records: queueRecords},
		},
	}, nil
}

// storeContent persists the fetched page body under
// "<data_root>/raw/<association>/<content_hash>.html" (the data directory
// layout) so Extraction can later read it back without a second network
// round-trip. In dry-run mode (the "--dry-run: no persisted mutations")
// this is a no-op and the snapshot carries an empty content_location.
func (a *SiteMapperAgent) storeContent(association, digest string, body []byte) string {
	if a.deps.DryRun {
		return ""
	}
	dir := filepath.Join(a.deps.DataRoot, "raw", association)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	path := filepath.Join(dir, digest+".html")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return ""
	}
	return path
}

// extractLinks walks the parsed HTML tree for same-origin anchor hrefs.
func extractLinks(base string, body []byte) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				resolved, err := baseURL.Parse(attr.Val)
				if err != nil {
					continue
				}
				if resolved.Hostname() != baseURL.Hostname() {
					continue
				}
				resolved.Fragment = ""
				link := resolved.String()
				if !seen[link] {
					seen[link] = true
					out = append(out, link)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

const discoveryPageSchemaID = "https://assoc-pipeline.internal/schemas/discovery.page.json"
