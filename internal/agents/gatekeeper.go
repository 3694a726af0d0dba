package agents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/temoto/robotstxt"
)

// DomainCheckerAgent is gatekeeper.domain_checker: given a domain, fetches
// its robots.txt, and produces an AccessVerdict — allowed/restrictions
// drive whether Discovery may crawl the domain at all, and the crawler
// is expected to honor the parsed group for the pipeline's own user agent.
type DomainCheckerAgent struct {
	deps Deps
	userAgent string
}

// NewDomainCheckerAgent is the AgentConstructor registered under
// "gatekeeper.domain_checker".
func NewDomainCheckerAgent(deps Deps) (Agent, error) {
	return &DomainCheckerAgent{deps: deps, userAgent: "assoc-pipeline"}, nil
}

func (a *DomainCheckerAgent) Name() string { return "gatekeeper.domain_checker" }
func (a *DomainCheckerAgent) InputSchemaID() string { return gatekeeperInputSchemaID }
func (a *DomainCheckerAgent) OutputSchemaID() string { return gatekeeperOutputSchemaID }
func (a *DomainCheckerAgent) RequiredCapabilities() []Capability {
	return []Capability{CapabilityNetwork}
}
func (a *DomainCheckerAgent) CrawlerClass() CrawlerClass { return ClassCrawler }

func (a *DomainCheckerAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	domain, _ := task.Payload["domain"].(string)
	if domain == "" {
		return AgentResult{Success: false, Errors: []string{"missing domain in payload"}}, nil
	}

	url := fmt.Sprintf("https://%s/robots.txt", domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return AgentResult{}, err
	}
	req.Header.Set("User-Agent", a.userAgent)

	now := time.Now().UTC().Format(time.RFC3339)

	resp, err := a.deps.HTTP.Do(ctx, req)
	if err != nil {
		// robots.txt unreachable is treated as "no restrictions declared"
		// rather than a blocking failure — a site with no robots.txt is a
		// normal, crawlable site.
		return AgentResult{
			Success: true,
			Output: map[string]interface{}{
				"domain": domain, "allowed": true, "observed_at": now,
				"recommendations": []string{"robots.txt unreachable: " + err.Error()},
			},
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AgentResult{}, err
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return AgentResult{
			Success: true,
			Output: map[string]interface{}{
				"domain": domain, "allowed": true, "observed_at": now,
				"recommendations": []string{"robots.txt unparsable: " + err.Error()},
			},
		}, nil
	}

	group := data.FindGroup(a.userAgent)
	allowed := group.Test("/")

	var restrictions []string
	for _, rule := range group.Rules {
		if !rule.Allow {
			restrictions = append(restrictions, rule.Path)
		}
	}

	output := map[string]interface{}{
		"domain": domain,
		"allowed": allowed,
		"observed_at": now,
	}
	if len(restrictions) > 0 {
		output["restrictions"] = restrictions
	}

	return AgentResult{
		Success: true,
		Output: output,
		Deltas: []Delta{{
			Bucket: "blocked_urls",
			Records: func() []map[string]interface{} {
				if allowed {
					return nil
				}
				return []map[string]interface{}{{"id": domain, "payload": output}}
			}(),
		}},
	}, nil
}

const (
	gatekeeperInputSchemaID = "https://assoc-pipeline.internal/schemas/gatekeeper.input.json"
	gatekeeperOutputSchemaID = "https://assoc-pipeline.internal/schemas/gatekeeper.output.json"
)
