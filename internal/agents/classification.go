package agents

import (
	"context"
	"strings"
)

// PageClassifierAgent is classification.page_classifier: a lightweight
// heuristic classifier over the page URL's shape, annotating page_type
// and a recommended extractor (the Classification sketch). No network
// capability is required; the Orchestrator passes only the page URL in
// the task payload, and no page content is read.
type PageClassifierAgent struct {
	deps Deps
}

// NewPageClassifierAgent is the AgentConstructor registered under
// "classification.page_classifier".
func NewPageClassifierAgent(deps Deps) (Agent, error) {
	return &PageClassifierAgent{deps: deps}, nil
}

func (a *PageClassifierAgent) Name() string { return "classification.page_classifier" }
func (a *PageClassifierAgent) InputSchemaID() string { return "" }
func (a *PageClassifierAgent) OutputSchemaID() string { return classificationOutputSchemaID }
func (a *PageClassifierAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *PageClassifierAgent) CrawlerClass() CrawlerClass { return ClassNone }

var classificationHints = []struct {
	pageType string
	extractor string
	markers []string
}{
	{"leadership", "extraction.html_parser", []string{"leadership", "our-team", "executives", "management-team"}},
	{"about", "extraction.html_parser", []string{"about", "company", "who-we-are"}},
	{"careers", "extraction.html_parser", []string{"careers", "jobs"}},
	{"news", "extraction.html_parser", []string{"news", "press", "blog"}},
	{"directory", "extraction.html_parser", []string{"directory", "members"}},
}

func (a *PageClassifierAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	url, _ := task.Payload["url"].(string)
	if url == "" {
		return AgentResult{Success: false, Errors: []string{"missing url in payload"}}, nil
	}
	lower := strings.ToLower(url)

	pageType := "other"
	extractor := ""
	confidence := 0.4
	for _, hint := range classificationHints {
		for _, marker := range hint.markers {
			if strings.Contains(lower, marker) {
				pageType = hint.pageType
				extractor = hint.extractor
				confidence = 0.85
				break
			}
		}
		if pageType != "other" {
			break
		}
	}
	if pageType == "other" && isHomePage(url) {
		pageType = "home"
		extractor = "extraction.html_parser"
		confidence = 0.6
	}

	output := map[string]interface{}{
		"url": url,
		"page_type": pageType,
		"confidence": confidence,
	}
	if extractor != "" {
		output["recommended_extractor"] = extractor
	}

	return AgentResult{
		Success: true,
		Output: output,
		Deltas: []Delta{{
			Bucket: "pages",
			Records: []map[string]interface{}{{
				"id": url,
				"page_type": pageType,
				"recommended_extractor": extractor,
			}},
		}},
	}, nil
}

func isHomePage(rawURL string) bool {
	trimmed := strings.TrimSuffix(rawURL, "/")
	parts := strings.SplitN(trimmed, "://", 2)
	if len(parts) != 2 {
		return false
	}
	return !strings.Contains(parts[1], "/")
}

const classificationOutputSchemaID = "https://assoc-pipeline.internal/schemas/classification.page.output.json"
