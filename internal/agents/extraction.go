package agents

import (
	"context"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// HTMLParserAgent is extraction.html_parser: the one in-repo extraction
// agent this implementation carries concretely — per spec its Non-goal
// list, "individual site/HTML parsers and their selector configurations"
// are out of scope as a family, but the core still needs one reference
// extractor to exercise the Extraction phase end to end, so this is a
// generic <title> scraper rather than a per-association selector config.
type HTMLParserAgent struct {
	deps Deps
}

// NewHTMLParserAgent is the AgentConstructor registered under
// "extraction.html_parser".
func NewHTMLParserAgent(deps Deps) (Agent, error) {
	return &HTMLParserAgent{deps: deps}, nil
}

func (a *HTMLParserAgent) Name() string { return "extraction.html_parser" }
func (a *HTMLParserAgent) InputSchemaID() string { return extractionHTMLInputSchemaID }
func (a *HTMLParserAgent) OutputSchemaID() string { return extractionCompanySchemaID }
func (a *HTMLParserAgent) RequiredCapabilities() []Capability {
	return nil
}
func (a *HTMLParserAgent) CrawlerClass() CrawlerClass { return ClassNone }

func (a *HTMLParserAgent) Execute(_ context.Context, task AgentTask) (AgentResult, error) {
	page, ok := task.Payload["page"].(map[string]interface{})
	if !ok {
		return AgentResult{Success: false, Errors: []string{"missing page in payload"}}, nil
	}
	pageURL, _ := page["url"].(string)
	content, _ := task.Payload["content"].(string)
	if pageURL == "" {
		return AgentResult{Success: false, Errors: []string{"page missing url"}}, nil
	}

	name := siteNameFromContent(content)
	if name == "" {
		name = hostFromURL(pageURL)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	provenance := []map[string]interface{}{{
		"source_url": pageURL,
		"extracted_at": now,
		"extracted_by": a.Name(),
	}}

	company := map[string]interface{}{
		"id": "company:" + hostFromURL(pageURL),
		"name": name,
		"domain": hostFromURL(pageURL),
		"provenance": provenance,
	}

	return AgentResult{
		Success: true,
		Output: company,
		Deltas: []Delta{{Bucket: "companies", Records: []map[string]interface{}{company}}},
	}, nil
}

// siteNameFromContent extracts the first <title> element's text with
// surrounding whitespace trimmed. The title is returned whole; separator
// suffixes such as " | Site Name" are not stripped.
func siteNameFromContent(content string) string {
	if content == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

func hostFromURL(rawURL string) string {
	parts := strings.SplitN(rawURL, "://", 2)
	if len(parts) != 2 {
		return rawURL
	}
	return strings.SplitN(parts[1], "/", 2)[0]
}

const (
	extractionHTMLInputSchemaID = "https://assoc-pipeline.internal/schemas/extraction.html_parser.input.json"
	extractionCompanySchemaID = "https://assoc-pipeline.internal/schemas/extraction.company.json"
)
