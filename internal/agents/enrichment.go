package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// enrichmentProvider is the minimal shape shared by the three enrichment
// sub-agents: call a third-party API keyed by a secret, parse a small
// JSON response, stamp provenance. Per spec the these provider payload
// shapes are explicitly out of scope as a family, so each agent's HTTP
// call targets a fixed placeholder endpoint set in its constructor,
// rather than a named vendor's real API contract.
type enrichmentProvider struct {
	deps Deps
	name string
	secretName string
	endpoint string
}

func (p *enrichmentProvider) fetch(ctx context.Context, companyDomain string) (map[string]interface{}, error) {
	apiKey, err := p.deps.Secrets.Get(ctx, p.secretName)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, fmt.Errorf("enrichment provider %s: missing required secret %s", p.name, p.secretName)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?domain="+companyDomain, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.deps.HTTP.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func provenanceEntry(name, sourceURL string) map[string]interface{} {
	return map[string]interface{}{
		"source_url": sourceURL,
		"extracted_at": time.Now().UTC().Format(time.RFC3339),
		"extracted_by": name,
	}
}

// FirmographicAgent is enrichment.firmographic: the first sub-step of
// the fixed Enrichment order (its cursor table, its "firmographic
// → tech_stack → contact_finder").
type FirmographicAgent struct{ p enrichmentProvider }

// NewFirmographicAgent is the AgentConstructor registered under
// "enrichment.firmographic".
func NewFirmographicAgent(deps Deps) (Agent, error) {
	return &FirmographicAgent{p: enrichmentProvider{
		deps: deps, name: "enrichment.firmographic",
		secretName: "FIRMOGRAPHIC_API_KEY", endpoint: "https://firmographic.enrichment.internal/v1/lookup",
	}}, nil
}

func (a *FirmographicAgent) Name() string { return a.p.name }
func (a *FirmographicAgent) InputSchemaID() string { return "" }
func (a *FirmographicAgent) OutputSchemaID() string { return enrichmentFirmographicSchemaID }
func (a *FirmographicAgent) RequiredCapabilities() []Capability {
	return []Capability{CapabilityNetwork, SecretCapability("FIRMOGRAPHIC_API_KEY")}
}
func (a *FirmographicAgent) CrawlerClass() CrawlerClass { return ClassEnricher }

func (a *FirmographicAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	companyID, _ := task.Payload["company_id"].(string)
	domain, _ := task.Payload["domain"].(string)
	if companyID == "" || domain == "" {
		return AgentResult{Success: false, Errors: []string{"missing company_id or domain in payload"}}, nil
	}

	data, err := a.p.fetch(ctx, domain)
	if err != nil {
		return AgentResult{}, err
	}

	output := map[string]interface{}{
		"company_id": companyID,
		"provenance": []map[string]interface{}{provenanceEntry(a.Name(), a.p.endpoint)},
	}
	if v, ok := data["employee_count"]; ok {
		output["employee_count"] = v
	}
	if v, ok := data["revenue_band"]; ok {
		output["revenue_band"] = v
	}
	if v, ok := data["industry"]; ok {
		output["industry"] = v
	}

	return AgentResult{
		Success: true,
		Output: output,
		Deltas: []Delta{{
			Bucket: "companies",
			Records: []map[string]interface{}{{"id": companyID, "firmographic": output}},
		}},
	}, nil
}

// TechStackAgent is enrichment.tech_stack: the second sub-step.
type TechStackAgent struct{ p enrichmentProvider }

// NewTechStackAgent is the AgentConstructor registered under
// "enrichment.tech_stack".
func NewTechStackAgent(deps Deps) (Agent, error) {
	return &TechStackAgent{p: enrichmentProvider{
		deps: deps, name: "enrichment.tech_stack",
		secretName: "TECH_STACK_API_KEY", endpoint: "https://techstack.enrichment.internal/v1/lookup",
	}}, nil
}

func (a *TechStackAgent) Name() string { return a.p.name }
func (a *TechStackAgent) InputSchemaID() string { return "" }
func (a *TechStackAgent) OutputSchemaID() string { return enrichmentTechStackSchemaID }
func (a *TechStackAgent) RequiredCapabilities() []Capability {
	return []Capability{CapabilityNetwork, SecretCapability("TECH_STACK_API_KEY")}
}
func (a *TechStackAgent) CrawlerClass() CrawlerClass { return ClassEnricher }

func (a *TechStackAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	companyID, _ := task.Payload["company_id"].(string)
	domain, _ := task.Payload["domain"].(string)
	if companyID == "" || domain == "" {
		return AgentResult{Success: false, Errors: []string{"missing company_id or domain in payload"}}, nil
	}

	data, err := a.p.fetch(ctx, domain)
	if err != nil {
		return AgentResult{}, err
	}

	var technologies []string
	if raw, ok := data["technologies"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				technologies = append(technologies, s)
			}
		}
	}

	output := map[string]interface{}{
		"company_id": companyID,
		"technologies": technologies,
		"provenance": []map[string]interface{}{provenanceEntry(a.Name(), a.p.endpoint)},
	}

	return AgentResult{
		Success: true,
		Output: output,
		Deltas: []Delta{{
			Bucket: "companies",
			Records: []map[string]interface{}{{"id": companyID, "tech_stack": technologies}},
		}},
	}, nil
}

// ContactFinderAgent is enrichment.contact_finder: the third sub-step.
type ContactFinderAgent struct{ p enrichmentProvider }

// NewContactFinderAgent is the AgentConstructor registered under
// "enrichment.contact_finder".
func NewContactFinderAgent(deps Deps) (Agent, error) {
	return &ContactFinderAgent{p: enrichmentProvider{
		deps: deps, name: "enrichment.contact_finder",
		secretName: "CONTACT_FINDER_API_KEY", endpoint: "https://contacts.enrichment.internal/v1/lookup",
	}}, nil
}

func (a *ContactFinderAgent) Name() string { return a.p.name }
func (a *ContactFinderAgent) InputSchemaID() string { return "" }
func (a *ContactFinderAgent) OutputSchemaID() string { return enrichmentContactFinderSchemaID }
func (a *ContactFinderAgent) RequiredCapabilities() []Capability {
	return []Capability{CapabilityNetwork, SecretCapability("CONTACT_FINDER_API_KEY")}
}
func (a *ContactFinderAgent) CrawlerClass() CrawlerClass { return ClassEnricher }

func (a *ContactFinderAgent) Execute(ctx context.Context, task AgentTask) (AgentResult, error) {
	companyID, _ := task.Payload["company_id"].(string)
	domain, _ := task.Payload["domain"].(string)
	if companyID == "" || domain == "" {
		return AgentResult{Success: false, Errors: []string{"missing company_id or domain in payload"}}, nil
	}

	data, err := a.p.fetch(ctx, domain)
	if err != nil {
		return AgentResult{}, err
	}

	var contacts []map[string]interface{}
	if raw, ok := data["contacts"].([]interface{}); ok {
		for _, c := range raw {
			if m, ok := c.(map[string]interface{}); ok {
				contacts = append(contacts, m)
			}
		}
	}

	provenance := []map[string]interface{}{provenanceEntry(a.Name(), a.p.endpoint)}
	output := map[string]interface{}{
		"company_id": companyID,
		"contacts": contacts,
		"provenance": provenance,
	}

	participantRecords := make([]map[string]interface{}, 0, len(contacts))
	for i, c := range contacts {
		name, _ := c["name"].(string)
		participantRecords = append(participantRecords, map[string]interface{}{
			"id": fmt.Sprintf("%s:contact:%d", companyID, i),
			"name": name,
			"company_id": companyID,
			"provenance": provenance,
		})
	}

	return AgentResult{
		Success: true,
		Output: output,
		Deltas: []Delta{
			{Bucket: "companies", Records: []map[string]interface{}{{"id": companyID, "contacts": contacts}}},
			{Bucket: "participants", Records: participantRecords},
		},
	}, nil
}

const (
	enrichmentFirmographicSchemaID = "https://assoc-pipeline.internal/schemas/enrichment.firmographic.output.json"
	enrichmentTechStackSchemaID = "https://assoc-pipeline.internal/schemas/enrichment.tech_stack.output.json"
	enrichmentContactFinderSchemaID = "https://assoc-pipeline.internal/schemas/enrichment.contact_finder.output.json"
)
