package orchestrator

import "encoding/json"

// GatekeeperCursor tracks domains already adjudicated.
type GatekeeperCursor struct {
	DomainsDone []string `json:"domains_done"`
}

// DiscoveryCursor tracks URLs already fetched and the running page count
// used to enforce the phase's max-pages bound.
type DiscoveryCursor struct {
	URLsFetched []string `json:"urls_fetched"`
	PagesFetched int `json:"pages_fetched"`
}

// ClassificationCursor tracks page identifiers already classified.
type ClassificationCursor struct {
	PagesDone []string `json:"pages_done"`
}

// ExtractionCursor tracks page identifiers already extracted.
type ExtractionCursor struct {
	PagesDone []string `json:"pages_done"`
}

// EnrichmentCursor maps a company id to the set of enrichment sub-steps
// already completed for it.
type EnrichmentCursor struct {
	CompanySteps map[string][]string `json:"company_steps"`
}

// ValidationCursor tracks completed validation sub-steps.
type ValidationCursor struct {
	StepsDone []string `json:"steps_done"`
}

// ResolutionCursor is the boolean "done" flag of the resolution phase.
type ResolutionCursor struct {
	Done bool `json:"done"`
}

// GraphCursor tracks company ids already mined for signals and whether
// edge-building has completed.
type GraphCursor struct {
	CompaniesMined []string `json:"companies_mined"`
	GraphBuilt bool `json:"graph_built"`
}

// ExportCursor tracks completed export kinds.
type ExportCursor struct {
	KindsDone []string `json:"kinds_done"`
}

// decodeCursor normalizes a phase cursor read back from PipelineState: a
// freshly set cursor is the typed struct itself, but one survived from a
// checkpoint round-trip arrives as map[string]interface{} (the invariant 3,
// "phase_progress[p] is read only when current_phase == p"). Round-
// tripping through JSON handles both shapes uniformly and leaves out
// unchanged to its zero value when raw is nil.
func decodeCursor(raw interface{}, out interface{}) error {
	if raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func stringSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[s] = true
	}
	return out
}

func addToSet(items []string, value string) []string {
	for _, s := range items {
		if s == value {
			return items
		}
	}
	return append(items, value)
}
