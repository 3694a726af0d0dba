package agents

// RegisterAll binds every concrete agent's constructor into r under its
// hierarchical name, a static-table dispatch style preferred over
// runtime code loading.
func RegisterAll(r *Registry) {
	r.Register("gatekeeper.domain_checker", NewDomainCheckerAgent)
	r.Register("discovery.site_mapper", NewSiteMapperAgent)
	r.Register("classification.page_classifier", NewPageClassifierAgent)
	r.Register("extraction.html_parser", NewHTMLParserAgent)
	r.Register("enrichment.firmographic", NewFirmographicAgent)
	r.Register("enrichment.tech_stack", NewTechStackAgent)
	r.Register("enrichment.contact_finder", NewContactFinderAgent)
	r.Register("validation.dedupe", NewDedupeAgent)
	r.Register("validation.crossref", NewCrossrefAgent)
	r.Register("validation.scorer", NewScorerAgent)
	r.Register("resolution.entity_resolver", NewEntityResolverAgent)
	r.Register("graph.signal_miner", NewSignalMinerAgent)
	r.Register("graph.edge_builder", NewEdgeBuilderAgent)
	r.Register("export.writer", NewWriterAgent)
	r.Register("monitor.baseline", NewBaselineAgent)
}

// EnrichmentOrder is the fixed sub-step order of the Enrichment phase.
var EnrichmentOrder = []string{
	"enrichment.firmographic",
	"enrichment.tech_stack",
	"enrichment.contact_finder",
}

// ValidationOrder is the fixed sub-step order of the Validation phase.
var ValidationOrder = []string{
	"validation.dedupe",
	"validation.crossref",
	"validation.scorer",
}
