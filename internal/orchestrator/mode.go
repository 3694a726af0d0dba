package orchestrator

import (
	"strings"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

// workingPhases is the ordered list of phases a mode's target can name,
// excluding the bootstrap (Init) and terminal (Done/Failed) phases.
var workingPhases = []pipeline.Phase{
	pipeline.PhaseGatekeeper,
	pipeline.PhaseDiscovery,
	pipeline.PhaseClassification,
	pipeline.PhaseExtraction,
	pipeline.PhaseEnrichment,
	pipeline.PhaseValidation,
	pipeline.PhaseResolution,
	pipeline.PhaseGraph,
	pipeline.PhaseExport,
	pipeline.PhaseMonitor,
}

func workingPhaseIndex(p pipeline.Phase) int {
	for i, q := range workingPhases {
		if q == p {
			return i
		}
	}
	return -1
}

// targetPhase returns the last phase a mode actually does work in: every
// phase at or before it runs its normal handler, every phase after it
// completes trivially (the state machine still visits it — the "no
// skipping" — but its handler is a no-op). `full` runs the entire
// pipeline through Monitor.
func targetPhase(mode string) (pipeline.Phase, error) {
	switch strings.TrimSuffix(mode, "-all") {
	case "full":
		return pipeline.PhaseMonitor, nil
	case "extract":
		return pipeline.PhaseExtraction, nil
	case "enrich":
		return pipeline.PhaseEnrichment, nil
	case "validate":
		return pipeline.PhaseValidation, nil
	default:
		return "", pipelineerrors.ConfigErr("unknown mode "+mode, nil)
	}
}

// forceAllItems reports whether mode's "-all" suffix is present, meaning
// every active phase up to and including the target ignores its resume
// cursor and reprocesses every item rather than only the incomplete ones.
func forceAllItems(mode string) bool {
	return strings.HasSuffix(mode, "-all")
}

// isActivePhase reports whether phase should run its real handler under
// mode, versus completing trivially.
func isActivePhase(mode string, phase pipeline.Phase) (bool, error) {
	target, err := targetPhase(mode)
	if err != nil {
		return false, err
	}
	pi := workingPhaseIndex(phase)
	ti := workingPhaseIndex(target)
	if pi < 0 || ti < 0 {
		return false, nil
	}
	return pi <= ti, nil
}

// enrichmentSelected reports whether sub-step key (one of "firmographic",
// "techstack", "contacts") is selected by the repeatable --enrichment
// flag, where an empty selection or the literal "all" means every
// sub-step runs.
func enrichmentSelected(selection []string, key string) bool {
	if len(selection) == 0 {
		return true
	}
	for _, s := range selection {
		if s == "all" || s == key {
			return true
		}
	}
	return false
}

// validationSelected mirrors enrichmentSelected for --validation's
// {dedupe|crossref|score|all} values.
func validationSelected(selection []string, key string) bool {
	return enrichmentSelected(selection, key)
}
