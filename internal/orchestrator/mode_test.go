package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

func TestTargetPhaseResolvesKnownModes(t *testing.T) {
	cases := map[string]pipeline.Phase{
		"full": pipeline.PhaseMonitor,
		"extract": pipeline.PhaseExtraction,
		"extract-all": pipeline.PhaseExtraction,
		"enrich": pipeline.PhaseEnrichment,
		"validate": pipeline.PhaseValidation,
		"validate-all": pipeline.PhaseValidation,
	}
	for mode, want := range cases {
		got, err := targetPhase(mode)
		assert.NoError(t, err)
		assert.Equal(t, want, got, "mode %s", mode)
	}
}

func TestTargetPhaseRejectsUnknownMode(t *testing.T) {
	_, err := targetPhase("bogus")
	assert.Error(t, err)
}

func TestForceAllItemsOnlyWhenAllSuffixPresent(t *testing.T) {
	assert.True(t, forceAllItems("extract-all"))
	assert.False(t, forceAllItems("extract"))
	assert.False(t, forceAllItems("full"))
}

func TestIsActivePhaseGatesOnTargetOrder(t *testing.T) {
	active, err := isActivePhase("extract", pipeline.PhaseDiscovery)
	assert.NoError(t, err)
	assert.True(t, active, "discovery precedes the extract target and must run for real")

	active, err = isActivePhase("extract", pipeline.PhaseEnrichment)
	assert.NoError(t, err)
	assert.False(t, active, "enrichment follows the extract target and should complete trivially")

	active, err = isActivePhase("full", pipeline.PhaseMonitor)
	assert.NoError(t, err)
	assert.True(t, active)
}

func TestIsActivePhasePropagatesUnknownModeError(t *testing.T) {
	_, err := isActivePhase("bogus", pipeline.PhaseDiscovery)
	assert.Error(t, err)
}

func TestEnrichmentSelectedDefaultsToAll(t *testing.T) {
	assert.True(t, enrichmentSelected(nil, "firmographic"))
	assert.True(t, enrichmentSelected([]string{"all"}, "techstack"))
	assert.True(t, enrichmentSelected([]string{"contacts"}, "contacts"))
	assert.False(t, enrichmentSelected([]string{"contacts"}, "techstack"))
}

func TestValidationSelectedMirrorsEnrichmentSelected(t *testing.T) {
	assert.True(t, validationSelected(nil, "dedupe"))
	assert.False(t, validationSelected([]string{"score"}, "crossref"))
}

func TestWorkingPhaseIndexOrdersPhasesAndRejectsUnknown(t *testing.T) {
	assert.Equal(t, 0, workingPhaseIndex(pipeline.PhaseGatekeeper))
	assert.Less(t, workingPhaseIndex(pipeline.PhaseDiscovery), workingPhaseIndex(pipeline.PhaseExtraction))
	assert.Equal(t, -1, workingPhaseIndex(pipeline.PhaseInit))
}
