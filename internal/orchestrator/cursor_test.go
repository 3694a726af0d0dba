package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCursorHandlesNilRaw(t *testing.T) {
	var cur GatekeeperCursor
	cur.DomainsDone = []string{"stale"}
	require.NoError(t, decodeCursor(nil, &cur))
	assert.Equal(t, []string{"stale"}, cur.DomainsDone, "nil raw must leave out untouched")
}

func TestDecodeCursorRoundTripsTypedStruct(t *testing.T) {
	in := GatekeeperCursor{DomainsDone: []string{"a.test", "b.test"}}
	var out GatekeeperCursor
	require.NoError(t, decodeCursor(in, &out))
	assert.Equal(t, in, out)
}

func TestDecodeCursorHandlesMapShapeFromCheckpointRoundTrip(t *testing.T) {
	// Simulate the shape a cursor arrives in after a JSON checkpoint
	// round-trip: map[string]interface{} rather than the typed struct.
	raw := map[string]interface{}{"domains_done": []interface{}{"c.test"}}
	var out GatekeeperCursor
	require.NoError(t, decodeCursor(raw, &out))
	assert.Equal(t, []string{"c.test"}, out.DomainsDone)
}

func TestDecodeCursorOnEnrichmentCursorMapShape(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"company_steps":{"c1":["firmographic"]}}`), &raw))
	var out EnrichmentCursor
	require.NoError(t, decodeCursor(raw, &out))
	assert.Equal(t, []string{"firmographic"}, out.CompanySteps["c1"])
}

func TestStringSetBuildsMembership(t *testing.T) {
	set := stringSet([]string{"a", "b", "a"})
	assert.True(t, set["a"])
	assert.True(t, set["b"])
	assert.False(t, set["c"])
}

func TestAddToSetIsIdempotent(t *testing.T) {
	items := []string{"a"}
	items = addToSet(items, "b")
	assert.Equal(t, []string{"a", "b"}, items)
	items = addToSet(items, "a")
	assert.Equal(t, []string{"a", "b"}, items, "adding an existing member must not duplicate it")
}
