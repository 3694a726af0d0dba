package deadletter_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

func TestNewCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dead_letter.jsonl")
	sink, err := deadletter.New(path, nil, nil)
	require.NoError(t, err)

	sink.Append(deadletter.NewEntry(agents.AgentTask{AgentType: "discovery.site_mapper"}, "transient", "timeout", 1))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout")
}

func TestAppendIsBestEffortWhenDisabled(t *testing.T) {
	sink := deadletter.NewDisabled(nil, nil)
	assert.NotPanics(t, func() {
		sink.Append(deadletter.NewEntry(agents.AgentTask{}, "transient", "x", 1))
	})
}

func TestNewEntryStampsRFC3339Timestamp(t *testing.T) {
	entry := deadletter.NewEntry(agents.AgentTask{AgentType: "extraction.html_parser"}, "schema_violation", "bad shape", 2)
	assert.Equal(t, "schema_violation", entry.ErrorKind)
	assert.Equal(t, 2, entry.Attempts)
	assert.NotEmpty(t, entry.LastSeen)
}

func TestReadAllSkipsMalformedLinesAndMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.jsonl")
	good := deadletter.NewEntry(agents.AgentTask{AgentType: "a"}, "transient", "down", 1)
	raw, err := json.Marshal(good)
	require.NoError(t, err)

	content := string(raw) + "\n" + "{not json\n" + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := deadletter.ReadAll(path)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	missing, err := deadletter.ReadAll(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRequeueableFiltersToTransientOnly(t *testing.T) {
	entries := []deadletter.Entry{
		{ErrorKind: string(pipelineerrors.Transient)},
		{ErrorKind: string(pipelineerrors.CircuitOpen)},
		{ErrorKind: string(pipelineerrors.Forbidden)},
	}
	out := deadletter.Requeueable(entries)
	require.Len(t, out, 1)
	assert.Equal(t, string(pipelineerrors.Transient), out[0].ErrorKind)
}
