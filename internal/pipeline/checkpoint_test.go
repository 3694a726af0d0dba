package pipeline_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
)

func TestSaveAndLoadCheckpointRoundTrips(t *testing.T) {
	root := t.TempDir()
	store := pipeline.NewStore(root)

	s := pipeline.New("job-42")
	require.NoError(t, s.Upsert(pipeline.BucketCompanies, pipeline.Company{
		ID: "c1", Name: "Acme", Domain: "acme.test",
		Provenance: []pipeline.Provenance{{ExtractedBy: "extraction.html_parser", ExtractedAt: "2026-01-01T00:00:00Z"}},
	}))
	require.NoError(t, s.Transition(pipeline.PhaseGatekeeper, "t0", "t0", "completed"))

	ctx := context.Background()
	require.NoError(t, store.SaveCheckpoint(ctx, s, 0))

	loaded, err := store.LoadCheckpoint(ctx, "job-42")
	require.NoError(t, err)
	assert.Equal(t, "job-42", loaded.JobID)
	assert.Equal(t, pipeline.PhaseGatekeeper, loaded.CurrentPhase)
	assert.Equal(t, 1, loaded.Bucket(pipeline.BucketCompanies).Len())
}

func TestLoadCheckpointRestoresRecordsAsRawRecord(t *testing.T) {
	root := t.TempDir()
	store := pipeline.NewStore(root)

	s := pipeline.New("job-7")
	require.NoError(t, s.Upsert(pipeline.BucketCompanies, pipeline.Company{
		ID: "c1", Name: "Acme",
		Provenance: []pipeline.Provenance{{ExtractedBy: "x", ExtractedAt: "2026-01-01T00:00:00Z"}},
	}))

	ctx := context.Background()
	require.NoError(t, store.SaveCheckpoint(ctx, s, 0))

	loaded, err := store.LoadCheckpoint(ctx, "job-7")
	require.NoError(t, err)

	rec, ok := loaded.Bucket(pipeline.BucketCompanies).Get("c1")
	require.True(t, ok)
	raw, isRaw := rec.(pipeline.RawRecord)
	require.True(t, isRaw, "restored record must be a RawRecord wrapper, not the original concrete type")
	assert.Equal(t, "Acme", raw.Payload["name"])
}

func TestLoadCheckpointMissingJobIsNotFound(t *testing.T) {
	store := pipeline.NewStore(t.TempDir())
	_, err := store.LoadCheckpoint(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestSaveCheckpointWritesIntraPhaseSnapshot(t *testing.T) {
	root := t.TempDir()
	store := pipeline.NewStore(root)
	s := pipeline.New("job-9")

	require.NoError(t, store.SaveCheckpoint(context.Background(), s, 3))

	entries, err := listDir(t, root+"/job-9")
	require.NoError(t, err)
	assert.Contains(t, entries, "state.json")
	assert.Contains(t, entries, "checkpoint_Init_3.json")
}

func listDir(t *testing.T, dir string) ([]string, error) {
	t.Helper()
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}
