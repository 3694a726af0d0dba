package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/executor"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
	"github.com/R3E-Network/assoc-pipeline/internal/secrets"
)

func emptySecretProvider() *secrets.Provider {
	return secrets.New(time.Minute)
}

func TestHostOfExtractsHostname(t *testing.T) {
	assert.Equal(t, "acme.test", hostOf("https://acme.test/path?x=1"))
	assert.Empty(t, hostOf("://not a url"))
}

func TestErrStringHandlesNil(t *testing.T) {
	assert.Empty(t, errString(nil))
	assert.Equal(t, "boom", errString(pipelineerrors.InternalErr("boom", nil)))
}

func TestRecordToMapKeepsRecordFields(t *testing.T) {
	m := recordToMap(pipeline.GraphEdge{ID: "e1", FromID: "a", ToID: "b", Kind: "k"})
	assert.Equal(t, "e1", m["id"])
}

func TestSeedAssociationsEnqueuesHomePages(t *testing.T) {
	o := &Orchestrator{opts: Options{Associations: []string{"acme.test"}}}
	state := pipeline.New("job-1")
	o.seedAssociations(state)

	rec, ok := state.Bucket(pipeline.BucketCrawlQueue).Get("https://acme.test/")
	require.True(t, ok)
	assert.Equal(t, "https://acme.test/", rec.(pipeline.RawRecord).Payload["url"])
}

func TestMergeAppliesDeltasOnSuccess(t *testing.T) {
	o := &Orchestrator{}
	state := pipeline.New("job-1")
	res := executor.SpawnResult{
		Outcome: executor.OutcomeSuccess,
		Result: agents.AgentResult{Deltas: []agents.Delta{{
			Bucket: string(pipeline.BucketCompanies),
			Records: []map[string]interface{}{{
				"id": "c1", "name": "Acme",
				"provenance": []interface{}{map[string]interface{}{"extracted_by": "x", "extracted_at": "now"}},
			}},
		}}},
	}
	require.NoError(t, o.merge(state, "extraction.html_parser", res))
	_, ok := state.Bucket(pipeline.BucketCompanies).Get("c1")
	assert.True(t, ok)
}

func TestMergeRecordsErrorRecordOnSkippedOrDeadLettered(t *testing.T) {
	o := &Orchestrator{}
	state := pipeline.New("job-1")
	require.NoError(t, state.Transition(pipeline.PhaseGatekeeper, "t", "t", "completed"))

	res := executor.SpawnResult{Outcome: executor.OutcomeSkipped, Err: pipelineerrors.ForbiddenErr("nope")}
	require.NoError(t, o.merge(state, "gatekeeper.domain_checker", res))

	assert.Equal(t, 1, state.Bucket(pipeline.BucketErrors).Len())
}

func TestMergePropagatesFatalOutcome(t *testing.T) {
	o := &Orchestrator{}
	state := pipeline.New("job-1")
	res := executor.SpawnResult{Outcome: executor.OutcomeFatal, Err: pipelineerrors.InternalErr("dead", nil)}

	err := o.merge(state, "x", res)
	assert.Error(t, err)
}

func TestItemCheckpointerTicksOnlyAtInterval(t *testing.T) {
	store := pipeline.NewStore(t.TempDir())
	o := New(nil, store, deadletter.NewDisabled(nil, nil), nil, nil, nil, agents.Deps{}, Options{Mode: "full", CheckpointInterval: 2})
	state := pipeline.New("job-ticker")

	ck := o.newItemCheckpointer(state)
	ck.tick(context.Background())
	assert.Equal(t, 0, ck.written)
	ck.tick(context.Background())
	assert.Equal(t, 1, ck.written)
}

func TestSpawnAgentAppliesConfiguredDeadline(t *testing.T) {
	registry := agents.NewRegistry()
	deadlineSeen := make(chan time.Time, 1)
	registry.Register("test.deadline_probe", func(agents.Deps) (agents.Agent, error) {
		return &deadlineProbeAgent{seen: deadlineSeen}, nil
	})
	exec := executor.New(registry, agents.Deps{}, nil, nil, deadletter.NewDisabled(nil, nil), nil, nil, executor.DefaultConfig())
	o := &Orchestrator{exec: exec, opts: Options{AgentTaskTimeout: time.Minute}}

	before := time.Now()
	res := o.spawnAgent(context.Background(), "test.deadline_probe", map[string]interface{}{})
	assert.Equal(t, executor.OutcomeSuccess, res.Outcome)

	select {
	case deadline := <-deadlineSeen:
		assert.True(t, deadline.After(before))
	default:
		t.Fatal("agent never observed a deadline")
	}
}

type deadlineProbeAgent struct{ seen chan time.Time }

func (a *deadlineProbeAgent) Name() string { return "test.deadline_probe" }
func (a *deadlineProbeAgent) InputSchemaID() string { return "" }
func (a *deadlineProbeAgent) OutputSchemaID() string { return "" }
func (a *deadlineProbeAgent) RequiredCapabilities() []agents.Capability { return nil }
func (a *deadlineProbeAgent) CrawlerClass() agents.CrawlerClass { return agents.ClassNone }
func (a *deadlineProbeAgent) Execute(ctx context.Context, task agents.AgentTask) (agents.AgentResult, error) {
	a.seen <- task.Deadline
	return agents.AgentResult{Success: true}, nil
}

type alwaysSuccessAgent struct{ name string }

func (a alwaysSuccessAgent) Name() string { return a.name }
func (a alwaysSuccessAgent) InputSchemaID() string { return "" }
func (a alwaysSuccessAgent) OutputSchemaID() string { return "" }
func (a alwaysSuccessAgent) RequiredCapabilities() []agents.Capability { return nil }
func (a alwaysSuccessAgent) CrawlerClass() agents.CrawlerClass { return agents.ClassNone }
func (a alwaysSuccessAgent) Execute(context.Context, agents.AgentTask) (agents.AgentResult, error) {
	return agents.AgentResult{Success: true}, nil
}

func TestRunAdvancesThroughAllPhasesForFullModeWithNoWork(t *testing.T) {
	store := pipeline.NewStore(t.TempDir())
	registry := agents.NewRegistry()
	// Every working phase iterates a bucket that starts out empty, except
	// Export and Monitor, which invoke their agent unconditionally.
	registry.Register("export.writer", func(agents.Deps) (agents.Agent, error) { return alwaysSuccessAgent{name: "export.writer"}, nil })
	registry.Register("monitor.baseline", func(agents.Deps) (agents.Agent, error) { return alwaysSuccessAgent{name: "monitor.baseline"}, nil })
	exec := executor.New(registry, agents.Deps{}, nil, nil, deadletter.NewDisabled(nil, nil), nil, nil, executor.DefaultConfig())
	o := New(exec, store, deadletter.NewDisabled(nil, nil), emptySecretProvider(), nil, nil, agents.Deps{}, Options{Mode: "full", JobID: "job-full"})

	result := o.Run(context.Background())
	require.NoError(t, result.Err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, pipeline.PhaseDone, result.State.CurrentPhase)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	o := New(nil, pipeline.NewStore(t.TempDir()), deadletter.NewDisabled(nil, nil), emptySecretProvider(), nil, nil, agents.Deps{}, Options{Mode: "bogus"})
	result := o.Run(context.Background())
	assert.Equal(t, 1, result.ExitCode)
	assert.Error(t, result.Err)
}

func TestRunHonorsContextCancellationWithExitCode130(t *testing.T) {
	store := pipeline.NewStore(t.TempDir())
	o := New(nil, store, deadletter.NewDisabled(nil, nil), emptySecretProvider(), nil, nil, agents.Deps{}, Options{Mode: "full", JobID: "job-cancel"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := o.Run(ctx)
	assert.Equal(t, 130, result.ExitCode)
}
