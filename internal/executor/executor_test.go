package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/contracts"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/executor"
	"github.com/R3E-Network/assoc-pipeline/internal/policy"
)

type stubAgent struct {
	name string
	outSchema string
	execute func(ctx context.Context, task agents.AgentTask) (agents.AgentResult, error)
	calls int
}

func (s *stubAgent) Name() string { return s.name }
func (s *stubAgent) InputSchemaID() string { return "" }
func (s *stubAgent) OutputSchemaID() string { return s.outSchema }
func (s *stubAgent) RequiredCapabilities() []agents.Capability { return nil }
func (s *stubAgent) CrawlerClass() agents.CrawlerClass { return agents.ClassNone }
func (s *stubAgent) Execute(ctx context.Context, task agents.AgentTask) (agents.AgentResult, error) {
	s.calls++
	return s.execute(ctx, task)
}

func newExecutor(t *testing.T, agent *stubAgent, cfg executor.Config) (*executor.Executor, string) {
	t.Helper()
	registry := agents.NewRegistry()
	registry.Register(agent.name, func(agents.Deps) (agents.Agent, error) { return agent, nil })

	dlqPath := filepath.Join(t.TempDir(), "dead_letter.jsonl")
	dlq, err := deadletter.New(dlqPath, nil, nil)
	require.NoError(t, err)

	return executor.New(registry, agents.Deps{}, policy.NewChain(), nil, dlq, nil, nil, cfg), dlqPath
}

func TestSpawnSucceedsOnFirstAttempt(t *testing.T) {
	agent := &stubAgent{name: "test.ok", execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		return agents.AgentResult{Success: true}, nil
	}}
	exec, _ := newExecutor(t, agent, executor.DefaultConfig())

	res := exec.Spawn(context.Background(), "test.ok", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 1, agent.calls)
}

func TestSpawnUnknownAgentIsFatal(t *testing.T) {
	registry := agents.NewRegistry()
	exec := executor.New(registry, agents.Deps{}, policy.NewChain(), nil, deadletter.NewDisabled(nil, nil), nil, nil, executor.DefaultConfig())

	res := exec.Spawn(context.Background(), "missing.agent", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeFatal, res.Outcome)
	assert.Error(t, res.Err)
}

func TestSpawnRetriesTransientThenSucceeds(t *testing.T) {
	agent := &stubAgent{name: "test.flaky", execute: func(_ context.Context, _ agents.AgentTask) (agents.AgentResult, error) {
		return agents.AgentResult{}, nil
	}}
	var attempt int
	agent.execute = func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		attempt++
		if attempt < 3 {
			return agents.AgentResult{}, pipelineerrors.TransientErr("temporary failure", nil)
		}
		return agents.AgentResult{Success: true}, nil
	}
	cfg := executor.DefaultConfig()
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	exec, _ := newExecutor(t, agent, cfg)

	res := exec.Spawn(context.Background(), "test.flaky", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 3, attempt)
}

func TestSpawnDeadLettersAfterRetryExhaustion(t *testing.T) {
	agent := &stubAgent{name: "test.always_transient", execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		return agents.AgentResult{}, pipelineerrors.TransientErr("down", nil)
	}}
	cfg := executor.DefaultConfig()
	cfg.MaxRetries = 1
	cfg.BaseBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	exec, dlqPath := newExecutor(t, agent, cfg)

	res := exec.Spawn(context.Background(), "test.always_transient", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeDeadLettered, res.Outcome)
	assert.Error(t, res.Err)

	entries, err := deadletter.ReadAll(dlqPath)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "transient", entries[0].ErrorKind)
}

func TestSpawnSkipsNotFoundWithoutDeadLettering(t *testing.T) {
	agent := &stubAgent{name: "test.not_found", execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		return agents.AgentResult{}, pipelineerrors.NotFoundErr("page", "https://example.test/x")
	}}
	exec, _ := newExecutor(t, agent, executor.DefaultConfig())

	res := exec.Spawn(context.Background(), "test.not_found", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeSkipped, res.Outcome)
}

func TestSpawnRespectsPrePolicyGate(t *testing.T) {
	agent := &stubAgent{name: "test.gated", execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		return agents.AgentResult{Success: true}, nil
	}}
	registry := agents.NewRegistry()
	registry.Register(agent.name, func(agents.Deps) (agents.Agent, error) { return agent, nil })
	denyAll := func(context.Context, policy.Context) error { return pipelineerrors.ForbiddenErr("denied") }
	exec := executor.New(registry, agents.Deps{}, policy.NewChain(denyAll), nil, deadletter.NewDisabled(nil, nil), nil, nil, executor.DefaultConfig())

	res := exec.Spawn(context.Background(), "test.gated", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeSkipped, res.Outcome)
	assert.Equal(t, 0, agent.calls)
}

func TestSpawnValidatesOutputSchemaWhenDeclared(t *testing.T) {
	dir := t.TempDir()
	schema := `{"$id":"https://assoc-pipeline.internal/schemas/test.output.json","type":"object","required":["kind"],"properties":{"kind":{"type":"string"}}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.output.schema.json"), []byte(schema), 0o644))
	validator, err := contracts.NewFromDir(dir)
	require.NoError(t, err)

	agent := &stubAgent{
		name: "test.schema_violator",
		outSchema: "https://assoc-pipeline.internal/schemas/test.output.json",
		execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
			return agents.AgentResult{Success: true, Output: map[string]interface{}{"nope": true}}, nil
		},
	}
	registry := agents.NewRegistry()
	registry.Register(agent.name, func(agents.Deps) (agents.Agent, error) { return agent, nil })

	cfg := executor.DefaultConfig()
	cfg.SchemaMode = contracts.Strict
	exec := executor.New(registry, agents.Deps{}, policy.NewChain(), validator, deadletter.NewDisabled(nil, nil), nil, nil, cfg)

	res := exec.Spawn(context.Background(), "test.schema_violator", agents.AgentTask{})
	assert.Equal(t, executor.OutcomeSkipped, res.Outcome)
}

func TestSpawnParallelBoundsConcurrencyAndPreservesOrder(t *testing.T) {
	var active, maxActive int
	agent := &stubAgent{name: "test.parallel", execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		active++
		if active > maxActive {
			maxActive = active
		}
		time.Sleep(2 * time.Millisecond)
		active--
		return agents.AgentResult{Success: true}, nil
	}}
	exec, _ := newExecutor(t, agent, executor.DefaultConfig())

	tasks := make([]agents.AgentTask, 6)
	for i := range tasks {
		tasks[i] = agents.AgentTask{AgentType: "t"}
	}
	results := exec.SpawnParallel(context.Background(), "test.parallel", tasks, 2)

	require.Len(t, results, 6)
	for _, r := range results {
		assert.Equal(t, executor.OutcomeSuccess, r.Outcome)
	}
	assert.LessOrEqual(t, maxActive, 2)
}

func TestSpawnParallelReturnsEmptyForNoTasks(t *testing.T) {
	agent := &stubAgent{name: "test.empty", execute: func(context.Context, agents.AgentTask) (agents.AgentResult, error) {
		return agents.AgentResult{Success: true}, nil
	}}
	exec, _ := newExecutor(t, agent, executor.DefaultConfig())

	results := exec.SpawnParallel(context.Background(), "test.empty", nil, 2)
	assert.Empty(t, results)
}
