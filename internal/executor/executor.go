// Package executor implements the Agent Executor (C6): runs one or many
// agent invocations with a timeout, the full validator/policy wrapper
// stack, retry-with-backoff, and dead-letter routing on retry
// exhaustion. Each invocation builds a deadline-scoped context, runs
// the target agent, and wraps the outcome in a uniform result; bounded
// concurrency uses a buffered chan struct{} semaphore rather than a
// golang.org/x/sync dependency, since nothing else in the stack needs it.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/contracts"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/logging"
	"github.com/R3E-Network/assoc-pipeline/internal/policy"
	"github.com/R3E-Network/assoc-pipeline/internal/telemetry"
)

// Config tunes the Executor's retry/backoff schedule, mirroring the HTTP
// Core's own defaults (the gives no separate numbers, so the agent-task
// retry envelope reuses the client's shape).
type Config struct {
	MaxRetries int
	BaseBackoff time.Duration
	MaxBackoff time.Duration
	SchemaMode contracts.Mode
}

// DefaultConfig returns the baseline Config: 3 retries, a 500ms base
// backoff capped at 30s, and Soft schema enforcement.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseBackoff: 500 * time.Millisecond, MaxBackoff: 30 * time.Second, SchemaMode: contracts.Soft}
}

// Executor runs agent invocations on behalf of the Orchestrator.
type Executor struct {
	registry *agents.Registry
	deps agents.Deps
	chain *policy.Chain
	validator *contracts.Validator
	dlq *deadletter.Sink
	logger *logging.Logger
	metrics *telemetry.Metrics
	cfg Config
}

// New builds an Executor wired to registry for agent lookup, deps for
// agent construction, chain for policy enforcement, validator for
// schema gating, dlq for terminal-failure routing, and logger/metrics
// for observability.
func New(registry *agents.Registry, deps agents.Deps, chain *policy.Chain, validator *contracts.Validator,
dlq *deadletter.Sink, logger *logging.Logger, metrics *telemetry.Metrics, cfg Config) *Executor {
	return &Executor{
		registry: registry, deps: deps, chain: chain, validator: validator,
		dlq: dlq, logger: logger, metrics: metrics, cfg: cfg,
	}
}

// Outcome classifies how one Spawn call ended, driving the phase
// handler's decision of whether to count the unit as done, skipped, or
// cause the phase to abort.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeSkipped
	OutcomeDeadLettered
	OutcomeFatal
)

// SpawnResult is the full outcome of one Spawn call.
type SpawnResult struct {
	Result agents.AgentResult
	Outcome Outcome
	Err error
}

// Spawn runs one agent invocation to completion, applying input
// validation, the policy pre-gate, the agent itself (under task.Deadline
// with retry-with-backoff on Retryable errors), the policy post-gate,
// and output validation — the full wrapper stack. A terminal error
// after retries is appended to the DLQ.
func (e *Executor) Spawn(ctx context.Context, agentName string, task agents.AgentTask) SpawnResult {
	agent, found, err := e.registry.Build(agentName, e.deps)
	if err != nil {
		return e.fail(agentName, task, pipelineerrors.InternalErr("agent construction failed", err), 0)
	}
	if !found {
		return e.fail(agentName, task, pipelineerrors.NotFoundErr("agent", agentName), 0)
	}

	if agent.InputSchemaID() != "" {
		diags, verr := e.validator.ValidateOrError(agent.InputSchemaID(), task.Payload, e.cfg.SchemaMode)
		if verr != nil {
			return e.skip(agentName, task, verr)
		}
		if len(diags) > 0 && e.logger != nil {
			e.logger.WithFields(map[string]interface{}{"agent": agentName, "schema_id": agent.InputSchemaID(), "diagnostics": diags}).
				Warn("schema validation failed (soft mode, continuing)")
		}
	}

	if e.chain != nil {
		if perr := e.chain.Run(ctx, policy.Context{Agent: agent, Task: task, Stage: policy.StagePre}); perr != nil {
			e.bumpViolation("pre", agentName)
			return e.skip(agentName, task, perr)
		}
	}

	attempts := 0
	var result agents.AgentResult
	var runErr error

	op := func() error {
		attempts++
		runCtx := ctx
		var cancel context.CancelFunc
		if !task.Deadline.IsZero() {
			runCtx, cancel = context.WithDeadline(ctx, task.Deadline)
			defer cancel()
		}
		start := time.Now()
		result, runErr = agent.Execute(runCtx, task)
		result.DurationMs = time.Since(start).Milliseconds()
		if e.deps.HotPath != nil {
			e.deps.HotPath.AgentSpawn(agentName, task.AgentType, attempts, time.Duration(result.DurationMs)*time.Millisecond, runErr)
		}
		if runErr == nil && runCtx.Err() != nil {
			runErr = pipelineerrors.TransientErr("agent task deadline exceeded", runCtx.Err())
		}
		if runErr == nil {
			return nil
		}
		if !pipelineerrors.IsRetryable(runErr) {
			return backoff.Permanent(runErr)
		}
		return runErr
	}

	bo := e.retryPolicy(ctx, task.Deadline)
	if retryErr := backoff.Retry(op, bo); retryErr != nil {
		runErr = unwrapPermanent(retryErr)
	}

	if runErr != nil {
		return e.classifyFailure(agentName, task, runErr, attempts)
	}

	if e.chain != nil {
		if perr := e.chain.Run(ctx, policy.Context{Agent: agent, Task: task, Result: &result, Stage: policy.StagePost}); perr != nil {
			e.bumpViolation("post", agentName)
			return e.skip(agentName, task, perr)
		}
	}

	if agent.OutputSchemaID() != "" && result.Output != nil {
		diags, verr := e.validator.ValidateOrError(agent.OutputSchemaID(), result.Output, e.cfg.SchemaMode)
		if verr != nil {
			return e.skip(agentName, task, verr)
		}
		if len(diags) > 0 && e.logger != nil {
			e.logger.WithFields(map[string]interface{}{"agent": agentName, "schema_id": agent.OutputSchemaID(), "diagnostics": diags}).
				Warn("schema validation failed (soft mode, continuing)")
		}
	}

	e.bumpInvocation(agentName, "success", result.DurationMs)
	return SpawnResult{Result: result, Outcome: OutcomeSuccess}
}

// SpawnParallel runs tasks through agentName, bounded by a buffered
// chan struct{} semaphore of size maxConcurrent. Results are returned in
// input order; one task's failure never cancels its peers.
func (e *Executor) SpawnParallel(ctx context.Context, agentName string, tasks []agents.AgentTask, maxConcurrent int) []SpawnResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	results := make([]SpawnResult, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for i, task := range tasks {
		i, task := i, task
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.Spawn(ctx, agentName, task)
		}()
	}
	wg.Wait()
	return results
}

func (e *Executor) retryPolicy(ctx context.Context, deadline time.Time) backoff.BackOffContext {
	maxRetries := e.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.BaseBackoff
	bo.MaxInterval = e.cfg.MaxBackoff
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 1.0
	bo.MaxElapsedTime = 0
	withMax := backoff.WithMaxRetries(bo, uint64(maxRetries))
	return backoff.WithContext(withMax, ctx)
}

func (e *Executor) classifyFailure(agentName string, task agents.AgentTask, err error, attempts int) SpawnResult {
	kind := pipelineerrors.KindOf(err)
	switch kind {
	case pipelineerrors.Transient:
		return e.deadLetter(agentName, task, err, attempts)
	case pipelineerrors.NotFound, pipelineerrors.Forbidden, pipelineerrors.ParseError, pipelineerrors.SchemaViolation, pipelineerrors.CircuitOpen:
		return e.skip(agentName, task, err)
	default:
		return e.fail(agentName, task, err, attempts)
	}
}

func (e *Executor) deadLetter(agentName string, task agents.AgentTask, err error, attempts int) SpawnResult {
	if e.logger != nil {
		e.logger.LogUnitError(context.Background(), string(pipelineerrors.KindOf(err)), agentName, fmt.Sprint(task.AgentType), err)
	}
	if e.dlq != nil {
		e.dlq.Append(deadletter.NewEntry(task, string(pipelineerrors.KindOf(err)), err.Error(), attempts))
	}
	e.bumpInvocation(agentName, "dead_lettered", 0)
	return SpawnResult{Outcome: OutcomeDeadLettered, Err: err}
}

func (e *Executor) skip(agentName string, task agents.AgentTask, err error) SpawnResult {
	if e.logger != nil {
		e.logger.LogUnitError(context.Background(), string(pipelineerrors.KindOf(err)), agentName, fmt.Sprint(task.AgentType), err)
	}
	e.bumpInvocation(agentName, "skipped", 0)
	return SpawnResult{Outcome: OutcomeSkipped, Err: err}
}

func (e *Executor) fail(agentName string, task agents.AgentTask, err error, attempts int) SpawnResult {
	if e.logger != nil {
		e.logger.LogUnitError(context.Background(), string(pipelineerrors.KindOf(err)), agentName, fmt.Sprint(task.AgentType), err)
	}
	e.bumpInvocation(agentName, "fatal", 0)
	return SpawnResult{Outcome: OutcomeFatal, Err: err}
}

func (e *Executor) bumpInvocation(agentName, outcome string, durationMs int64) {
	if e.metrics == nil {
		return
	}
	e.metrics.AgentInvocationsTotal.WithLabelValues(agentName, outcome).Inc()
	if durationMs > 0 {
		e.metrics.AgentDuration.WithLabelValues(agentName).Observe(float64(durationMs) / 1000.0)
	}
}

func (e *Executor) bumpViolation(predicate, agentName string) {
	if e.metrics != nil {
		e.metrics.PolicyViolationsTotal.WithLabelValues(predicate, agentName).Inc()
	}
}

func unwrapPermanent(err error) error {
	type permanent interface{ Unwrap() error }
	if p, ok := err.(permanent); ok {
		if u := p.Unwrap(); u != nil {
			return u
		}
	}
	return err
}
