// Package orchestrator implements the Orchestrator / Phase Engine (C8):
// it drives the eleven-phase state machine, selects agents for each
// phase, merges their deltas into PipelineState, and checkpoints
// progress, following a request-processing loop shape (build a
// deadline-scoped context, dispatch to the target handler, wrap the outcome
// uniformly) generalized here from one RPC dispatch to a long-running
// phase-by-phase run loop, and on lifecycle.GracefulShutdown's
// checkpoint-then-exit pattern for SIGINT handling.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/executor"
	"github.com/R3E-Network/assoc-pipeline/internal/logging"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
	"github.com/R3E-Network/assoc-pipeline/internal/secrets"
	"github.com/R3E-Network/assoc-pipeline/internal/telemetry"
)

// Options configures one Run, mirroring the flags accepted by cmd/orchestrator.
type Options struct {
	JobID string
	Resume bool
	Mode string
	Associations []string
	EnrichmentSelection []string
	ValidationSelection []string
	DryRun bool
	MaxConcurrent int
	CheckpointInterval int
	MaxPages int
	AgentTaskTimeout time.Duration
	MinFreeDiskBytes int64
}

// Orchestrator wires the Agent Executor, checkpoint Store, Dead-Letter
// Sink, and Secret Provider together and drives the phase loop.
type Orchestrator struct {
	exec *executor.Executor
	store *pipeline.Store
	dlq *deadletter.Sink
	secrets *secrets.Provider
	logger *logging.Logger
	metrics *telemetry.Metrics
	deps agents.Deps
	opts Options
}

// New builds an Orchestrator. deps is the same agents.Deps used to build
// the Executor, kept here too so phase handlers can read DataRoot/DryRun
// directly when they need to read or skip raw content.
func New(exec *executor.Executor, store *pipeline.Store, dlq *deadletter.Sink, secretProvider *secrets.Provider,
logger *logging.Logger, metrics *telemetry.Metrics, deps agents.Deps, opts Options) *Orchestrator {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = 50
	}
	if opts.AgentTaskTimeout <= 0 {
		opts.AgentTaskTimeout = 30 * time.Second
	}
	return &Orchestrator{exec: exec, store: store, dlq: dlq, secrets: secretProvider, logger: logger, metrics: metrics, deps: deps, opts: opts}
}

// Result is the outcome of one Run: the final state, the process exit
// code, and the error that produced it, if any.
type Result struct {
	State *pipeline.PipelineState
	ExitCode int
	Err error
}

// Run advances state from Init (or a resumed checkpoint) through Done or
// Failed, checkpointing on every transition and periodically within an
// active phase, and cooperatively honoring ctx cancellation (SIGINT) by
// checkpointing and returning exit code 130 (the "Cancellation").
func (o *Orchestrator) Run(ctx context.Context) Result {
	if _, err := targetPhase(o.opts.Mode); err != nil {
		return Result{ExitCode: 1, Err: err}
	}

	state, err := o.loadOrCreate(ctx)
	if err != nil {
		return Result{ExitCode: 1, Err: err}
	}

	for !state.CurrentPhase.IsTerminal() {
		if err := ctx.Err(); err != nil {
			if werr := o.checkpoint(context.Background(), state, 0); werr != nil && o.logger != nil {
				o.logger.WithFields(map[string]interface{}{"error": werr.Error()}).Error("checkpoint on interrupt failed")
			}
			return Result{State: state, ExitCode: 130, Err: err}
		}

		phase := state.CurrentPhase
		if phase == pipeline.PhaseInit {
			if err := o.runInit(ctx, state); err != nil {
				o.fail(ctx, state, err)
				return Result{State: state, ExitCode: 2, Err: err}
			}
		} else {
			active, _ := isActivePhase(o.opts.Mode, phase)
			var herr error
			if active {
				herr = o.dispatch(ctx, phase, state)
			}
			if herr != nil {
				o.fail(ctx, state, herr)
				return Result{State: state, ExitCode: 2, Err: herr}
			}
		}

		next, err := phase.Next()
		if err != nil {
			o.fail(ctx, state, err)
			return Result{State: state, ExitCode: 2, Err: err}
		}

		now := time.Now().UTC().Format(time.RFC3339)
		if err := state.Transition(next, now, now, "completed"); err != nil {
			o.fail(ctx, state, err)
			return Result{State: state, ExitCode: 2, Err: err}
		}
		if err := o.checkpoint(ctx, state, 0); err != nil {
			return Result{State: state, ExitCode: 2, Err: err}
		}
		if o.logger != nil {
			o.logger.LogPhaseTransition(ctx, string(phase), string(next), state.BucketCounts())
		}
	}

	return Result{State: state, ExitCode: 0}
}

func (o *Orchestrator) loadOrCreate(ctx context.Context) (*pipeline.PipelineState, error) {
	if o.opts.Resume {
		if o.opts.JobID == "" {
			return nil, pipelineerrors.ConfigErr("--resume requires a job id", nil)
		}
		return o.store.LoadCheckpoint(ctx, o.opts.JobID)
	}

	jobID := o.opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	state := pipeline.New(jobID)
	o.seedAssociations(state)
	return state, nil
}

// seedAssociations treats each `-a` association as a bare hostname and
// enqueues its home page, since the configuration file loader that would
// otherwise map an association name to a richer seed-URL list is out of
// scope (the Non-goals).
func (o *Orchestrator) seedAssociations(state *pipeline.PipelineState) {
	for _, assoc := range o.opts.Associations {
		seed := "https://" + assoc + "/"
		_ = state.Upsert(pipeline.BucketCrawlQueue, pipeline.RawRecord{
			ID: seed,
			Payload: map[string]interface{}{"url": seed, "association": assoc},
		})
	}
}

func (o *Orchestrator) runInit(ctx context.Context, state *pipeline.PipelineState) error {
	secretKeys := requiredSecretsForMode(o.opts.EnrichmentSelection)
	summary, err := RunHealthCheck(ctx, state.JobID, o.opts.Associations, secretKeys, o.secrets, o.deps.DataRoot, o.opts.MinFreeDiskBytes)
	if err != nil {
		return err
	}
	if err := o.store.SaveHealthCheck(state.JobID, summary); err != nil {
		return err
	}
	if !summary.FreeDiskOK {
		return pipelineerrors.New(pipelineerrors.Internal, "insufficient free disk space at startup").
			WithDetails("free_disk_bytes", summary.FreeDiskBytes)
	}
	if o.logger != nil {
		for key, present := range summary.SecretsPresent {
			if !present {
				o.logger.WithFields(map[string]interface{}{"secret": key}).Warn("optional secret not present")
			}
		}
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, phase pipeline.Phase, state *pipeline.PipelineState) error {
	switch phase {
	case pipeline.PhaseGatekeeper:
		return o.runGatekeeper(ctx, state)
	case pipeline.PhaseDiscovery:
		return o.runDiscovery(ctx, state)
	case pipeline.PhaseClassification:
		return o.runClassification(ctx, state)
	case pipeline.PhaseExtraction:
		return o.runExtraction(ctx, state)
	case pipeline.PhaseEnrichment:
		return o.runEnrichment(ctx, state)
	case pipeline.PhaseValidation:
		return o.runValidation(ctx, state)
	case pipeline.PhaseResolution:
		return o.runResolution(ctx, state)
	case pipeline.PhaseGraph:
		return o.runGraph(ctx, state)
	case pipeline.PhaseExport:
		return o.runExport(ctx, state)
	case pipeline.PhaseMonitor:
		return o.runMonitor(ctx, state)
	default:
		return nil
	}
}

func (o *Orchestrator) fail(ctx context.Context, state *pipeline.PipelineState, cause error) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := state.Transition(pipeline.PhaseFailed, now, now, "failed: "+cause.Error()); err != nil && o.logger != nil {
		o.logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("failed transitioning to Failed")
	}
	if err := o.checkpoint(ctx, state, 0); err != nil && o.logger != nil {
		o.logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("checkpoint on failure failed")
	}
	if o.logger != nil {
		o.logger.WithFields(map[string]interface{}{"error": cause.Error()}).Error("phase aborted")
	}
}

func (o *Orchestrator) checkpoint(ctx context.Context, state *pipeline.PipelineState, n int) error {
	return o.store.SaveCheckpoint(ctx, state, n)
}

// itemCheckpointer batches intra-phase checkpoint writes to once every
// CheckpointInterval completed items, trading recovery granularity for
// write volume.
type itemCheckpointer struct {
	o *Orchestrator
	state *pipeline.PipelineState
	n int
	written int
}

func (o *Orchestrator) newItemCheckpointer(state *pipeline.PipelineState) *itemCheckpointer {
	return &itemCheckpointer{o: o, state: state}
}

func (c *itemCheckpointer) tick(ctx context.Context) {
	c.n++
	if c.n%c.o.opts.CheckpointInterval != 0 {
		return
	}
	c.written++
	if err := c.o.checkpoint(ctx, c.state, c.written); err != nil && c.o.logger != nil {
		c.o.logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("intra-phase checkpoint failed")
	}
}

// spawnAgent builds an AgentTask with the configured per-task deadline
// and runs it through the Executor.
func (o *Orchestrator) spawnAgent(ctx context.Context, name string, payload map[string]interface{}) executor.SpawnResult {
	task := agents.AgentTask{
		AgentType: name,
		Payload: payload,
		Deadline: time.Now().Add(o.opts.AgentTaskTimeout),
	}
	return o.exec.Spawn(ctx, name, task)
}

// merge applies a single agent result's deltas into state, recording a
// classified ErrorRecord for a failed task instead of propagating it,
// matching the Executor's own skip/DLQ/fatal split: only a Fatal
// outcome aborts the enclosing phase.
func (o *Orchestrator) merge(state *pipeline.PipelineState, agentName string, res executor.SpawnResult) error {
	switch res.Outcome {
	case executor.OutcomeFatal:
		return res.Err
	case executor.OutcomeSkipped, executor.OutcomeDeadLettered:
		_ = state.Upsert(pipeline.BucketErrors, pipeline.ErrorRecord{
			ID: fmt.Sprintf("%s:%d", agentName, time.Now().UnixNano()),
			Kind: string(pipelineerrors.KindOf(res.Err)),
			Agent: agentName,
			Message: errString(res.Err),
			Phase: state.CurrentPhase,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return nil
	default:
		return mergeDeltas(state, res.Result.Deltas)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func recordToMap(r pipeline.Record) map[string]interface{} {
	out, err := toMap(r)
	if err != nil {
		return map[string]interface{}{"id": r.RecordID()}
	}
	return out
}
