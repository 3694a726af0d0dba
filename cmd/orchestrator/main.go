// Command orchestrator is the CLI entry point for the association
// data-acquisition pipeline: it wires the Rate-Limited HTTP Core,
// Contract Validator, Policy Middleware, Secret Provider, Agent Registry,
// Executor, Dead-Letter Sink, and Metrics/Logging layer together, then
// drives the Orchestrator through one run, using a
// "flag.NewFlagSet + run(ctx, args) error" entry-point style adapted
// here to a single-process batch job.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/config"
	"github.com/R3E-Network/assoc-pipeline/internal/contracts"
	"github.com/R3E-Network/assoc-pipeline/internal/deadletter"
	"github.com/R3E-Network/assoc-pipeline/internal/executor"
	"github.com/R3E-Network/assoc-pipeline/internal/httpcore"
	"github.com/R3E-Network/assoc-pipeline/internal/logging"
	"github.com/R3E-Network/assoc-pipeline/internal/orchestrator"
	"github.com/R3E-Network/assoc-pipeline/internal/pipeline"
	"github.com/R3E-Network/assoc-pipeline/internal/policy"
	"github.com/R3E-Network/assoc-pipeline/internal/secrets"
	"github.com/R3E-Network/assoc-pipeline/internal/telemetry"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

// repeatedFlag accumulates a repeatable `-a`/`--enrichment`/`--validation`
// flag into a slice, the stdlib idiom for flag.Value-backed multi-value
// flags.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }
func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("orchestrator", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	mode := fs.String("mode", "full", "full|extract|extract-all|enrich|enrich-all|validate|validate-all")
	var associations repeatedFlag
	fs.Var(&associations, "a", "association source group (repeatable)")
	var enrichmentSel repeatedFlag
	fs.Var(&enrichmentSel, "enrichment", "firmographic|techstack|contacts|all (repeatable)")
	var validationSel repeatedFlag
	fs.Var(&validationSel, "validation", "dedupe|crossref|score|all (repeatable)")
	dryRun := fs.Bool("dry-run", false, "no persisted mutations outside the state directory")
	jobID := fs.String("job-id", "", "explicit job id; generated if empty")
	resumeID := fs.String("resume", "", "load existing state for this job id and continue")
	persistDB := fs.Bool("persist-db", false, "mirror exports to the external store in addition to the state file")
	logLevel := fs.String("log-level", "", "DEBUG|INFO|WARN|ERROR (overrides ASSOC_PIPELINE_LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		printUsage()
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	resume := *resumeID != ""
	if resume {
		*jobID = *resumeID
	}

	logger := logging.New("orchestrator", cfg.LogLevel, cfg.LogFormat)
	metrics := telemetry.New()
	hotpath, err := telemetry.NewHotPathLogger()
	if err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("hot-path logger unavailable")
	}

	validator, err := contracts.NewFromDir(cfg.SchemaRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load schemas:", err)
		return 1
	}

	httpClient := httpcore.New(httpcore.ClientConfig{
		DefaultRatePerSec: cfg.HTTPDefaultRatePerSec,
		MaxRetries: cfg.HTTPMaxRetries,
		BaseBackoff: cfg.HTTPBaseBackoff,
		MaxBackoff: cfg.HTTPMaxBackoff,
		RequestTimeout: cfg.HTTPRequestTimeout,
		Breaker: httpcore.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThresh,
			ResetTimeout: cfg.BreakerResetTimeout,
		},
	}, metrics, hotpath)

	secretProvider := buildSecretProvider(cfg)

	schemaMode := contracts.Soft
	if cfg.StrictSchemaMode {
		schemaMode = contracts.Strict
	}
	chain := policy.DefaultChain(logger, validator, schemaMode)
	if cfg.DomainPolicyPath != "" {
		domainPolicy, err := policy.LoadDomainPolicy(cfg.DomainPolicyPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load domain policy:", err)
			return 1
		}
		chain = policy.NewChain(append(chain.Checks(), policy.DomainAllowedCheck(domainPolicy))...)
	}

	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create data root:", err)
		return 1
	}
	if err := os.MkdirAll(cfg.StateRoot, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create state root:", err)
		return 1
	}

	effectiveJobID := *jobID
	if effectiveJobID == "" {
		effectiveJobID = "pending"
	}

	var dlq *deadletter.Sink
	if *dryRun {
		dlq = deadletter.NewDisabled(logger, metrics)
	} else {
		dlqPath := cfg.DeadLetterPath
		if dlqPath == "" {
			dlqPath = filepath.Join(cfg.DataRoot, "dead_letter", effectiveJobID+".jsonl")
		}
		dlq, err = deadletter.New(dlqPath, logger, metrics)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create dead-letter sink:", err)
			return 1
		}
	}

	deps := agents.Deps{
		HTTP: httpClient,
		Secrets: secretProvider,
		Validator: validator,
		Metrics: metrics,
		HotPath: hotpath,
		DataRoot: cfg.DataRoot,
		DryRun: *dryRun,
	}

	registry := agents.NewRegistry()
	agents.RegisterAll(registry)

	exec := executor.New(registry, deps, chain, validator, dlq, logger, metrics, executor.Config{
		MaxRetries: cfg.AgentMaxRetries,
		BaseBackoff: cfg.HTTPBaseBackoff,
		MaxBackoff: cfg.HTTPMaxBackoff,
		SchemaMode: schemaMode,
	})

	store := pipeline.NewStore(cfg.StateRoot)

	if *persistDB && cfg.PersistDBDSN == "" {
		logger.Warn("--persist-db set but no PERSIST_DB_DSN configured; export mirroring will be skipped")
	}

	orch := orchestrator.New(exec, store, dlq, secretProvider, logger, metrics, deps, orchestrator.Options{
		JobID: *jobID,
		Resume: resume,
		Mode: *mode,
		Associations: associations,
		EnrichmentSelection: enrichmentSel,
		ValidationSelection: validationSel,
		DryRun: *dryRun,
		MaxConcurrent: cfg.MaxConcurrentDef,
		CheckpointInterval: cfg.CheckpointInterval,
		MaxPages: cfg.MaxPagesPerDomain,
		AgentTaskTimeout: cfg.AgentTaskTimeout,
		MinFreeDiskBytes: cfg.MinFreeDiskBytes,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("interrupt received, checkpointing and exiting")
		cancel()
	}()

	result := orch.Run(runCtx)
	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		logger.WithFields(map[string]interface{}{"error": result.Err.Error()}).Error("run failed")
	}
	if result.State != nil {
		fmt.Fprintf(os.Stdout, "job_id=%s phase=%s exit=%d\n", result.State.JobID, result.State.CurrentPhase, result.ExitCode)
	}
	return result.ExitCode
}

func buildSecretProvider(cfg *config.Config) *secrets.Provider {
	backends := []secrets.Backend{}
	if cfg.RedisAddr != "" {
		backends = append(backends, secrets.NewRedisBackend(cfg.RedisAddr, "assoc-pipeline:"))
	}
	if cfg.AzureVaultURL != "" {
		if vault, err := secrets.NewAzureVaultBackend(cfg.AzureVaultURL); err == nil {
			backends = append(backends, vault)
		}
	}
	backends = append(backends, secrets.EnvBackend{})
	return secrets.New(cfg.SecretCacheTTL, backends...)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `orchestrator --mode {full|extract|extract-all|enrich|enrich-all|validate|validate-all}
[-a ASSOC]...
[--enrichment {firmographic|techstack|contacts|all}]
[--validation {dedupe|crossref|score|all}]
[--dry-run] [--job-id ID] [--resume ID] [--persist-db]
[--log-level {DEBUG|INFO|WARN|ERROR}]`)
	}
