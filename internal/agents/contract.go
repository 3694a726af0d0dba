// Package agents defines the Agent Contract (C5): a uniform, stateless
// interface under which every self-contained worker component is
// scheduled by the Executor (C6), plus the name -> constructor Registry
// that looks agents up by their hierarchical name. Grounded on the
// teacher's system/engine.InvocableService (the Invoke(ctx, method,
// params) MethodResult shape, generalized here to one Execute method per
// agent rather than one service exposing many methods) and
// system/framework/core.Registry (panic-on-duplicate registration,
// registration-order tracking).
package agents

import (
	"context"
	"time"

	"github.com/R3E-Network/assoc-pipeline/internal/contracts"
	"github.com/R3E-Network/assoc-pipeline/internal/httpcore"
	"github.com/R3E-Network/assoc-pipeline/internal/secrets"
	"github.com/R3E-Network/assoc-pipeline/internal/telemetry"
)

// Capability is a required capability an agent declares, checked by the
// Policy Middleware (C3) before invocation — e.g. "network" or
// "secret:CLEARBIT_API_KEY".
type Capability string

const (
	CapabilityNetwork Capability = "network"
)

// SecretCapability builds the "secret:<NAME>" capability string an agent
// declares when it needs a named secret at construction time.
func SecretCapability(name string) Capability {
	return Capability("secret:" + name)
}

// CrawlerClass distinguishes the two kinds of network-touching agents the
// Policy Middleware treats differently: a crawler respects
// robots.txt verdicts, an enricher is additionally rate-limited and
// logged as an external call.
type CrawlerClass string

const (
	ClassNone CrawlerClass = ""
	ClassCrawler CrawlerClass = "crawler"
	ClassEnricher CrawlerClass = "enricher"
)

// AgentTask is the immutable-per-attempt unit of work handed to an agent
//.
type AgentTask struct {
	AgentType string `json:"agent_type"`
	Payload map[string]interface{} `json:"payload"`
	Attempt int `json:"attempt"`
	Deadline time.Time `json:"deadline"`
}

// Delta is the value-typed proposal an agent returns instead of mutating
// shared state directly (the "Decoupling agents from state"): new records
// to append and existing records to update by identifier, keyed by the
// bucket they belong to. The Orchestrator is the only component that
// applies a Delta to PipelineState.
type Delta struct {
	Bucket string `json:"bucket"`
	Records []map[string]interface{} `json:"records"`
}

// AgentResult is the uniform outcome of one agent invocation.
type AgentResult struct {
	Success bool `json:"success"`
	Output map[string]interface{} `json:"output,omitempty"`
	Deltas []Delta `json:"deltas,omitempty"`
	Errors []string `json:"errors,omitempty"`
	DurationMs int64 `json:"duration_ms"`
}

// Agent is the uniform contract every scheduled worker component
// implements.
type Agent interface {
	Name() string
	InputSchemaID() string
	OutputSchemaID() string
	RequiredCapabilities() []Capability
	CrawlerClass() CrawlerClass
	Execute(ctx context.Context, task AgentTask) (AgentResult, error)
}

// Deps is the set of shared, process-scoped collaborators an
// AgentConstructor may draw on to build an Agent instance. Agents
// themselves never see PipelineState — only the payload in the AgentTask
// they are handed (the "Agents have no access to the PipelineState
// beyond the payload they receive").
type Deps struct {
	HTTP *httpcore.Client
	Secrets *secrets.Provider
	Validator *contracts.Validator
	Metrics *telemetry.Metrics
	HotPath *telemetry.HotPathLogger
	DataRoot string

	// DryRun, when set, tells agents that would otherwise write under
	// DataRoot (export writer, monitor baseline, discovery's raw-content
	// snapshot) to skip the filesystem write and return their delta as
	// normal — the CLI's `--dry-run` flag promises "no persisted
	// mutations" outside the state directory, not a no-op pipeline.
	DryRun bool
}

// AgentConstructor builds an Agent instance from shared Deps, a factory
// shape used for per-agent dependency injection.
type AgentConstructor func(deps Deps) (Agent, error)
