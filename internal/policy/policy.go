// Package policy implements the Policy Middleware (C3): a composable
// predicate chain wrapped around agent invocation, grounded on the
// teacher's infrastructure/middleware.RateLimiter.Handler pattern — a
// func(http.Handler) http.Handler wrapper chain — adapted here to wrap
// an agents.AgentFunc instead of an http.Handler. Each predicate is a
// PolicyCheck, composed in declared order by the Executor (C6) before
// invoking the agent and again before merging its proposed deltas.
package policy

import (
	"context"
	"strings"
	"time"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/contracts"
	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/logging"
	"github.com/sirupsen/logrus"
)

// Context is the information a PolicyCheck needs about one invocation:
// the agent's declared contract, the task it is about to run (or the
// result it just produced), and the phase of the gate being applied.
type Context struct {
	Agent agents.Agent
	Task agents.AgentTask
	Result *agents.AgentResult // nil at the pre-invocation gate
	Stage Stage
}

// Stage distinguishes the pre-invocation gate (input validation,
// capability checks) from the post-invocation gate (output validation,
// provenance checks) so a single PolicyCheck can apply at one or both.
type Stage int

const (
	StagePre Stage = iota
	StagePost
)

// PolicyCheck inspects a Context and returns a non-nil error to block
// the invocation (pre-stage) or reject the output (post-stage).
type PolicyCheck func(ctx context.Context, pc Context) error

// Chain runs an ordered list of PolicyCheck predicates, stopping at the
// first failure — the same short-circuit-on-first-failure behavior as
// chained http.Handler middleware stopping the request at the first
// non-passing layer.
type Chain struct {
	checks []PolicyCheck
}

// NewChain builds a Chain over checks, run in the given order.
func NewChain(checks...PolicyCheck) *Chain {
	return &Chain{checks: checks}
}

// Checks returns the chain's predicates in declared order, letting a
// caller extend a built chain (e.g. DefaultChain) with additional checks
// without reaching into its internals.
func (c *Chain) Checks() []PolicyCheck {
	return c.checks
}

// Run evaluates every check in order, returning the first error.
func (c *Chain) Run(ctx context.Context, pc Context) error {
	for _, check := range c.checks {
		if err := check(ctx, pc); err != nil {
			return err
		}
	}
	return nil
}

// CrawlerClassCheck enforces its network-capability rule: only agents
// declaring a crawler or enricher class may request the "network"
// capability. A crawler-class agent other than the gatekeeper.* agents
// (which fetch robots.txt themselves) must carry a passing
// "robots_allowed" verdict on its task payload; the Discovery phase sets
// it on URLs whose host the Gatekeeper phase did not block, and this
// check rejects a crawler invoked without it.
func CrawlerClassCheck() PolicyCheck {
	return func(_ context.Context, pc Context) error {
		if pc.Stage != StagePre {
			return nil
		}
		needsNetwork := false
		for _, cap := range pc.Agent.RequiredCapabilities() {
			if cap == agents.CapabilityNetwork {
				needsNetwork = true
				break
			}
		}
		if !needsNetwork {
			return nil
		}
		class := pc.Agent.CrawlerClass()
		if class != agents.ClassCrawler && class != agents.ClassEnricher {
			return pipelineerrors.ForbiddenErr(
			"agent requires network capability without declaring crawler or enricher class").
				WithDetails("agent", pc.Agent.Name())
		}
		if class == agents.ClassCrawler && !strings.HasPrefix(pc.Agent.Name(), "gatekeeper.") {
			verdict, ok := pc.Task.Payload["robots_allowed"].(bool)
			if !ok || !verdict {
				return pipelineerrors.ForbiddenErr("crawler invoked without a passing robots.txt verdict").
					WithDetails("agent", pc.Agent.Name())
			}
		}
		return nil
	}
}

// EnricherLoggingCheck logs every enricher-class invocation as an
// external call, per its "enrichers are additionally rate-limited and
// logged" requirement — the rate limiting itself is enforced by
// httpcore.Client's per-host limiter, so this check owns only the
// logging half.
func EnricherLoggingCheck(logger *logging.Logger) PolicyCheck {
	return func(ctx context.Context, pc Context) error {
		if pc.Stage != StagePre || pc.Agent.CrawlerClass() != agents.ClassEnricher {
			return nil
		}
		logger.WithContext(ctx).WithFields(logrus.Fields{
			"agent": pc.Agent.Name(),
			"attempt": pc.Task.Attempt,
		}).Info("enricher external call")
		return nil
	}
}

// AuthFlagCheck implements its auth-flagging rule: a page record
// requiring authentication must be annotated and withheld from
// extraction rather than silently passed downstream. It inspects the
// task payload for a "requires_auth" flag, which the Extraction phase
// copies from the page record Discovery flagged when it could not fetch
// the page without credentials.
func AuthFlagCheck() PolicyCheck {
	return func(_ context.Context, pc Context) error {
		if pc.Stage != StagePre {
			return nil
		}
		if requiresAuth, _ := pc.Task.Payload["requires_auth"].(bool); requiresAuth {
			if !strings.HasPrefix(pc.Agent.Name(), "gatekeeper.") && !strings.HasPrefix(pc.Agent.Name(), "discovery.") {
				return pipelineerrors.ForbiddenErr("page requires authentication; withheld from extraction").
					WithDetails("agent", pc.Agent.Name())
			}
		}
		return nil
	}
}

// ProvenanceCheck implements its provenance rule: every output record
// bearing an "id" field must carry a non-empty "provenance" list whose
// entries each have a non-empty "extracted_by" and an "extracted_at".
// The extracted_by value is not compared against the agent's name. It
// applies at the post-invocation gate, once the agent has produced deltas.
func ProvenanceCheck() PolicyCheck {
	return func(_ context.Context, pc Context) error {
		if pc.Stage != StagePost || pc.Result == nil {
			return nil
		}
		for _, delta := range pc.Result.Deltas {
			for _, record := range delta.Records {
				id, hasID := record["id"]
				if !hasID || id == "" {
					continue
				}
				provList, ok := record["provenance"].([]interface{})
				if typed, isTyped := record["provenance"].([]map[string]interface{}); isTyped {
					ok = true
					for _, p := range typed {
						provList = append(provList, p)
					}
				}
				if !ok || len(provList) == 0 {
					return pipelineerrors.SchemaViolationErr("provenance", nil).
						WithDetails("agent", pc.Agent.Name()).
						WithDetails("bucket", delta.Bucket).
						WithDetails("record_id", id)
				}
				for _, entry := range provList {
					prov, ok := entry.(map[string]interface{})
					if !ok {
						return pipelineerrors.SchemaViolationErr("provenance", nil).
							WithDetails("agent", pc.Agent.Name()).
							WithDetails("reason", "provenance entry not an object")
					}
					if src, _ := prov["extracted_by"].(string); src == "" {
						return pipelineerrors.SchemaViolationErr("provenance", nil).
							WithDetails("agent", pc.Agent.Name()).
							WithDetails("reason", "missing extracted_by")
					}
					if _, ok := prov["extracted_at"]; !ok {
						return pipelineerrors.SchemaViolationErr("provenance", nil).
							WithDetails("agent", pc.Agent.Name()).
							WithDetails("reason", "missing extracted_at")
					}
				}
			}
		}
		return nil
	}
}

// OutputSchemaCheck composes with the Contract Validator (C2): it
// enforces mode (Soft logs-and-continues, Strict raises to the
// Executor), rejecting any agent output that does not conform to the
// agent's declared output schema. This is the post-stage twin of the
// Executor's pre-stage input validation.
func OutputSchemaCheck(validator *contracts.Validator, mode contracts.Mode) PolicyCheck {
	return func(_ context.Context, pc Context) error {
		if pc.Stage != StagePost || pc.Result == nil || pc.Agent.OutputSchemaID() == "" {
			return nil
		}
		if pc.Result.Output == nil {
			return nil
		}
		_, err := validator.ValidateOrError(pc.Agent.OutputSchemaID(), pc.Result.Output, mode)
		return err
	}
}

// DeadlineReference returns the task's deadline, or the current UTC time
// when the task has no deadline. It stamps nothing onto records.
func DeadlineReference(pc Context) time.Time {
	if pc.Task.Deadline.IsZero() {
		return time.Now().UTC()
	}
	return pc.Task.Deadline
}

// DefaultChain builds the standard pre/post predicate chain used by the
// Executor, in this declared order: crawler-class, enricher logging, and
// auth-flagging at the pre-invocation gate; provenance and output-schema
// at the post-invocation gate. Callers filter by ctx.Stage inside each
// predicate, so a single Chain instance can be run at both gates.
func DefaultChain(logger *logging.Logger, validator *contracts.Validator, schemaMode contracts.Mode) *Chain {
	return NewChain(
		CrawlerClassCheck(),
		EnricherLoggingCheck(logger),
		AuthFlagCheck(),
		ProvenanceCheck(),
		OutputSchemaCheck(validator, schemaMode),
	)
}
