package httpcore

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

// BreakerState mirrors gobreaker's three states under domain-specific names.
type BreakerState int

const (
	StateClosed BreakerState = BreakerState(gobreaker.StateClosed)
	StateHalfOpen BreakerState = BreakerState(gobreaker.StateHalfOpen)
	StateOpen BreakerState = BreakerState(gobreaker.StateOpen)
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures every per-host circuit breaker created by a
// HostBreakers registry.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout time.Duration
	HalfOpenMax int
	OnStateChange func(host string, from, to BreakerState)
}

// DefaultBreakerConfig() matches its defaults: failure_threshold=5,
// reset_timeout=60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, ResetTimeout: 60 * time.Second, HalfOpenMax: 1}
}

// HostBreakers hands out one gobreaker-backed circuit breaker per host,
// generalized from one global breaker to a map keyed by host, the same
// way HostLimiter generalizes the rate limiter.
type HostBreakers struct {
	mu sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	cfg BreakerConfig
}

// NewHostBreakers creates a HostBreakers registry.
func NewHostBreakers(cfg BreakerConfig) *HostBreakers {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &HostBreakers{breakers: make(map[string]*gobreaker.CircuitBreaker[any]), cfg: cfg}
}

func (h *HostBreakers) getOrCreate(host string) *gobreaker.CircuitBreaker[any] {
	h.mu.RLock()
	b, ok := h.breakers[host]
	h.mu.RUnlock()
	if ok {
		return b
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.breakers[host]; ok {
		return b
	}

	maxFailures := uint32(h.cfg.FailureThreshold)
	halfOpenMax := uint32(h.cfg.HalfOpenMax)
	settings := gobreaker.Settings{
		Name: host,
		MaxRequests: halfOpenMax,
		Timeout: h.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// IsSuccessful implements the 429 exemption: an error that
		// is NOT classified as a breaker-counted failure (e.g. a 429, a
		// 404, a parse error) must not move the consecutive-failure
		// counter, even though it is still returned to the caller.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !isBreakerFailure(err)
		},
	}
	if h.cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			h.cfg.OnStateChange(name, BreakerState(from), BreakerState(to))
		}
	}

	b = gobreaker.NewCircuitBreaker[any](settings)
	h.breakers[host] = b
	return b
}

// isBreakerFailure classifies which errors count toward breaker tripping:
// Transient pipeline errors (5xx, connection resets, timeouts) and any
// error that is not a PipelineError at all. A 429 is also surfaced as
// Transient but carries a "status" detail of 429 (see transient429 in
// client.go), so it is excluded here.
func isBreakerFailure(err error) bool {
	var pe *pipelineerrors.PipelineError
	if !errors.As(err, &pe) {
		return true
	}
	if pe.Kind != pipelineerrors.Transient {
		return false
	}
	if pe.Details != nil {
		if status, ok := pe.Details["status"]; ok {
			if s, ok := status.(int); ok && s == 429 {
				return false
			}
		}
	}
	return true
}

// State returns the current breaker state for a host, creating its
// breaker (in Closed state) if this is the first reference.
func (h *HostBreakers) State(host string) BreakerState {
	return BreakerState(h.getOrCreate(host).State)
}

// Execute runs fn under the host's breaker, translating gobreaker's
// open-state sentinel into the pipeline's CircuitOpen error kind.
func (h *HostBreakers) Execute(host string, fn func() error) error {
	b := h.getOrCreate(host)
	_, err := b.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pipelineerrors.CircuitOpenErr(host)
		}
	}
	return err
}
