package httpcore

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
	"github.com/R3E-Network/assoc-pipeline/internal/telemetry"
)

// ClientConfig configures a Client (C1).
type ClientConfig struct {
	DefaultRatePerSec float64
	MaxRetries int
	BaseBackoff time.Duration
	MaxBackoff time.Duration
	RequestTimeout time.Duration
	Breaker BreakerConfig
}

// DefaultClientConfig returns the baseline ClientConfig.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DefaultRatePerSec: 2,
		MaxRetries: 3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
		RequestTimeout: 15 * time.Second,
		Breaker: DefaultBreakerConfig(),
	}
}

// Client is the Rate-Limited HTTP Core: per-host token bucket composed
// with a per-host circuit breaker and a bounded retry policy, all
// observable through telemetry.Metrics.
type Client struct {
	httpClient *http.Client
	limiter *HostLimiter
	breakers *HostBreakers
	metrics *telemetry.Metrics
	hotpath *telemetry.HotPathLogger
	cfg ClientConfig
}

// New builds a Client. metrics/hotpath may be nil in tests.
func New(cfg ClientConfig, metrics *telemetry.Metrics, hotpath *telemetry.HotPathLogger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter: NewHostLimiter(cfg.DefaultRatePerSec),
		breakers: NewHostBreakers(cfg.Breaker),
		metrics: metrics,
		hotpath: hotpath,
		cfg: cfg,
	}
}

// SetHostRate overrides the per-host token bucket rate, used when an
// agent's contract declares a tighter rate for a specific destination.
func (c *Client) SetHostRate(host string, requestsPerSecond float64) {
	c.limiter.SetRate(host, requestsPerSecond)
}

// BreakerState exposes the current per-host breaker state.
func (c *Client) BreakerState(host string) BreakerState {
	return c.breakers.State(host)
}

// Do performs req, applying rate limiting, circuit breaking, retry with
// exponential backoff + jitter, and metrics emission, in that order.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	method := req.Method

	var resp *http.Response
	attempt := 0

	operation := func() error {
		attempt++

		if err := c.limiter.Wait(ctx, host); err != nil {
			return backoff.Permanent(pipelineerrors.TransientErr("rate limiter wait cancelled", err))
		}

		start := time.Now()
		var callErr error
		breakerErr := c.breakers.Execute(host, func() error {
			r, err := c.httpClient.Do(req.Clone(ctx))
			if err != nil {
				callErr = classifyTransportError(err)
				return callErr
			}
			if r.StatusCode >= 500 {
				io.Copy(io.Discard, r.Body)
				r.Body.Close()
				callErr = transient5xx(r.StatusCode)
				return callErr
			}
			if r.StatusCode == http.StatusTooManyRequests {
				io.Copy(io.Discard, r.Body)
				r.Body.Close()
				callErr = transient429()
				return callErr
			}
			if r.StatusCode == http.StatusNotFound {
				resp = r
				callErr = pipelineerrors.NotFoundErr("url", req.URL.String())
				return nil // not a breaker failure path; handled below
			}
			if r.StatusCode == http.StatusForbidden {
				resp = r
				callErr = pipelineerrors.ForbiddenErr("forbidden: " + req.URL.String())
				return nil
			}
			resp = r
			return nil
		})

		dur := time.Since(start)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if c.hotpath != nil {
			c.hotpath.HTTPAttempt(host, method, attempt, status, dur, callErr)
		}
		if c.metrics != nil {
			c.metrics.HTTPRequestsTotal.WithLabelValues(host, method, fmt.Sprint(status)).Inc()
			c.metrics.HTTPRequestDuration.WithLabelValues(host, method).Observe(dur.Seconds())
		}

		if pipelineerrors.KindOf(breakerErr) == pipelineerrors.CircuitOpen {
			if c.metrics != nil {
				c.metrics.HTTPErrorsTotal.WithLabelValues(host, string(pipelineerrors.CircuitOpen)).Inc()
			}
			return backoff.Permanent(breakerErr)
		}

		if callErr != nil {
			if c.metrics != nil {
				c.metrics.HTTPErrorsTotal.WithLabelValues(host, string(pipelineerrors.KindOf(callErr))).Inc()
			}
			if !pipelineerrors.IsRetryable(callErr) {
				return backoff.Permanent(callErr)
			}
			return callErr
		}

		return nil
	}

	bo := c.retryPolicy(ctx)
	err := backoff.Retry(operation, bo)
	if err != nil {
		return nil, unwrapPermanent(err)
	}
	return resp, nil
}

// retryPolicy builds the bounded exponential-backoff-with-jitter schedule
// using cenkalti/backoff/v4. The exponential curve itself is computed with
// RandomizationFactor=0 (deterministic doubling); jitter is then added on
// top by jitterBackOff, so the final wait per attempt is
// exponential(attempt) + uniform[0, exponential(attempt)).
func (c *Client) retryPolicy(ctx context.Context) backoff.BackOffContext {
	maxRetries := c.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	withMax := backoff.WithMaxRetries(&jitterBackOff{inner: bo}, uint64(maxRetries))
	return backoff.WithContext(withMax, ctx)
}

// jitterBackOff wraps a backoff.BackOff and adds uniform additive jitter in
// [0, base) on top of each returned interval, instead of the library's own
// multiplicative RandomizationFactor.
type jitterBackOff struct {
	inner backoff.BackOff
}

func (j *jitterBackOff) NextBackOff() time.Duration {
	base := j.inner.NextBackOff()
	if base == backoff.Stop {
		return backoff.Stop
	}
	return base + jitter(base)
}

func (j *jitterBackOff) Reset() {
	j.inner.Reset()
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

func classifyTransportError(err error) *pipelineerrors.PipelineError {
	var netErr net.Error
	if u, ok := err.(*url.Error); ok {
		if ne, ok := u.Err.(net.Error); ok {
			netErr = ne
		}
	}
	if netErr != nil && netErr.Timeout() {
		return pipelineerrors.TransientErr("request timeout", err)
	}
	return pipelineerrors.TransientErr("connection error", err)
}

func transient5xx(status int) *pipelineerrors.PipelineError {
	return pipelineerrors.TransientErr("upstream server error", fmt.Errorf("status %d", status)).
		WithDetails("status", status)
}

func transient429() *pipelineerrors.PipelineError {
	return pipelineerrors.TransientErr("rate limited by upstream", fmt.Errorf("status 429")).
		WithDetails("status", 429)
}

// jitter returns a uniform random duration in [0, base), added on top of
// the exponential interval by jitterBackOff.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}
