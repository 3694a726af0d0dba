package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelineerrors "github.com/R3E-Network/assoc-pipeline/internal/errors"
)

func TestKindOfReadsUnderlyingPipelineError(t *testing.T) {
	base := pipelineerrors.TransientErr("upstream flaked", errors.New("boom"))
	assert.Equal(t, pipelineerrors.Transient, pipelineerrors.KindOf(base))
}

func TestKindOfDefaultsToInternalForPlainError(t *testing.T) {
	assert.Equal(t, pipelineerrors.Internal, pipelineerrors.KindOf(errors.New("plain")))
}

func TestIsRetryableOnlyTransient(t *testing.T) {
	assert.True(t, pipelineerrors.IsRetryable(pipelineerrors.TransientErr("x", nil)))
	assert.False(t, pipelineerrors.IsRetryable(pipelineerrors.CircuitOpenErr("example.com")))
	assert.False(t, pipelineerrors.IsRetryable(pipelineerrors.NotFoundErr("url", "x")))
	assert.False(t, pipelineerrors.IsRetryable(pipelineerrors.ForbiddenErr("denied")))
}

func TestIsFatalMatchesConfigAndInternal(t *testing.T) {
	assert.True(t, pipelineerrors.IsFatal(pipelineerrors.ConfigErr("bad config", nil)))
	assert.True(t, pipelineerrors.IsFatal(pipelineerrors.InternalErr("boom", nil)))
	assert.False(t, pipelineerrors.IsFatal(pipelineerrors.TransientErr("x", nil)))
	assert.True(t, pipelineerrors.IsFatal(errors.New("not a pipeline error")))
}

func TestWithDetailsAccumulates(t *testing.T) {
	err := pipelineerrors.ParseErr("bad html", nil).
		WithDetails("url", "https://example.com").
		WithDetails("line", 12)

	require.NotNil(t, err.Details)
	assert.Equal(t, "https://example.com", err.Details["url"])
	assert.Equal(t, 12, err.Details["line"])
}

func TestUnwrapReturnsWrappedError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := pipelineerrors.Wrap(pipelineerrors.Transient, "connection failed", cause)
	assert.Same(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestSkipKindsAreNotRetryable(t *testing.T) {
	for _, kind := range []pipelineerrors.Kind{
		pipelineerrors.NotFound, pipelineerrors.Forbidden,
		pipelineerrors.ParseError, pipelineerrors.SchemaViolation,
	} {
		err := pipelineerrors.New(kind, "x")
		assert.False(t, err.Retryable(), "kind %s should not be retryable", kind)
	}
}
