package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/logging"
)

func newCapturingLogger(t *testing.T) (*logging.Logger, *bytes.Buffer) {
	t.Helper()
	l := logging.New("test-component", "debug", "json")
	var buf bytes.Buffer
	l.SetOutput(&buf)
	return l, &buf
}

func decodeLastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestWithFieldsAddsComponent(t *testing.T) {
	l, buf := newCapturingLogger(t)
	l.WithFields(map[string]interface{}{"key": "value"}).Info("hello")

	entry := decodeLastLine(t, buf)
	assert.Equal(t, "test-component", entry["component"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithContextCarriesTraceJobPhase(t *testing.T) {
	l, buf := newCapturingLogger(t)
	ctx := logging.WithTraceID(context.Background(), "trace-1")
	ctx = logging.WithJobID(ctx, "job-1")
	ctx = logging.WithPhase(ctx, "Discovery")

	l.WithContext(ctx).Info("phase event")

	entry := decodeLastLine(t, buf)
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "job-1", entry["job_id"])
	assert.Equal(t, "Discovery", entry["phase"])
}

func TestLogPhaseTransitionIncludesBucketCounts(t *testing.T) {
	l, buf := newCapturingLogger(t)
	l.LogPhaseTransition(context.Background(), "Gatekeeper", "Discovery", map[string]int{"companies": 3})

	entry := decodeLastLine(t, buf)
	assert.Equal(t, "Gatekeeper", entry["from_phase"])
	assert.Equal(t, "Discovery", entry["to_phase"])
	assert.Equal(t, float64(3), entry["count_companies"])
}

func TestLogUnitErrorIncludesClassification(t *testing.T) {
	l, buf := newCapturingLogger(t)
	l.LogUnitError(context.Background(), "transient", "discovery.site_mapper", "task-1", errors.New("timeout"))

	entry := decodeLastLine(t, buf)
	assert.Equal(t, "transient", entry["error_kind"])
	assert.Equal(t, "discovery.site_mapper", entry["agent"])
	assert.Equal(t, "timeout", entry["error"])
}

func TestNewDefaultsToInfoOnInvalidLevel(t *testing.T) {
	l := logging.New("c", "not-a-level", "json")
	assert.Equal(t, "info", l.GetLevel().String())
}
