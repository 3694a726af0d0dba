package contracts_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/contracts"
)

func schemaRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "schemas")
}

func TestNewFromDirCompilesAllPackSchemas(t *testing.T) {
	v, err := contracts.NewFromDir(schemaRoot(t))
	require.NoError(t, err)
	require.NotNil(t, v)
}

func TestValidatePassesWellFormedGatekeeperInput(t *testing.T) {
	v, err := contracts.NewFromDir(schemaRoot(t))
	require.NoError(t, err)

	ok, diags := v.Validate("https://assoc-pipeline.internal/schemas/gatekeeper.input.json", map[string]interface{}{
		"domain": "example.test",
	})
	assert.True(t, ok)
	assert.Empty(t, diags)
}

func TestValidateFailsMissingRequiredField(t *testing.T) {
	v, err := contracts.NewFromDir(schemaRoot(t))
	require.NoError(t, err)

	ok, diags := v.Validate("https://assoc-pipeline.internal/schemas/gatekeeper.input.json", map[string]interface{}{
		"association": "example",
	})
	assert.False(t, ok)
	assert.NotEmpty(t, diags)
}

func TestValidateUnknownSchemaIDReturnsDiagnostic(t *testing.T) {
	v, err := contracts.NewFromDir(schemaRoot(t))
	require.NoError(t, err)

	ok, diags := v.Validate("https://assoc-pipeline.internal/schemas/does-not-exist.json", map[string]interface{}{})
	assert.False(t, ok)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "unknown schema id")
}

func TestValidateOrErrorSoftModeNeverErrors(t *testing.T) {
	v, err := contracts.NewFromDir(schemaRoot(t))
	require.NoError(t, err)

	diags, verr := v.ValidateOrError("https://assoc-pipeline.internal/schemas/gatekeeper.input.json", map[string]interface{}{}, contracts.Soft)
	assert.NoError(t, verr)
	assert.NotEmpty(t, diags)
}

func TestValidateOrErrorStrictModeRaisesSchemaViolation(t *testing.T) {
	v, err := contracts.NewFromDir(schemaRoot(t))
	require.NoError(t, err)

	_, verr := v.ValidateOrError("https://assoc-pipeline.internal/schemas/gatekeeper.input.json", map[string]interface{}{}, contracts.Strict)
	assert.Error(t, verr)
}

func TestNewFromDirFailsOnMissingRoot(t *testing.T) {
	_, err := contracts.NewFromDir(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
