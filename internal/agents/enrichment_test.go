package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/secrets"
)

// staticBackend resolves every key to a fixed value, standing in for a
// real secret store in tests.
type staticBackend struct{ values map[string]string }

func (b staticBackend) Name() string { return "static" }
func (b staticBackend) Lookup(_ context.Context, key string) (string, error) {
	return b.values[key], nil
}

func TestFirmographicAgentReturnsUnsuccessfulOnMissingPayload(t *testing.T) {
	agent, err := agents.NewFirmographicAgent(agents.Deps{Secrets: secrets.New(0)})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestFirmographicAgentPropagatesMissingSecretAsError(t *testing.T) {
	agent, err := agents.NewFirmographicAgent(agents.Deps{Secrets: secrets.New(0)})
	require.NoError(t, err)

	_, err = agent.Execute(context.Background(), agents.AgentTask{
		Payload: map[string]interface{}{"company_id": "c1", "domain": "acme.test"},
	})
	assert.Error(t, err)
}

func TestFirmographicAgentRequiresCapabilities(t *testing.T) {
	agent, err := agents.NewFirmographicAgent(agents.Deps{})
	require.NoError(t, err)
	caps := agent.RequiredCapabilities()
	require.Len(t, caps, 2)
	assert.Equal(t, agents.CapabilityNetwork, caps[0])
}

func TestTechStackAgentReturnsUnsuccessfulOnMissingPayload(t *testing.T) {
	agent, err := agents.NewTechStackAgent(agents.Deps{Secrets: secrets.New(0)})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{
		Payload: map[string]interface{}{"company_id": "c1"},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestContactFinderAgentReturnsUnsuccessfulOnMissingPayload(t *testing.T) {
	provider := secrets.New(0, staticBackend{values: map[string]string{"CONTACT_FINDER_API_KEY": "key"}})
	agent, err := agents.NewContactFinderAgent(agents.Deps{Secrets: provider})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestContactFinderAgentPropagatesFetchErrorWhenSecretMissing(t *testing.T) {
	agent, err := agents.NewContactFinderAgent(agents.Deps{Secrets: secrets.New(0)})
	require.NoError(t, err)

	_, err = agent.Execute(context.Background(), agents.AgentTask{
		Payload: map[string]interface{}{"company_id": "c1", "domain": "acme.test"},
	})
	assert.Error(t, err)
}
