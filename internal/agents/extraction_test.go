package agents_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
)

func TestHTMLParserAgentReturnsUnsuccessfulOnMissingPage(t *testing.T) {
	agent, err := agents.NewHTMLParserAgent(agents.Deps{})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestHTMLParserAgentReturnsUnsuccessfulOnPageMissingURL(t *testing.T) {
	agent, err := agents.NewHTMLParserAgent(agents.Deps{})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{
		Payload: map[string]interface{}{"page": map[string]interface{}{}},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestHTMLParserAgentExtractsTitleAsCompanyName(t *testing.T) {
	agent, err := agents.NewHTMLParserAgent(agents.Deps{})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{
		Payload: map[string]interface{}{
			"page": map[string]interface{}{"url": "https://acme.test/about"},
			"content": "<html><head><title>Acme Corp</title></head><body></body></html>",
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, "companies", res.Deltas[0].Bucket)
	company := res.Deltas[0].Records[0]
	assert.Equal(t, "Acme Corp", company["name"])
	assert.Equal(t, "acme.test", company["domain"])
	assert.Equal(t, "company:acme.test", company["id"])
}

func TestHTMLParserAgentFallsBackToHostWhenTitleMissing(t *testing.T) {
	agent, err := agents.NewHTMLParserAgent(agents.Deps{})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{
		Payload: map[string]interface{}{
			"page": map[string]interface{}{"url": "https://acme.test/about"},
			"content": "<html><body>no title here</body></html>",
		},
	})
	require.NoError(t, err)
	company := res.Deltas[0].Records[0]
	assert.Equal(t, "acme.test", company["name"])
}
