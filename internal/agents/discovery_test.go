package agents_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/assoc-pipeline/internal/agents"
	"github.com/R3E-Network/assoc-pipeline/internal/httpcore"
)

func TestSiteMapperAgentReturnsUnsuccessfulOnMissingURL(t *testing.T) {
	agent, err := agents.NewSiteMapperAgent(agents.Deps{})
	require.NoError(t, err)

	res, err := agent.Execute(context.Background(), agents.AgentTask{Payload: map[string]interface{}{}})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestSiteMapperAgentFetchesPageAndQueuesSameOriginLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
<a href="/about">About</a>
<a href="https://other.test/elsewhere">Off-site</a>
</body></html>`))
		}))
		defer srv.Close()

		client := httpcore.New(httpcore.ClientConfig{
			MaxRetries: 0, RequestTimeout: 0, Breaker: httpcore.DefaultBreakerConfig(),
		}, nil, nil)
		agent, err := agents.NewSiteMapperAgent(agents.Deps{HTTP: client, DataRoot: t.TempDir()})
		require.NoError(t, err)

		res, err := agent.Execute(context.Background(), agents.AgentTask{
			Payload: map[string]interface{}{"url": srv.URL + "/"},
		})
		require.NoError(t, err)
		require.True(t, res.Success)

		var queueDelta, pagesDelta *agents.Delta
		for i := range res.Deltas {
			switch res.Deltas[i].Bucket {
			case "crawl_queue":
				queueDelta = &res.Deltas[i]
			case "pages":
				pagesDelta = &res.Deltas[i]
			}
		}
		require.NotNil(t, pagesDelta)
		require.Len(t, pagesDelta.Records, 1)

		require.NotNil(t, queueDelta)
		require.Len(t, queueDelta.Records, 1, "only the same-origin link is queued")
		assert.Equal(t, srv.URL+"/about", queueDelta.Records[0]["id"])
		}

		func TestSiteMapperAgentDryRunSkipsContentPersistence(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`<html></html>`))
			}))
			defer srv.Close()

			client := httpcore.New(httpcore.ClientConfig{Breaker: httpcore.DefaultBreakerConfig()}, nil, nil)
			agent, err := agents.NewSiteMapperAgent(agents.Deps{HTTP: client, DataRoot: t.TempDir(), DryRun: true})
			require.NoError(t, err)

			res, err := agent.Execute(context.Background(), agents.AgentTask{
				Payload: map[string]interface{}{"url": srv.URL + "/"},
			})
			require.NoError(t, err)
			snapshot := res.Output
			assert.Equal(t, "", snapshot["content_location"])
		}
