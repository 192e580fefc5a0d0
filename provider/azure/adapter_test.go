package azure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablewise/concierge/messages"
	"github.com/tablewise/concierge/provider"
	"github.com/tidwall/gjson"
)

func TestEndpoint(t *testing.T) {
	assert.Equal(t,
		"https://bistro.openai.azure.com/openai/deployments/gpt-4o-mini/chat/completions?api-version="+apiVersion,
		Adapter{}.Endpoint("https://bistro.openai.azure.com", "gpt-4o-mini"))
}

func TestHeaders(t *testing.T) {
	headers := Adapter{}.Headers("azure-key")
	assert.Equal(t, "azure-key", headers["api-key"])
	assert.NotContains(t, headers, "Authorization")
}

func TestPayloadSharesOpenAIShape(t *testing.T) {
	payload, err := Adapter{}.BuildPayload(
		[]messages.Message{messages.UserPrompt("hello")},
		provider.ChatOptions{Model: "gpt-4o-mini", SystemPrompt: "S"},
		false,
	)
	require.NoError(t, err)

	jv := gjson.ParseBytes(payload)
	assert.Equal(t, "gpt-4o-mini", jv.Get("model").String())
	assert.Equal(t, "system", jv.Get("messages.0.role").String())
}

func TestRegistered(t *testing.T) {
	adapter, err := provider.ForName("azure")
	require.NoError(t, err)
	assert.Equal(t, defaultModel, adapter.DefaultModel())
}
