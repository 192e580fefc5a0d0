package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablewise/concierge/messages"
)

type stubAdapter struct{ name string }

func (s stubAdapter) Name() string         { return s.name }
func (stubAdapter) DefaultModel() string   { return "stub-1" }
func (stubAdapter) DefaultBaseURL() string { return "https://stub.example.com" }

func (stubAdapter) Endpoint(baseURL, _ string) string {
	return baseURL + "/complete"
}

func (stubAdapter) Headers(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

func (stubAdapter) BuildPayload([]messages.Message, ChatOptions, bool) ([]byte, error) {
	return []byte(`{}`), nil
}
func (stubAdapter) ExtractContent([]byte) (string, Usage, error) { return "", Usage{}, nil }
func (stubAdapter) ExtractStreamDelta([]byte) *string            { return nil }

func TestRegistryResolvesByName(t *testing.T) {
	Register(stubAdapter{name: "stub"})
	defer registry.Del("stub")

	adapter, err := ForName("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", adapter.Name())

	_, err = ForName("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestConfigResolveAppliesDefaults(t *testing.T) {
	Register(stubAdapter{name: "stub"})
	defer registry.Del("stub")

	cfg := Config{Provider: "stub", APIKey: "key"}
	adapter, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "stub", adapter.Name())
	assert.Equal(t, "stub-1", cfg.Model)
	assert.Equal(t, "https://stub.example.com", cfg.BaseURL)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestConfigResolveKeepsOverrides(t *testing.T) {
	Register(stubAdapter{name: "stub"})
	defer registry.Del("stub")

	cfg := Config{
		Provider:   "stub",
		APIKey:     "key",
		Model:      "stub-2",
		BaseURL:    "http://localhost:9999",
		MaxRetries: 5,
		Timeout:    time.Second,
	}
	_, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "stub-2", cfg.Model)
	assert.Equal(t, "http://localhost:9999", cfg.BaseURL)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestConfigResolveFailsFast(t *testing.T) {
	_, err := (&Config{APIKey: "key"}).Resolve()
	require.Error(t, err, "missing provider")

	Register(stubAdapter{name: "stub"})
	defer registry.Del("stub")

	_, err = (&Config{Provider: "stub"}).Resolve()
	require.Error(t, err, "missing api key")
	assert.Contains(t, err.Error(), "api key is required")
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	assert.EqualValues(t, 11, u.PromptTokens)
	assert.EqualValues(t, 22, u.CompletionTokens)
	assert.EqualValues(t, 33, u.TotalTokens)
}
