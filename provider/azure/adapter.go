// Package azure implements the provider adapter for Azure OpenAI deployments.
// The request and response envelopes match the OpenAI shape, so the adapter
// embeds the openai one and overrides the endpoint scheme (deployment name in
// the URL, api-version query) and the api-key auth header.
package azure

import (
	"strings"

	"github.com/tablewise/concierge/provider"
	"github.com/tablewise/concierge/provider/openai"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultBaseURL = "https://YOUR_RESOURCE.openai.azure.com"

	apiVersion = "2024-02-01"
)

func init() {
	provider.Register(Adapter{})
}

// Adapter is the Azure OpenAI adapter. The zero value is ready to use.
type Adapter struct {
	openai.Adapter
}

func (Adapter) Name() string           { return "azure" }
func (Adapter) DefaultModel() string   { return defaultModel }
func (Adapter) DefaultBaseURL() string { return defaultBaseURL }

// Endpoint routes to the deployment named after the model. Azure resources
// address models by deployment, not by a model field, though the body still
// carries one and Azure ignores it.
func (Adapter) Endpoint(baseURL, model string) string {
	return strings.TrimRight(baseURL, "/") +
		"/openai/deployments/" + model +
		"/chat/completions?api-version=" + apiVersion
}

// Headers returns the api-key header Azure uses instead of a bearer token.
func (Adapter) Headers(apiKey string) map[string]string {
	return map[string]string{
		"Content-Type": "application/json",
		"api-key":      apiKey,
	}
}
