package provider

import (
	"fmt"
	"sort"

	"github.com/alphadose/haxmap"
	"github.com/tablewise/concierge/messages"
)

// Adapter is the contract every provider variant implements. All methods are
// pure functions over their inputs so adapters can be unit tested with
// fixtures and shared freely between goroutines.
type Adapter interface {
	// Name is the registry key, e.g. "openai".
	Name() string

	// DefaultModel is used when the configuration does not name a model.
	DefaultModel() string

	// DefaultBaseURL is used when the configuration does not override the endpoint.
	DefaultBaseURL() string

	// Endpoint returns the full completions URL for the given base URL and model.
	Endpoint(baseURL, model string) string

	// Headers returns the authentication and content headers for a request.
	Headers(apiKey string) map[string]string

	// BuildPayload serializes a completion request body. The system prompt, if
	// any, is carried in opts; message ordering is preserved.
	BuildPayload(msgs []messages.Message, opts ChatOptions, stream bool) ([]byte, error)

	// ExtractContent pulls the full response text and token usage out of a
	// blocking completion response body.
	ExtractContent(body []byte) (string, Usage, error)

	// ExtractStreamDelta pulls the content delta out of a parsed stream frame.
	// It returns nil (not an empty string) for control frames that carry no
	// text, so the decoder can tell "no content this frame" from "empty
	// content, but a frame".
	ExtractStreamDelta(frame []byte) *string
}

// ChatOptions carries the per-request generation parameters. A fresh value is
// built for every call; it is never shared across calls.
type ChatOptions struct {
	Model        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	_ struct{} // require keyed usage
}

// Usage reports token consumption for a completed request.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Add accumulates usage from another response into this one.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

var registry = haxmap.New[string, Adapter]()

// Register makes an adapter resolvable by name. Adapter subpackages call this
// from init; registering the same name twice replaces the previous entry.
func Register(adapter Adapter) {
	registry.Set(adapter.Name(), adapter)
}

// ForName resolves a registered adapter.
func ForName(name string) (Adapter, error) {
	adapter, ok := registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %v)", name, Names())
	}
	return adapter, nil
}

// Names lists the registered adapter names in sorted order.
func Names() []string {
	names := make([]string, 0, registry.Len())
	registry.ForEach(func(name string, _ Adapter) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}
