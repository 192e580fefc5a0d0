package openai

import (
	"fmt"
	"strings"

	"github.com/go-openapi/swag"
	json "github.com/goccy/go-json"
	"github.com/tablewise/concierge/messages"
	"github.com/tablewise/concierge/provider"
	"github.com/tidwall/gjson"
)

const (
	defaultModel   = "gpt-4o-mini"
	defaultBaseURL = "https://api.openai.com/v1"
)

func init() {
	provider.Register(Adapter{})
}

// Adapter is the OpenAI chat-completions adapter. The zero value is ready to use.
type Adapter struct{}

func (Adapter) Name() string           { return "openai" }
func (Adapter) DefaultModel() string   { return defaultModel }
func (Adapter) DefaultBaseURL() string { return defaultBaseURL }

// Endpoint returns the chat completions URL. The model rides in the body, not
// the URL, for this provider.
func (Adapter) Endpoint(baseURL, _ string) string {
	return strings.TrimRight(baseURL, "/") + "/chat/completions"
}

// Headers returns bearer-token authentication headers.
func (Adapter) Headers(apiKey string) map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + apiKey,
	}
}

// wireMessage is the on-the-wire message shape shared with Azure OpenAI.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the chat completions request body. Optional knobs are
// pointers so zero values are omitted instead of sent as explicit zeros.
type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int64        `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// BuildPayload serializes a chat completions request. The system prompt, when
// present, becomes the leading message; conversation ordering is preserved.
func (Adapter) BuildPayload(msgs []messages.Message, opts provider.ChatOptions, stream bool) ([]byte, error) {
	return json.Marshal(buildRequest(msgs, opts, stream))
}

func buildRequest(msgs []messages.Message, opts provider.ChatOptions, stream bool) completionRequest {
	wire := make([]wireMessage, 0, len(msgs)+1)
	if opts.SystemPrompt != "" {
		wire = append(wire, wireMessage{Role: string(messages.RoleSystem), Content: opts.SystemPrompt})
	}
	for _, msg := range msgs {
		wire = append(wire, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	req := completionRequest{
		Model:    opts.Model,
		Messages: wire,
		Stream:   stream,
	}
	if opts.Temperature > 0 {
		req.Temperature = swag.Float64(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = swag.Int64(int64(opts.MaxTokens))
	}
	return req
}

// ExtractContent pulls the message text and token usage from a blocking
// completion response body.
func (Adapter) ExtractContent(body []byte) (string, provider.Usage, error) {
	if !gjson.ValidBytes(body) {
		return "", provider.Usage{}, fmt.Errorf("invalid completion response: %s", body)
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", provider.Usage{}, fmt.Errorf("completion response has no choices")
	}
	return content.String(), extractUsage(body), nil
}

func extractUsage(body []byte) provider.Usage {
	return provider.Usage{
		PromptTokens:     gjson.GetBytes(body, "usage.prompt_tokens").Int(),
		CompletionTokens: gjson.GetBytes(body, "usage.completion_tokens").Int(),
		TotalTokens:      gjson.GetBytes(body, "usage.total_tokens").Int(),
	}
}

// ExtractStreamDelta pulls the content delta from a stream frame. Frames that
// carry no text (role announcements, finish_reason markers) yield nil.
func (Adapter) ExtractStreamDelta(frame []byte) *string {
	delta := gjson.GetBytes(frame, "choices.0.delta.content")
	if !delta.Exists() {
		return nil
	}
	return swag.String(delta.String())
}
