package anthropic

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
	defaultModel   = "claude-3-5-haiku-latest"
	defaultBaseURL = "https://api.anthropic.com"

	apiVersion = "2023-06-01"

	// The Messages API requires max_tokens on every request.
	defaultMaxTokens = 4096
)

func init() {
	provider.Register(Adapter{})
}

// Adapter is the Anthropic Messages API adapter. The zero value is ready to use.
type Adapter struct{}

func (Adapter) Name() string           { return "anthropic" }
func (Adapter) DefaultModel() string   { return defaultModel }
func (Adapter) DefaultBaseURL() string { return defaultBaseURL }

func (Adapter) Endpoint(baseURL, _ string) string {
	return strings.TrimRight(baseURL, "/") + "/v1/messages"
}

// Headers returns the x-api-key and version headers; Anthropic does not use
// bearer tokens.
func (Adapter) Headers(apiKey string) map[string]string {
	return map[string]string{
		"Content-Type":      "application/json",
		"x-api-key":         apiKey,
		"anthropic-version": apiVersion,
	}
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int64         `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// BuildPayload serializes a Messages API request. The system prompt rides in
// the top-level system field; only user and assistant turns go in messages.
func (Adapter) BuildPayload(msgs []messages.Message, opts provider.ChatOptions, stream bool) ([]byte, error) {
	wire := make([]wireMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == messages.RoleSystem {
			continue
		}
		wire = append(wire, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}

	req := messagesRequest{
		Model:     opts.Model,
		System:    opts.SystemPrompt,
		Messages:  wire,
		MaxTokens: defaultMaxTokens,
		Stream:    stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = int64(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		req.Temperature = swag.Float64(opts.Temperature)
	}
	return json.Marshal(req)
}

// ExtractContent joins the text blocks of a Messages API response and maps
// input/output token counts onto the shared usage shape.
func (Adapter) ExtractContent(body []byte) (string, provider.Usage, error) {
	if !gjson.ValidBytes(body) {
		return "", provider.Usage{}, fmt.Errorf("invalid messages response: %s", body)
	}
	blocks := gjson.GetBytes(body, "content")
	if !blocks.Exists() || !blocks.IsArray() {
		return "", provider.Usage{}, fmt.Errorf("messages response has no content blocks")
	}

	var sb strings.Builder
	blocks.ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			sb.WriteString(block.Get("text").String())
		}
		return true
	})

	input := gjson.GetBytes(body, "usage.input_tokens").Int()
	output := gjson.GetBytes(body, "usage.output_tokens").Int()
	usage := provider.Usage{
		PromptTokens:     input,
		CompletionTokens: output,
		TotalTokens:      input + output,
	}
	return sb.String(), usage, nil
}

// ExtractStreamDelta pulls text out of content_block_delta frames. All other
// lifecycle frames (message_start, content_block_start, message_delta,
// message_stop, ping) yield nil.
func (Adapter) ExtractStreamDelta(frame []byte) *string {
	if gjson.GetBytes(frame, "type").String() != "content_block_delta" {
		return nil
	}
	delta := gjson.GetBytes(frame, "delta.text")
	if !delta.Exists() {
		return nil
	}
	return swag.String(delta.String())
}
