package messages

import (
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	// RoleUser marks a message authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a message authored by the model.
	RoleAssistant Role = "assistant"
	// RoleSystem marks the system prompt.
	RoleSystem Role = "system"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// Message is a single turn in a conversation. Instances are treated as
// immutable after they have been appended to conversation memory.
type Message struct {
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`

	_ struct{} // require keyed usage
}

// UserPrompt creates a user message with the current timestamp.
func UserPrompt(content string) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

// AssistantReply creates an assistant message with the current timestamp.
func AssistantReply(content string) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

// SystemPrompt creates a system message. System prompts are synthesized per
// request and never stored in conversation memory.
func SystemPrompt(content string) Message {
	return Message{
		Role:    RoleSystem,
		Content: content,
	}
}

// UnmarshalJSON implements json.Unmarshaler, rejecting unknown roles so that
// malformed payloads fail loudly instead of producing a message with an empty
// role.
func (m *Message) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	type alias Message
	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !Role(raw.Role).Valid() {
		return fmt.Errorf("unknown message role %q", raw.Role)
	}
	*m = Message(raw)
	return nil
}
