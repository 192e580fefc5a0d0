package events

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tablewise/concierge/messages"
	"github.com/tablewise/concierge/provider"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	delimJSON    = []byte(`{"type":"delim"}`)
	chunkJSON    = []byte(`{"type":"chunk"}`)
	responseJSON = []byte(`{"type":"response"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

// Event is the closed set of conversation events. The marker method keeps the
// set closed to this package.
type Event interface {
	event()
}

// Delim brackets a streamed delivery ("start" / "end").
type Delim struct {
	ConversationID string `json:"conversation_id"`
	Delim          string `json:"delim"`
}

func (Delim) event() {}

// Chunk carries one streamed content delta.
type Chunk struct {
	ConversationID string          `json:"conversation_id"`
	Content        string          `json:"content"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Chunk) event() {}

// Response carries a committed assistant turn with its usage.
type Response struct {
	ConversationID string           `json:"conversation_id"`
	Message        messages.Message `json:"message"`
	Usage          provider.Usage   `json:"usage"`
	Timestamp      strfmt.DateTime  `json:"timestamp,omitempty"`
}

func (Response) event() {}

// Error reports a failed turn.
type Error struct {
	ConversationID string          `json:"conversation_id"`
	Err            error           `json:"error"`
	Timestamp      strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) event() {}

func (e Error) Error() string {
	return fmt.Sprintf("conversation %s: %v", e.ConversationID, e.Err)
}

// MarshalJSON implements custom JSON marshaling for Delim.
func (d Delim) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(delimJSON, "conversation_id", d.ConversationID)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "delim", d.Delim)
}

// MarshalJSON implements custom JSON marshaling for Chunk.
func (c Chunk) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(chunkJSON, "conversation_id", c.ConversationID)
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "content", c.Content)
	if err != nil {
		return nil, err
	}
	if !c.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", c.Timestamp.String())
	}
	return result, err
}

// MarshalJSON implements custom JSON marshaling for Response.
func (r Response) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(responseJSON, "conversation_id", r.ConversationID)
	if err != nil {
		return nil, err
	}
	msg, err := json.Marshal(r.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "message", msg)
	if err != nil {
		return nil, err
	}
	usage, err := json.Marshal(r.Usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal usage: %w", err)
	}
	result, err = sjson.SetRawBytes(result, "usage", usage)
	if err != nil {
		return nil, err
	}
	if !r.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", r.Timestamp.String())
	}
	return result, err
}

// MarshalJSON implements custom JSON marshaling for Error.
func (e Error) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(errorJSON, "conversation_id", e.ConversationID)
	if err != nil {
		return nil, err
	}
	if e.Err != nil {
		result, err = sjson.SetBytes(result, "error", e.Err.Error())
		if err != nil {
			return nil, err
		}
	}
	if !e.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
	}
	return result, err
}

// ToJSON serializes any event for wire transport.
func ToJSON(event Event) ([]byte, error) {
	return json.Marshal(event)
}

// FromJSON deserializes an event by its type discriminator.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	jv := gjson.ParseBytes(data)
	id := jv.Get("conversation_id").String()

	var ts strfmt.DateTime
	if tsv := jv.Get("timestamp"); tsv.Exists() {
		if err := ts.UnmarshalText([]byte(tsv.String())); err != nil {
			return nil, fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	switch tpe := jv.Get("type").String(); tpe {
	case "delim":
		return Delim{ConversationID: id, Delim: jv.Get("delim").String()}, nil
	case "chunk":
		return Chunk{ConversationID: id, Content: jv.Get("content").String(), Timestamp: ts}, nil
	case "response":
		var msg messages.Message
		if raw := jv.Get("message"); raw.Exists() {
			if err := json.Unmarshal([]byte(raw.Raw), &msg); err != nil {
				return nil, fmt.Errorf("invalid message: %w", err)
			}
		}
		var usage provider.Usage
		if raw := jv.Get("usage"); raw.Exists() {
			if err := json.Unmarshal([]byte(raw.Raw), &usage); err != nil {
				return nil, fmt.Errorf("invalid usage: %w", err)
			}
		}
		return Response{ConversationID: id, Message: msg, Usage: usage, Timestamp: ts}, nil
	case "error":
		return Error{ConversationID: id, Err: errors.New(jv.Get("error").String()), Timestamp: ts}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", tpe)
	}
}
