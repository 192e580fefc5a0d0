package concierge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	"github.com/tablewise/concierge/events"
	"github.com/tablewise/concierge/events/broker"
	"github.com/tablewise/concierge/guardrails"
	"github.com/tablewise/concierge/memory"
	"github.com/tablewise/concierge/messages"
	"github.com/tablewise/concierge/pkg/slogx"
	"github.com/tablewise/concierge/provider"
	"github.com/tablewise/concierge/sse"
	"github.com/tablewise/concierge/transport"

	// Register the built-in provider adapters.
	_ "github.com/tablewise/concierge/provider/anthropic"
	_ "github.com/tablewise/concierge/provider/azure"
	_ "github.com/tablewise/concierge/provider/openai"
)

const (
	defaultSystemPrompt = "You are an analytics assistant for restaurant operators. " +
		"Answer questions about sales, covers, labor and food costs concisely, " +
		"and say so when the data doesn't support an answer."

	defaultWelcome = "Hi! Ask me anything about your restaurant's performance."

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// Reply is the result of a successful blocking round trip. Warnings is
// non-empty when output guardrails sanitized the response.
type Reply struct {
	Message  string
	Usage    provider.Usage
	Warnings []string
}

// StreamDelta is one unit of an incrementally delivered response.
// FullContent accumulates the deltas; on the terminal delta it carries the
// validated, formatted final text. Err is set only on the terminal delta,
// when the stream failed mid-flight.
type StreamDelta struct {
	Content     string
	FullContent string
	Done        bool
	Err         error
}

// Started is the result of opening a conversation.
type Started struct {
	ConversationID string
	WelcomeMessage string
}

// Stats reports the service's runtime state.
type Stats struct {
	Memory      memory.Stats `json:"memory"`
	Provider    string       `json:"provider"`
	Model       string       `json:"model"`
	Initialized bool         `json:"initialized"`
}

// session holds everything that only exists after Initialize. It is immutable
// once published.
type session struct {
	adapter provider.Adapter
	cfg     provider.Config
	client  *transport.Client
}

// ChatService orchestrates conversations against one configured LLM provider.
// Construct it once at application start; it is safe for concurrent use.
type ChatService struct {
	store        *memory.Store
	broker       broker.Broker
	client       *transport.Client
	systemPrompt string
	welcome      string
	temperature  float64
	maxTokens    int

	mu   sync.RWMutex
	sess *session
}

var (
	// WithMemory overrides the conversation store.
	WithMemory = opts.ForName[ChatService, *memory.Store]("store")
	// WithBroker overrides the event broker; the default is in-process.
	WithBroker = opts.ForName[ChatService, broker.Broker]("broker")
	// WithTransport injects a preconfigured transport client, replacing the
	// one Initialize would build from the provider config.
	WithTransport = opts.ForName[ChatService, *transport.Client]("client")
	// WithSystemPrompt overrides the assistant instructions.
	WithSystemPrompt = opts.ForName[ChatService, string]("systemPrompt")
	// WithWelcome overrides the conversation opener.
	WithWelcome = opts.ForName[ChatService, string]("welcome")
	// WithTemperature overrides the sampling temperature.
	WithTemperature = opts.ForName[ChatService, float64]("temperature")
	// WithMaxTokens overrides the completion token cap.
	WithMaxTokens = opts.ForName[ChatService, int]("maxTokens")
)

// New constructs an uninitialized chat service.
func New(options ...opts.Option[ChatService]) (*ChatService, error) {
	store, err := memory.New()
	if err != nil {
		return nil, err
	}
	svc := &ChatService{
		store:        store,
		broker:       broker.Local(),
		systemPrompt: defaultSystemPrompt,
		welcome:      defaultWelcome,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
	}
	if err := opts.Apply(svc, options); err != nil {
		return nil, err
	}
	return svc, nil
}

// Initialize resolves the provider adapter and builds the transport. It must
// be called exactly once before any conversation operation; configuration
// problems surface here and never reach a request attempt.
func (s *ChatService) Initialize(cfg provider.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sess != nil {
		return ErrAlreadyInitialized
	}

	adapter, err := cfg.Resolve()
	if err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}

	client := s.client
	if client == nil {
		client, err = transport.New(
			transport.WithMaxRetries(cfg.MaxRetries),
			transport.WithTimeout(cfg.Timeout),
		)
		if err != nil {
			return err
		}
	}

	s.sess = &session{adapter: adapter, cfg: cfg, client: client}
	slog.Info("chat service initialized",
		slog.String("provider", adapter.Name()),
		slog.String("model", cfg.Model),
	)
	return nil
}

func (s *ChatService) session() (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return nil, ErrNotInitialized
	}
	return s.sess, nil
}

// StartConversation opens an empty conversation for the owner and returns its
// id together with the welcome message. The welcome is not committed to
// history.
func (s *ChatService) StartConversation(owner string, context map[string]string) (Started, error) {
	if _, err := s.session(); err != nil {
		return Started{}, err
	}
	id := s.store.Create(owner, context)
	return Started{ConversationID: id, WelcomeMessage: s.welcome}, nil
}

// SendMessage performs a blocking round trip: validate input, call the
// provider with the windowed history, validate the output, and commit the
// user and assistant turns as one unit. On a safety rejection nothing is sent
// and nothing is stored.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, text string) (Reply, error) {
	sess, err := s.session()
	if err != nil {
		return Reply{}, err
	}

	userMsg, req, err := s.prepare(sess, conversationID, text, false)
	if err != nil {
		return Reply{}, err
	}

	topic := s.broker.Topic(ctx, conversationID)

	body, err := sess.client.Send(ctx, req)
	if err != nil {
		s.publish(ctx, topic, events.Error{ConversationID: conversationID, Err: err, Timestamp: now()})
		return Reply{}, err
	}

	content, usage, err := sess.adapter.ExtractContent(body)
	if err != nil {
		s.publish(ctx, topic, events.Error{ConversationID: conversationID, Err: err, Timestamp: now()})
		return Reply{}, fmt.Errorf("parsing provider response: %w", err)
	}

	final, warnings := s.finishOutput(ctx, conversationID, content)
	assistantMsg := messages.AssistantReply(final)
	if err := s.store.AppendTurn(conversationID, userMsg, assistantMsg); err != nil {
		return Reply{}, err
	}

	s.publish(ctx, topic, events.Response{
		ConversationID: conversationID,
		Message:        assistantMsg,
		Usage:          usage,
		Timestamp:      now(),
	})
	return Reply{Message: final, Usage: usage, Warnings: warnings}, nil
}

// SendMessageStream performs an incrementally delivered round trip. Deltas
// are relayed as they arrive; output validation and the memory commit happen
// only once the terminal delta is reached, so stored history always sees the
// final validated text, never partial content. Cancelling ctx abandons the
// stream and releases the connection without committing anything.
func (s *ChatService) SendMessageStream(ctx context.Context, conversationID, text string) (<-chan StreamDelta, error) {
	sess, err := s.session()
	if err != nil {
		return nil, err
	}

	userMsg, req, err := s.prepare(sess, conversationID, text, true)
	if err != nil {
		return nil, err
	}

	body, err := sess.client.SendStream(ctx, req)
	if err != nil {
		topic := s.broker.Topic(ctx, conversationID)
		s.publish(ctx, topic, events.Error{ConversationID: conversationID, Err: err, Timestamp: now()})
		return nil, err
	}

	chunks := sse.Decode(ctx, body, sess.adapter.ExtractStreamDelta)
	deltas := make(chan StreamDelta, 10)

	go func() {
		defer close(deltas)

		topic := s.broker.Topic(ctx, conversationID)
		s.publish(ctx, topic, events.Delim{ConversationID: conversationID, Delim: "start"})

		var full strings.Builder
		for chunk := range chunks {
			if chunk.Done {
				break
			}
			full.WriteString(chunk.Content)
			s.publish(ctx, topic, events.Chunk{
				ConversationID: conversationID,
				Content:        chunk.Content,
				Timestamp:      now(),
			})
			select {
			case deltas <- StreamDelta{Content: chunk.Content, FullContent: full.String()}:
			case <-ctx.Done():
				return
			}
		}

		if ctx.Err() != nil {
			// Abandoned mid-stream; partial content is never committed.
			return
		}

		final, _ := s.finishOutput(ctx, conversationID, full.String())
		assistantMsg := messages.AssistantReply(final)
		if err := s.store.AppendTurn(conversationID, userMsg, assistantMsg); err != nil {
			select {
			case deltas <- StreamDelta{Done: true, FullContent: final, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		s.publish(ctx, topic, events.Delim{ConversationID: conversationID, Delim: "end"})
		s.publish(ctx, topic, events.Response{
			ConversationID: conversationID,
			Message:        assistantMsg,
			Timestamp:      now(),
		})

		select {
		case deltas <- StreamDelta{Done: true, FullContent: final}:
		case <-ctx.Done():
		}
	}()

	return deltas, nil
}

// prepare runs input guardrails and builds the provider request. The returned
// user message is not yet committed; commits happen with the assistant turn
// so a pair is never interleaved.
func (s *ChatService) prepare(sess *session, conversationID, text string, stream bool) (messages.Message, transport.Request, error) {
	verdict := guardrails.ValidateInput(text)
	if !verdict.Safe {
		return messages.Message{}, transport.Request{}, &SafetyViolationError{Reasons: verdict.Reasons}
	}

	window, err := s.store.MessagesForModel(conversationID, "")
	if err != nil {
		return messages.Message{}, transport.Request{}, err
	}

	userMsg := messages.UserPrompt(text)
	payload, err := sess.adapter.BuildPayload(append(window, userMsg), provider.ChatOptions{
		Model:        sess.cfg.Model,
		SystemPrompt: s.systemPrompt,
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	}, stream)
	if err != nil {
		return messages.Message{}, transport.Request{}, fmt.Errorf("building payload: %w", err)
	}

	return userMsg, transport.Request{
		URL:     sess.adapter.Endpoint(sess.cfg.BaseURL, sess.cfg.Model),
		Headers: sess.adapter.Headers(sess.cfg.APIKey),
		Body:    payload,
	}, nil
}

// finishOutput validates and formats model output. Unsafe output never blocks
// delivery; it is sanitized, logged, and flagged through warnings.
func (s *ChatService) finishOutput(ctx context.Context, conversationID, content string) (string, []string) {
	verdict := guardrails.ValidateOutput(content)
	if !verdict.Safe {
		slog.WarnContext(ctx, "output sanitized by guardrails",
			slog.String("conversation_id", conversationID),
			slog.Any("warnings", verdict.Warnings),
		)
	}
	return guardrails.FormatMarkdown(verdict.Sanitized), verdict.Warnings
}

func (s *ChatService) publish(ctx context.Context, topic broker.Topic, event events.Event) {
	if err := topic.Publish(ctx, event); err != nil && ctx.Err() == nil {
		slog.WarnContext(ctx, "failed to publish event", slogx.Error(err))
	}
}

// ClearConversation drops a conversation's history but keeps it alive.
func (s *ChatService) ClearConversation(conversationID string) error {
	return s.store.ClearHistory(conversationID)
}

// DeleteConversation removes a conversation entirely.
func (s *ChatService) DeleteConversation(conversationID string) bool {
	return s.store.Delete(conversationID)
}

// ConversationHistory returns the stored messages for a conversation.
func (s *ChatService) ConversationHistory(conversationID string) ([]messages.Message, error) {
	conv, ok := s.store.Get(conversationID)
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	return conv.Messages, nil
}

// UserConversations lists an owner's conversations, most recently active first.
func (s *ChatService) UserConversations(owner string) []memory.Conversation {
	return s.store.ForOwner(owner)
}

// Stats reports memory counters and the active provider configuration.
func (s *ChatService) Stats() Stats {
	stats := Stats{Memory: s.store.Stats()}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess != nil {
		stats.Provider = s.sess.adapter.Name()
		stats.Model = s.sess.cfg.Model
		stats.Initialized = true
	}
	return stats
}

// Cleanup evicts conversations idle longer than maxAge and reports how many
// were removed.
func (s *ChatService) Cleanup(maxAge time.Duration) int {
	return s.store.CleanupOlderThan(maxAge)
}

func now() strfmt.DateTime {
	return strfmt.DateTime(time.Now())
}
