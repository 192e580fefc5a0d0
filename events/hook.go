package events

import (
	"context"
	"log/slog"
)

// Hook receives conversation events from a broker subscription. All methods
// must be implemented; consumers make an explicit decision about every event
// type, even if the decision is to ignore it.
type Hook interface {
	OnChunk(context.Context, Chunk)

	OnResponse(context.Context, Response)

	OnError(context.Context, error)
}

// LoggingHook returns a hook that logs every event through slog. Useful as a
// default subscriber and in tests.
func LoggingHook() Hook {
	return loggingHook{}
}

type loggingHook struct{}

func (loggingHook) OnChunk(ctx context.Context, chunk Chunk) {
	slog.DebugContext(ctx, "assistant chunk",
		slog.String("conversation_id", chunk.ConversationID),
		slog.Int("content_len", len(chunk.Content)),
	)
}

func (loggingHook) OnResponse(ctx context.Context, response Response) {
	slog.InfoContext(ctx, "assistant response",
		slog.String("conversation_id", response.ConversationID),
		slog.Int64("total_tokens", response.Usage.TotalTokens),
	)
}

func (loggingHook) OnError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "conversation error", slog.String("error", err.Error()))
}
