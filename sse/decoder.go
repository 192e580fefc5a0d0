// Package sse decodes server-sent-event completion streams into content
// chunks. The decoder owns the response body: it is closed exactly once on
// every exit path, whether the stream finishes, fails, or the consumer
// abandons it by cancelling the context.
package sse

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tablewise/concierge/pkg/slogx"
	"github.com/tidwall/gjson"
)

// maxLineSize is the maximum size of a single SSE line (1 MB). The default
// bufio.Scanner limit of 64 KiB is too small for long completion deltas.
const maxLineSize = 1 * 1024 * 1024

// doneSentinel ends the stream (OpenAI convention; Azure uses it too).
const doneSentinel = "[DONE]"

// Chunk is one decoded unit of a streamed completion. Zero or more chunks with
// Done=false are followed by exactly one terminal chunk with Done=true.
// Concatenating Content in emission order reproduces the full response text.
type Chunk struct {
	Content string
	Done    bool
}

// ExtractFunc pulls the content delta out of a parsed stream frame. A nil
// result means the frame is a control frame with no text.
type ExtractFunc func(frame []byte) *string

// Decode consumes the body as a line-delimited SSE stream and produces a lazy,
// finite, non-restartable sequence of chunks on the returned channel.
//
// Frames arrive as "data: <json>" lines; blank lines and ":" comments are
// skipped, and a "data: [DONE]" line terminates the sequence. Malformed frames
// are repaired when possible, otherwise logged and skipped; they are never
// fatal to the stream. If the upstream closes without an explicit [DONE] the
// terminal chunk is still emitted so consumers never hang waiting for it.
//
// Cancelling ctx abandons the stream: the channel closes and the body is
// released without waiting for the sentinel.
func Decode(ctx context.Context, body io.ReadCloser, extract ExtractFunc) <-chan Chunk {
	chunks := make(chan Chunk, 10)

	go func() {
		defer close(chunks)
		defer func() {
			if err := body.Close(); err != nil {
				slog.Warn("failed to close stream body", slogx.Error(err))
			}
		}()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				// Other SSE fields (event:, id:, retry:) carry no payload.
				continue
			}

			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == doneSentinel {
				emit(ctx, chunks, Chunk{Done: true})
				return
			}

			delta := extractDelta(ctx, payload, extract)
			if delta == nil {
				continue
			}
			if !emit(ctx, chunks, Chunk{Content: *delta}) {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "stream ended with scanner error", slogx.Error(err))
		}

		// Upstream closed without [DONE]; consumers still get a terminal chunk.
		emit(ctx, chunks, Chunk{Done: true})
	}()

	return chunks
}

// extractDelta parses one frame, attempting a repair pass on malformed JSON
// before giving up. Unparseable frames are logged and skipped.
func extractDelta(ctx context.Context, payload string, extract ExtractFunc) *string {
	if !gjson.Valid(payload) {
		repaired, err := jsonrepair.JSONRepair(payload)
		if err != nil || !gjson.Valid(repaired) {
			slog.WarnContext(ctx, "skipping malformed stream frame",
				slog.String("frame", truncate(payload, 256)),
			)
			return nil
		}
		payload = repaired
	}
	return extract([]byte(payload))
}

func emit(ctx context.Context, chunks chan<- Chunk, chunk Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
