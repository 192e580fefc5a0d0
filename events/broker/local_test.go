package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablewise/concierge/events"
)

type recordingHook struct {
	mu        sync.Mutex
	chunks    []events.Chunk
	responses []events.Response
	errors    []error
}

func (r *recordingHook) OnChunk(_ context.Context, chunk events.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, chunk)
}

func (r *recordingHook) OnResponse(_ context.Context, response events.Response) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response)
}

func (r *recordingHook) OnError(_ context.Context, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recordingHook) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks), len(r.responses), len(r.errors)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestLocalBrokerDelivers(t *testing.T) {
	ctx := context.Background()
	topic := Local().Topic(ctx, "c1")

	hook := &recordingHook{}
	sub, err := topic.Subscribe(ctx, hook)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, topic.Publish(ctx, events.Chunk{ConversationID: "c1", Content: "Hel"}))
	require.NoError(t, topic.Publish(ctx, events.Chunk{ConversationID: "c1", Content: "lo"}))
	require.NoError(t, topic.Publish(ctx, events.Response{ConversationID: "c1"}))
	require.NoError(t, topic.Publish(ctx, events.Error{ConversationID: "c1", Err: errors.New("boom")}))

	eventually(t, func() bool {
		chunks, responses, errs := hook.counts()
		return chunks == 2 && responses == 1 && errs == 1
	})

	assert.Equal(t, "Hel", hook.chunks[0].Content)
	assert.Equal(t, "lo", hook.chunks[1].Content)
}

func TestLocalBrokerDelimNotForwarded(t *testing.T) {
	ctx := context.Background()
	topic := Local().Topic(ctx, "c1")

	hook := &recordingHook{}
	sub, err := topic.Subscribe(ctx, hook)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, topic.Publish(ctx, events.Delim{ConversationID: "c1", Delim: "start"}))
	require.NoError(t, topic.Publish(ctx, events.Chunk{ConversationID: "c1", Content: "x"}))

	eventually(t, func() bool {
		chunks, _, _ := hook.counts()
		return chunks == 1
	})
	_, responses, errs := hook.counts()
	assert.Zero(t, responses)
	assert.Zero(t, errs)
}

func TestLocalBrokerSubscribeRequiresHook(t *testing.T) {
	topic := Local().Topic(context.Background(), "c1")
	_, err := topic.Subscribe(context.Background(), nil)
	require.Error(t, err)
}

func TestLocalBrokerUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	topic := Local().Topic(ctx, "c1")

	hook := &recordingHook{}
	sub, err := topic.Subscribe(ctx, hook)
	require.NoError(t, err)

	require.NoError(t, topic.Publish(ctx, events.Chunk{ConversationID: "c1", Content: "x"}))
	eventually(t, func() bool {
		chunks, _, _ := hook.counts()
		return chunks == 1
	})

	sub.Unsubscribe()
	require.NoError(t, topic.Publish(ctx, events.Chunk{ConversationID: "c1", Content: "y"}))

	time.Sleep(50 * time.Millisecond)
	chunks, _, _ := hook.counts()
	assert.Equal(t, 1, chunks, "no delivery after unsubscribe")
}

func TestLocalBrokerTopicsAreIndependent(t *testing.T) {
	ctx := context.Background()
	b := Local()

	hook1 := &recordingHook{}
	hook2 := &recordingHook{}

	sub1, err := b.Topic(ctx, "c1").Subscribe(ctx, hook1)
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	sub2, err := b.Topic(ctx, "c2").Subscribe(ctx, hook2)
	require.NoError(t, err)
	defer sub2.Unsubscribe()

	require.NoError(t, b.Topic(ctx, "c1").Publish(ctx, events.Chunk{ConversationID: "c1", Content: "x"}))

	eventually(t, func() bool {
		chunks, _, _ := hook1.counts()
		return chunks == 1
	})
	chunks, _, _ := hook2.counts()
	assert.Zero(t, chunks, "c2 subscriber sees nothing from c1")
}
