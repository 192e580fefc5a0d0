package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tablewise/concierge/messages"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New()
	require.NoError(t, err)
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", map[string]string{"venue": "downtown"})

	conv, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "owner-1", conv.Owner)
	assert.Equal(t, "downtown", conv.Context["venue"])
	assert.Empty(t, conv.Messages, "conversations begin empty")
}

func TestAppendTurnPreservesOrder(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)

	require.NoError(t, store.AppendTurn(id,
		messages.UserPrompt("first"),
		messages.AssistantReply("second"),
	))
	require.NoError(t, store.AppendTurn(id, messages.UserPrompt("third")))

	conv, _ := store.Get(id)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "first", conv.Messages[0].Content)
	assert.Equal(t, "second", conv.Messages[1].Content)
	assert.Equal(t, "third", conv.Messages[2].Content)
}

func TestAppendTurnUnknownConversation(t *testing.T) {
	store := newStore(t)
	err := store.AppendTurn("nope", messages.UserPrompt("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMessagesForModelWindow(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)

	// 12 user/assistant pairs.
	for i := 0; i < 12; i++ {
		require.NoError(t, store.AppendTurn(id,
			messages.UserPrompt(fmt.Sprintf("q%d", i)),
			messages.AssistantReply(fmt.Sprintf("a%d", i)),
		))
	}

	window, err := store.MessagesForModel(id, "S")
	require.NoError(t, err)
	require.Len(t, window, DefaultWindow+1, "window plus the system prompt")

	assert.Equal(t, messages.RoleSystem, window[0].Role)
	assert.Equal(t, "S", window[0].Content)

	// The 10 most recent messages, in original order.
	assert.Equal(t, "q7", window[1].Content)
	assert.Equal(t, "a7", window[2].Content)
	assert.Equal(t, "a11", window[len(window)-1].Content)

	// Stored history is untouched.
	conv, _ := store.Get(id)
	assert.Len(t, conv.Messages, 24)
}

func TestMessagesForModelNoSystemPrompt(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)
	require.NoError(t, store.AppendTurn(id, messages.UserPrompt("hello")))

	window, err := store.MessagesForModel(id, "")
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, messages.RoleUser, window[0].Role)
}

func TestMessagesForModelDoesNotAliasHistory(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)
	require.NoError(t, store.AppendTurn(id, messages.UserPrompt("hello")))

	window, err := store.MessagesForModel(id, "S")
	require.NoError(t, err)
	window[1].Content = "mutated"

	conv, _ := store.Get(id)
	assert.Equal(t, "hello", conv.Messages[0].Content)
}

func TestClearHistoryKeepsConversation(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)
	require.NoError(t, store.AppendTurn(id, messages.UserPrompt("hello")))

	require.NoError(t, store.ClearHistory(id))
	conv, ok := store.Get(id)
	require.True(t, ok)
	assert.Empty(t, conv.Messages)
}

func TestDelete(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)
	assert.True(t, store.Delete(id))
	assert.False(t, store.Delete(id))
	_, ok := store.Get(id)
	assert.False(t, ok)
}

func TestForOwner(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := New(WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	require.NoError(t, err)

	first := store.Create("alice", nil)
	store.Create("bob", nil)
	second := store.Create("alice", nil)

	convs := store.ForOwner("alice")
	require.Len(t, convs, 2)
	assert.Equal(t, second, convs[0].ID, "most recently active first")
	assert.Equal(t, first, convs[1].ID)
}

func TestCleanupOlderThan(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store, err := New(WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	stale := store.Create("owner-1", nil)
	now = now.Add(48 * time.Hour)
	fresh := store.Create("owner-1", nil)

	removed := store.CleanupOlderThan(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := store.Get(stale)
	assert.False(t, ok)
	_, ok = store.Get(fresh)
	assert.True(t, ok)
}

func TestStats(t *testing.T) {
	store := newStore(t)
	id1 := store.Create("owner-1", nil)
	store.Create("owner-2", nil)
	require.NoError(t, store.AppendTurn(id1,
		messages.UserPrompt("a"),
		messages.AssistantReply("b"),
	))

	stats := store.Stats()
	assert.Equal(t, 2, stats.Conversations)
	assert.Equal(t, 2, stats.Messages)
}

func TestConcurrentAppendsSameConversation(t *testing.T) {
	store := newStore(t)
	id := store.Create("owner-1", nil)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.AppendTurn(id,
				messages.UserPrompt(fmt.Sprintf("u%d", n)),
				messages.AssistantReply(fmt.Sprintf("a%d", n)),
			)
		}(i)
	}
	wg.Wait()

	conv, _ := store.Get(id)
	require.Len(t, conv.Messages, writers*2)

	// Every user turn is immediately followed by its assistant turn.
	for i := 0; i < len(conv.Messages); i += 2 {
		assert.Equal(t, messages.RoleUser, conv.Messages[i].Role)
		assert.Equal(t, messages.RoleAssistant, conv.Messages[i+1].Role)
		assert.Equal(t, conv.Messages[i].Content[1:], conv.Messages[i+1].Content[1:],
			"pairs stay adjacent under concurrency")
	}
}

func TestConcurrentDifferentConversations(t *testing.T) {
	store := newStore(t)
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = store.Create("owner-1", nil)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = store.AppendTurn(id, messages.UserPrompt("x"))
			}
		}(id)
	}
	wg.Wait()

	stats := store.Stats()
	assert.Equal(t, 8*50, stats.Messages)
}
