package memory

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/fogfish/opts"
	"github.com/tablewise/concierge/messages"
	"github.com/tablewise/concierge/pkg/uuidx"
)

// DefaultWindow is how many recent messages ride along as model context.
const DefaultWindow = 10

// Conversation is a snapshot of one conversation's state. Mutation happens
// only through store operations; snapshots returned by the store are copies.
type Conversation struct {
	ID           string
	Owner        string
	Messages     []messages.Message
	Context      map[string]string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Stats summarizes the store contents.
type Stats struct {
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

type entry struct {
	mu   sync.Mutex // serializes appends per conversation
	conv Conversation
}

// Store holds conversations keyed by id. Operations on different ids never
// block each other; operations on the same id observe a consistent order.
type Store struct {
	entries *haxmap.Map[string, *entry]
	window  int
	clock   func() time.Time
}

var (
	// WithWindow overrides the context window size.
	WithWindow = opts.ForName[Store, int]("window")
	// WithClock injects a clock, used by eviction tests.
	WithClock = opts.ForName[Store, func() time.Time]("clock")
)

// New creates an empty store.
func New(options ...opts.Option[Store]) (*Store, error) {
	store := &Store{
		entries: haxmap.New[string, *entry](),
		window:  DefaultWindow,
		clock:   time.Now,
	}
	if err := opts.Apply(store, options); err != nil {
		return nil, err
	}
	return store, nil
}

// Create starts an empty conversation for the owner and returns its id.
func (s *Store) Create(owner string, context map[string]string) string {
	id := uuidx.NewString()
	now := s.clock()
	s.entries.Set(id, &entry{
		conv: Conversation{
			ID:           id,
			Owner:        owner,
			Context:      maps.Clone(context),
			CreatedAt:    now,
			LastActivity: now,
		},
	})
	return id
}

// AppendTurn appends one or more messages as a single uninterrupted unit.
// Callers writing a user→assistant pair use this so another writer on the
// same conversation can never slot a turn between them.
func (s *Store) AppendTurn(id string, msgs ...messages.Message) error {
	ent, ok := s.entries.Get(id)
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	ent.conv.Messages = append(ent.conv.Messages, msgs...)
	ent.conv.LastActivity = s.clock()
	return nil
}

// MessagesForModel returns the context window for a model call: the system
// prompt (when non-empty) followed by the most recent window-size messages in
// their original order. Stored history is never mutated.
func (s *Store) MessagesForModel(id, systemPrompt string) ([]messages.Message, error) {
	ent, ok := s.entries.Get(id)
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", id)
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	history := ent.conv.Messages
	if len(history) > s.window {
		history = history[len(history)-s.window:]
	}

	out := make([]messages.Message, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, messages.SystemPrompt(systemPrompt))
	}
	out = append(out, history...)
	return out, nil
}

// Get returns a snapshot of the conversation.
func (s *Store) Get(id string) (Conversation, bool) {
	ent, ok := s.entries.Get(id)
	if !ok {
		return Conversation{}, false
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()
	return snapshot(ent.conv), true
}

// ClearHistory drops the message history but keeps the conversation alive.
func (s *Store) ClearHistory(id string) error {
	ent, ok := s.entries.Get(id)
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	ent.mu.Lock()
	defer ent.mu.Unlock()

	ent.conv.Messages = nil
	ent.conv.LastActivity = s.clock()
	return nil
}

// Delete removes the conversation entirely.
func (s *Store) Delete(id string) bool {
	_, existed := s.entries.GetAndDel(id)
	return existed
}

// ForOwner returns snapshots of every conversation belonging to the owner,
// most recently active first.
func (s *Store) ForOwner(owner string) []Conversation {
	var out []Conversation
	s.entries.ForEach(func(_ string, ent *entry) bool {
		ent.mu.Lock()
		if ent.conv.Owner == owner {
			out = append(out, snapshot(ent.conv))
		}
		ent.mu.Unlock()
		return true
	})
	slices.SortFunc(out, func(a, b Conversation) int {
		return b.LastActivity.Compare(a.LastActivity)
	})
	return out
}

// CleanupOlderThan evicts conversations whose last activity is older than
// maxAge and reports how many were removed.
func (s *Store) CleanupOlderThan(maxAge time.Duration) int {
	cutoff := s.clock().Add(-maxAge)
	var stale []string
	s.entries.ForEach(func(id string, ent *entry) bool {
		ent.mu.Lock()
		if ent.conv.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
		ent.mu.Unlock()
		return true
	})
	removed := 0
	for _, id := range stale {
		if s.Delete(id) {
			removed++
		}
	}
	return removed
}

// Stats counts conversations and stored messages.
func (s *Store) Stats() Stats {
	var stats Stats
	s.entries.ForEach(func(_ string, ent *entry) bool {
		ent.mu.Lock()
		stats.Conversations++
		stats.Messages += len(ent.conv.Messages)
		ent.mu.Unlock()
		return true
	})
	return stats
}

func snapshot(conv Conversation) Conversation {
	conv.Messages = slices.Clone(conv.Messages)
	conv.Context = maps.Clone(conv.Context)
	return conv
}
