// Package messages defines the chat message type carried through conversation
// memory, provider payloads, and stream events. Messages are immutable once
// stored; ordering within a conversation is significant.
package messages
