// Package memory keeps per-conversation message history for the lifetime of
// the process. It is the only shared mutable state in the system: the store is
// a concurrent map keyed by conversation id, and appends within one
// conversation are serialized so concurrent turns never interleave.
package memory
