// Package transport issues the HTTP requests built by provider adapters. The
// blocking path owns per-attempt timeouts and exponential-backoff retries; the
// streaming path performs a single attempt and hands the open body to the SSE
// decoder. Non-2xx responses become classified StatusError values.
package transport
