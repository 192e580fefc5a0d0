// Package provider defines the adapter contract between the chat orchestration
// layer and third-party LLM APIs. Adapters are pure data transforms: they build
// request payloads, headers and endpoints, and extract content from response
// envelopes. They perform no I/O; the transport package owns the wire.
//
// Concrete adapters live in subpackages (openai, anthropic, azure) and register
// themselves with this package's registry so callers can resolve one by name.
package provider
