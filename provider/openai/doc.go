// Package openai implements the provider adapter for OpenAI's chat
// completions API and any API that speaks the same envelope.
package openai
