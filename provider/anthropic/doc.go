// Package anthropic implements the provider adapter for Anthropic's Messages
// API. The envelope differs from the OpenAI shape in three ways: the system
// prompt is a top-level field, authentication uses x-api-key plus a version
// header, and response content is a list of typed blocks.
package anthropic
