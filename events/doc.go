// Package events defines the conversation event stream the orchestrator
// publishes while serving a turn: user prompts, assistant content chunks,
// final responses, and errors. Dashboard widgets subscribe through a broker
// (see the broker subpackage) rather than polling conversation memory.
package events
