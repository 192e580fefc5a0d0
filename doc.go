// Package concierge is a provider-agnostic streaming LLM chat layer for the
// tablewise restaurant-operations dashboard. It composes provider adapters,
// an HTTP transport with retry and timeout handling, an SSE stream decoder,
// per-conversation memory with context windowing, and input/output safety
// guardrails behind two entry points: ChatService.SendMessage and
// ChatService.SendMessageStream.
//
// A ChatService is constructed once at application start and initialized with
// a provider configuration:
//
//	svc, err := concierge.New(concierge.WithSystemPrompt("You are a restaurant analyst."))
//	if err != nil { ... }
//	if err := svc.Initialize(provider.Config{Provider: "openai", APIKey: key}); err != nil { ... }
//
//	started, _ := svc.StartConversation("user-17", nil)
//	for delta := range must(svc.SendMessageStream(ctx, started.ConversationID, "How was dinner service?")) {
//		fmt.Print(delta.Content)
//	}
package concierge
