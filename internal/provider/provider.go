// Package provider defines the completion-provider boundary and its OpenAI
// implementation.
package provider

import (
	"context"
)

// Chat message roles sent to the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the context window sent to the provider.
type Message struct {
	Role    string
	Content string
}

// Completer produces a raw text completion for a context window. A single
// attempt is made per call; retry policy, if any, belongs to the caller's
// contract with its own callers, not here.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
