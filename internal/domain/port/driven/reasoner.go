package driven

import (
	"context"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
)

// ToolSchema declares one tool the reasoning provider may invoke.
// Properties follows JSON Schema object conventions (name -> {type,
// description}).
type ToolSchema struct {
	Name        string
	Description string
	Properties  map[string]ToolProperty
	Required    []string
}

// ToolProperty describes one field of a tool's input schema.
type ToolProperty struct {
	Type        string
	Description string
}

// ConverseRequest carries everything for one reasoning round trip. The full
// transcript is re-sent each turn; the provider holds no state between
// calls.
type ConverseRequest struct {
	SystemPrompt string
	Transcript   model.Transcript
	Tools        []ToolSchema
}

// AssistantTurn is the provider's response to one Converse call: free text
// plus zero or more tool requests. A turn with no tool requests is
// terminal.
type AssistantTurn struct {
	Text         string
	ToolRequests []model.ToolRequest
}

// Reasoner defines the driven port for the reasoning-engine provider.
type Reasoner interface {
	Converse(ctx context.Context, req ConverseRequest) (*AssistantTurn, error)
}
