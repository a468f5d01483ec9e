package model

import "encoding/json"

// TurnKind discriminates the three kinds of transcript turns.
type TurnKind string

const (
	TurnUser        TurnKind = "user"        // Free text from the agent (context, instructions).
	TurnAssistant   TurnKind = "assistant"   // Model utterance, possibly with tool requests.
	TurnToolResults TurnKind = "tool_results" // Results injected for the preceding assistant turn.
)

// ToolRequest is a single tool invocation requested by the model. ID is the
// provider-assigned correlation ID that the matching ToolResult must echo.
type ToolRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult is the synchronously computed output of one tool request.
// Failures are carried as textual content with IsError set, never as Go
// errors, so the model can adapt and the loop continues.
type ToolResult struct {
	ID      string
	Name    string
	Content string
	IsError bool
}

// Turn is one entry in a reasoning transcript. Exactly one of Text,
// ToolRequests, or ToolResults is meaningful depending on Kind; assistant
// turns may carry both text and tool requests.
type Turn struct {
	Kind         TurnKind
	Text         string
	ToolRequests []ToolRequest
	ToolResults  []ToolResult
}

// Transcript is the ordered conversation exchanged with the reasoning
// provider. It grows monotonically during one invocation and is discarded
// when the invocation ends.
type Transcript []Turn

// Append returns a new transcript with the turn added. The receiver is not
// modified, keeping earlier snapshots valid.
func (t Transcript) Append(turn Turn) Transcript {
	out := make(Transcript, len(t), len(t)+1)
	copy(out, t)
	return append(out, turn)
}
