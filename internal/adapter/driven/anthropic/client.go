// Package anthropic implements the Reasoner port using the official
// Anthropic Messages API client.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ericfisherdev/depsentry/internal/domain/model"
	"github.com/ericfisherdev/depsentry/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Reasoner = (*Client)(nil)

const defaultMaxTokens = 4096

// Client implements the driven.Reasoner port over the Anthropic Messages API.
type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewClient creates a Reasoner backed by the Anthropic API. The model name
// comes from configuration so policy variants can pin different models.
func NewClient(apiKey, modelName string) *Client {
	return &Client{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(modelName),
		maxTokens: defaultMaxTokens,
	}
}

// Converse sends the accumulated transcript plus tool declarations and
// returns the next assistant turn. The provider holds no state between
// calls; the whole transcript is re-sent every time.
func (c *Client) Converse(ctx context.Context, req driven.ConverseRequest) (*driven.AssistantTurn, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.SystemPrompt},
		},
		Messages: mapTranscript(req.Transcript),
		Tools:    mapTools(req.Tools),
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages call: %w", err)
	}

	turn := &driven.AssistantTurn{}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			turn.Text += variant.Text
		case anthropic.ToolUseBlock:
			turn.ToolRequests = append(turn.ToolRequests, model.ToolRequest{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: variant.Input,
			})
		}
	}

	return turn, nil
}

// mapTranscript converts the domain transcript into Messages API turns.
// Assistant turns must echo their tool_use blocks verbatim so that the
// tool_result blocks in the following user turn correlate by ID.
func mapTranscript(transcript model.Transcript) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(transcript))

	for _, turn := range transcript {
		switch turn.Kind {
		case model.TurnUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))

		case model.TurnAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if turn.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(turn.Text))
			}
			for _, tr := range turn.ToolRequests {
				blocks = append(blocks, anthropic.NewToolUseBlock(tr.ID, tr.Input, tr.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))

		case model.TurnToolResults:
			var blocks []anthropic.ContentBlockParamUnion
			for _, res := range turn.ToolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(res.ID, res.Content, res.IsError))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}

	return messages
}

// mapTools converts port tool schemas into Anthropic tool declarations.
func mapTools(schemas []driven.ToolSchema) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(schemas))

	for _, schema := range schemas {
		properties := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			properties[name] = map[string]any{
				"type":        prop.Type,
				"description": prop.Description,
			}
		}

		tool := anthropic.ToolParam{
			Name:        schema.Name,
			Description: anthropic.String(schema.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
			},
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}

	return tools
}
