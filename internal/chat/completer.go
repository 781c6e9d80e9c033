// Package chat grounds LLM answers and evolution analysis in indexed reports.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is a single completion call.
type Request struct {
	System   string
	Messages []Message
	JSON     bool // ask for a JSON object response
}

// Completer produces the model's reply to a request.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  openai.ChatModel
}

var _ Completer = (*OpenAICompleter)(nil)

// NewOpenAICompleter creates a completer. An empty model selects DefaultModel.
func NewOpenAICompleter(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAICompleter{client: client, model: openai.ChatModel(model)}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Text))
		default:
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    c.model,
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
