package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pavelanni/patientsim/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient wraps an OpenAI-compatible API client that plays the patient.
type OpenAIClient struct {
	api   *openai.Client
	model string
	opts  Options
}

var _ Generator = (*OpenAIClient)(nil)

// NewOpenAI creates a client for an OpenAI-compatible endpoint such as
// Ollama or vLLM.
func NewOpenAI(baseURL, apiKey, modelName string, opts Options) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		opts:  opts.withDefaults(),
	}
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Complete returns the patient's next reply for the given turns.
func (c *OpenAIClient) Complete(ctx context.Context, turns []model.Turn) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, c.request(turns, false))
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	reply := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "chars", len(reply))
	return reply, nil
}

// Stream requests a streamed reply and calls onChunk for every non-empty
// delta. It returns the accumulated text. When ctx is cancelled or onChunk
// fails, it stops reading and returns the text received so far with the error.
func (c *OpenAIClient) Stream(ctx context.Context, turns []model.Turn, onChunk func(string) error) (string, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, c.request(turns, true))
	if err != nil {
		return "", fmt.Errorf("LLM stream call: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sb.String(), ctxErr
			}
			return sb.String(), fmt.Errorf("LLM stream receive: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return sb.String(), err
			}
		}
	}
	return sb.String(), nil
}

func (c *OpenAIClient) request(turns []model.Turn, stream bool) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toChatMessages(turns),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Stream:      stream,
	}
}

func toChatMessages(turns []model.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		switch t.Role {
		case model.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case model.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    role,
			Content: t.Content,
		})
	}
	return msgs
}
