package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pavelanni/patientsim/internal/model"
)

// anthropicModels maps friendly names to Anthropic model IDs.
var anthropicModels = map[string]string{
	"claude-sonnet": "claude-sonnet-4-20250514",
	"claude-haiku":  "claude-haiku-4-5-20251001",
}

// AnthropicClient plays the patient through the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	opts   Options
}

var _ Generator = (*AnthropicClient)(nil)

// NewAnthropic creates an Anthropic client. extra options are applied after
// the API key and are used by tests to point at a fake server.
func NewAnthropic(apiKey, modelName string, opts Options, extra ...option.RequestOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, extra...)
	client := anthropic.NewClient(reqOpts...)
	return &AnthropicClient{
		client: &client,
		model:  resolveModel(modelName, anthropicModels),
		opts:   opts.withDefaults(),
	}, nil
}

func (c *AnthropicClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *AnthropicClient) Complete(ctx context.Context, turns []model.Turn) (string, error) {
	msg, err := c.client.Messages.New(ctx, c.params(turns))
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	slog.Debug("LLM response", "model", c.model, "chars", sb.Len())
	return sb.String(), nil
}

func (c *AnthropicClient) Stream(ctx context.Context, turns []model.Turn, onChunk func(string) error) (string, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(turns))
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		sb.WriteString(delta.Text)
		if onChunk != nil {
			if err := onChunk(delta.Text); err != nil {
				return sb.String(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sb.String(), ctxErr
		}
		return sb.String(), fmt.Errorf("anthropic stream: %w", err)
	}
	return sb.String(), nil
}

func (c *AnthropicClient) params(turns []model.Turn) anthropic.MessageNewParams {
	system, rest := splitSystem(turns)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.opts.MaxTokens),
		Messages:  buildAnthropicMessages(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if c.opts.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(c.opts.Temperature))
	}
	return params
}

func buildAnthropicMessages(turns []model.Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, len(turns))
	for i, t := range turns {
		role := anthropic.MessageParamRoleUser
		if t.Role == model.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		out[i] = anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(t.Content)},
		}
	}
	return out
}

// resolveModel maps a friendly model name to a provider model ID. Unknown
// names are used as-is.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
