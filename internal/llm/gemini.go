package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/pavelanni/patientsim/internal/model"
)

var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.0-flash",
	"gemini-pro":   "gemini-2.0-pro",
}

// GeminiClient plays the patient through the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	opts   Options
}

var _ Generator = (*GeminiClient)(nil)

func NewGemini(ctx context.Context, apiKey, modelName string, opts Options) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}
	return &GeminiClient{
		client: client,
		model:  resolveModel(modelName, geminiModels),
		opts:   opts.withDefaults(),
	}, nil
}

func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", c.model, err)
	}
	return nil
}

func (c *GeminiClient) Complete(ctx context.Context, turns []model.Turn) (string, error) {
	contents, config := c.request(turns)
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini API call: %w", err)
	}
	reply := result.Text()
	if reply == "" {
		return "", ErrEmptyResponse
	}
	return reply, nil
}

func (c *GeminiClient) Stream(ctx context.Context, turns []model.Turn, onChunk func(string) error) (string, error) {
	contents, config := c.request(turns)

	var sb strings.Builder
	for result, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, config) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sb.String(), ctxErr
			}
			return sb.String(), fmt.Errorf("gemini stream: %w", err)
		}
		text := result.Text()
		if text == "" {
			continue
		}
		sb.WriteString(text)
		if onChunk != nil {
			if err := onChunk(text); err != nil {
				return sb.String(), err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

func (c *GeminiClient) request(turns []model.Turn) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(turns)
	temp := c.opts.Temperature
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.opts.MaxTokens),
		Temperature:     &temp,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	return buildGeminiContents(rest), config
}

func buildGeminiContents(turns []model.Turn) []*genai.Content {
	out := make([]*genai.Content, len(turns))
	for i, t := range turns {
		role := "user"
		if t.Role == model.RoleAssistant {
			role = "model"
		}
		out[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.Content}},
		}
	}
	return out
}
