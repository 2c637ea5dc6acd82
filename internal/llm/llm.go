// Package llm adapts chat-completion APIs to the patient dialogue generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pavelanni/patientsim/internal/model"
)

// ErrEmptyResponse is returned when the completion has no text.
var ErrEmptyResponse = errors.New("LLM returned no choices")

// Options tune each completion request.
type Options struct {
	MaxTokens   int
	Temperature float32
}

// DefaultOptions match the short, slightly varied patient replies the
// simulator expects.
var DefaultOptions = Options{MaxTokens: 150, Temperature: 0.7}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultOptions.MaxTokens
	}
	return o
}

// Generator produces patient replies and can check its endpoint.
type Generator interface {
	Complete(ctx context.Context, turns []model.Turn) (string, error)
	Stream(ctx context.Context, turns []model.Turn, onChunk func(string) error) (string, error)
	Ping(ctx context.Context) error
}

// Config selects and configures a provider.
type Config struct {
	Provider string // openai, anthropic or gemini
	BaseURL  string // openai only; empty uses the provider default
	APIKey   string
	Model    string
	Options  Options
}

// NewGenerator creates the generator for cfg.Provider.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Options), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Model, cfg.Options)
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.Options)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}

// splitSystem separates the leading system prompt from the rest of the
// conversation. Later system turns are narrator lines and are sent as user
// messages, for APIs that only accept a single system instruction.
func splitSystem(turns []model.Turn) (string, []model.Turn) {
	var system string
	if len(turns) > 0 && turns[0].Role == model.RoleSystem {
		system, turns = turns[0].Content, turns[1:]
	}
	out := make([]model.Turn, len(turns))
	for i, t := range turns {
		if t.Role == model.RoleSystem {
			t.Role = model.RoleUser
		}
		out[i] = t
	}
	return system, out
}
