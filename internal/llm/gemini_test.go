package llm

import (
	"testing"

	"github.com/pavelanni/patientsim/internal/model"
)

func TestGeminiModelMapping(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"gemini-flash", "gemini-2.0-flash"},
		{"gemini-pro", "gemini-2.0-pro"},
		{"gemini-2.5-flash", "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.input, geminiModels); got != tt.expected {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGeminiRequest(t *testing.T) {
	c := &GeminiClient{model: "gemini-2.0-flash", opts: DefaultOptions}
	contents, config := c.request([]model.Turn{
		{Role: model.RoleSystem, Content: "You are Ms. Esposito."},
		{Role: model.RoleSystem, Content: "Start the visit."},
		{Role: model.RoleAssistant, Content: "Hi!"},
		{Role: model.RoleUser, Content: "Any fever?"},
	})

	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "You are Ms. Esposito." {
		t.Errorf("system instruction = %+v", config.SystemInstruction)
	}
	if config.MaxOutputTokens != 150 {
		t.Errorf("MaxOutputTokens = %d, want 150", config.MaxOutputTokens)
	}
	if config.Temperature == nil || *config.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", config.Temperature)
	}

	wantRoles := []string{"user", "model", "user"}
	if len(contents) != len(wantRoles) {
		t.Fatalf("len(contents) = %d, want %d", len(contents), len(wantRoles))
	}
	for i, want := range wantRoles {
		if contents[i].Role != want {
			t.Errorf("contents[%d].Role = %q, want %q", i, contents[i].Role, want)
		}
	}
	if contents[0].Parts[0].Text != "Start the visit." {
		t.Errorf("narrator turn = %q", contents[0].Parts[0].Text)
	}
}
