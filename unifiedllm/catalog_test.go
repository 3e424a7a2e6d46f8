package unifiedllm

import "testing"

func TestGetModelInfo(t *testing.T) {
	// By exact ID.
	info := GetModelInfo("anthropic/claude-3.7-sonnet")
	if info == nil {
		t.Fatal("expected to find anthropic/claude-3.7-sonnet")
	}
	if info.Provider != "openrouter" {
		t.Errorf("expected provider %q, got %q", "openrouter", info.Provider)
	}
	if info.ContextWindow != 200000 {
		t.Errorf("expected context window 200000, got %d", info.ContextWindow)
	}
	if !info.SupportsTools {
		t.Error("expected supports_tools = true")
	}

	// By alias.
	info = GetModelInfo("qwen3")
	if info == nil {
		t.Fatal("expected to find model by alias 'qwen3'")
	}
	if info.ID != DefaultModel {
		t.Errorf("expected id %q, got %q", DefaultModel, info.ID)
	}

	// Unknown model.
	info = GetModelInfo("nonexistent-model")
	if info != nil {
		t.Errorf("expected nil for unknown model, got %v", info)
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sonnet", "anthropic/claude-3.7-sonnet"},
		{"gpt-4o", "openai/gpt-4o-2024-11-20"},
		{"openai/gpt-4.1-mini", "openai/gpt-4.1-mini"},
		{"mistralai/mistral-large", "mistralai/mistral-large"},
	}
	for _, tt := range tests {
		if got := ResolveModel(tt.in); got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListModels(t *testing.T) {
	all := ListModels("")
	if len(all) != len(Models) {
		t.Errorf("expected %d models, got %d", len(Models), len(all))
	}

	// The returned slice is a copy.
	all[0].ID = "mutated"
	if Models[0].ID == "mutated" {
		t.Error("ListModels must not expose the catalog slice")
	}

	openrouter := ListModels("openrouter")
	if len(openrouter) != len(Models) {
		t.Errorf("expected %d OpenRouter models, got %d", len(Models), len(openrouter))
	}

	empty := ListModels("nonexistent")
	if len(empty) != 0 {
		t.Errorf("expected 0 models for nonexistent provider, got %d", len(empty))
	}
}

func TestGetLatestModel(t *testing.T) {
	info := GetLatestModel("openrouter", "")
	if info == nil {
		t.Fatal("expected to find latest OpenRouter model")
	}
	if info.ID != DefaultModel {
		t.Errorf("expected %q, got %q", DefaultModel, info.ID)
	}

	info = GetLatestModel("openrouter", "tools")
	if info == nil || !info.SupportsTools {
		t.Fatalf("expected a tool-capable model, got %v", info)
	}

	info = GetLatestModel("openrouter", "reasoning")
	if info == nil {
		t.Fatal("expected to find a reasoning model")
	}
	if !info.SupportsReasoning {
		t.Error("expected supports_reasoning = true")
	}

	info = GetLatestModel("nonexistent", "")
	if info != nil {
		t.Errorf("expected nil for nonexistent provider, got %v", info)
	}
}

func TestModelInfoFields(t *testing.T) {
	seen := map[string]string{}
	for _, m := range Models {
		if m.ID == "" {
			t.Error("model ID must not be empty")
		}
		if m.Provider == "" {
			t.Errorf("model %q: provider must not be empty", m.ID)
		}
		if m.DisplayName == "" {
			t.Errorf("model %q: display_name must not be empty", m.ID)
		}
		if m.ContextWindow <= 0 {
			t.Errorf("model %q: context_window must be positive", m.ID)
		}
		for _, alias := range m.Aliases {
			if other, ok := seen[alias]; ok {
				t.Errorf("alias %q used by both %q and %q", alias, other, m.ID)
			}
			seen[alias] = m.ID
		}
	}
}
