package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                string   `json:"id"`
	Provider          string   `json:"provider"`
	DisplayName       string   `json:"display_name"`
	ContextWindow     int      `json:"context_window"`
	MaxOutput         *int     `json:"max_output,omitempty"`
	SupportsTools     bool     `json:"supports_tools"`
	SupportsReasoning bool     `json:"supports_reasoning"`
	Aliases           []string `json:"aliases,omitempty"`
}

func intPtr(v int) *int { return &v }

// DefaultModel is used when no model is configured.
const DefaultModel = "qwen/qwen3-235b-a22b"

// Models is the built-in catalog of OpenRouter models known to handle
// streamed tool calls. The first entry is the default.
var Models = []ModelInfo{
	{
		ID: "qwen/qwen3-235b-a22b", Provider: "openrouter", DisplayName: "Qwen3 235B A22B",
		ContextWindow: 40960, MaxOutput: intPtr(40960),
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"qwen3", "qwen"},
	},
	{
		ID: "google/gemini-2.5-flash-preview", Provider: "openrouter", DisplayName: "Gemini 2.5 Flash (Preview)",
		ContextWindow: 1048576, MaxOutput: intPtr(65535),
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"gemini-flash"},
	},
	{
		ID: "google/gemini-2.5-pro-preview-03-25", Provider: "openrouter", DisplayName: "Gemini 2.5 Pro (Preview)",
		ContextWindow: 1048576, MaxOutput: intPtr(65535),
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"gemini-pro"},
	},
	{
		ID: "anthropic/claude-3.7-sonnet", Provider: "openrouter", DisplayName: "Claude 3.7 Sonnet",
		ContextWindow: 200000, MaxOutput: intPtr(64000),
		SupportsTools: true, SupportsReasoning: true,
		Aliases: []string{"sonnet", "claude-sonnet"},
	},
	{
		ID: "openai/gpt-4.1-mini", Provider: "openrouter", DisplayName: "GPT-4.1 Mini",
		ContextWindow: 1047576, MaxOutput: intPtr(32768),
		SupportsTools: true,
		Aliases: []string{"gpt-4.1-mini"},
	},
	{
		ID: "openai/gpt-4o-2024-11-20", Provider: "openrouter", DisplayName: "GPT-4o (2024-11-20)",
		ContextWindow: 128000, MaxOutput: intPtr(16384),
		SupportsTools: true,
		Aliases: []string{"gpt-4o"},
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ResolveModel maps an alias to its canonical id. Unknown ids are returned
// unchanged so uncatalogued OpenRouter models can still be used.
func ResolveModel(modelID string) string {
	if info := GetModelInfo(modelID); info != nil {
		return info.ID
	}
	return modelID
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// GetLatestModel returns the first (newest/best) model for a provider,
// optionally filtered by capability.
func GetLatestModel(provider string, capability string) *ModelInfo {
	for i := range Models {
		if Models[i].Provider != provider {
			continue
		}
		switch capability {
		case "":
			return &Models[i]
		case "tools":
			if Models[i].SupportsTools {
				return &Models[i]
			}
		case "reasoning":
			if Models[i].SupportsReasoning {
				return &Models[i]
			}
		}
	}
	return nil
}
