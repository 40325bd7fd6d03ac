package factory

import (
	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/llm/ollama"
	"ai-motiondraft-be/pkg/llm/openai"
	"fmt"
)

// BaseURLFor picks the endpoint that matches the backend type. Each backend
// has its own base URL setting; handing the ollama endpoint to an openai
// client (or vice versa) produces calls against the wrong server.
func BaseURLFor(providerType, ollamaBaseURL, openaiBaseURL string) string {
	if providerType == "openai" {
		return openaiBaseURL
	}
	return ollamaBaseURL
}

func NewProvider(providerType, modelName, baseURL, apiKey string) (llm.Provider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return openai.NewOpenAIProvider(apiKey, baseURL, modelName), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
