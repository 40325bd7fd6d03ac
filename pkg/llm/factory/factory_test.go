package factory

import "testing"

func TestBaseURLForMatchesBackend(t *testing.T) {
	ollamaURL := "http://localhost:11434"
	openaiURL := "https://gateway.internal/v1"

	tests := []struct {
		providerType string
		want         string
	}{
		{"ollama", ollamaURL},
		{"openai", openaiURL},
	}
	for _, tt := range tests {
		if got := BaseURLFor(tt.providerType, ollamaURL, openaiURL); got != tt.want {
			t.Errorf("BaseURLFor(%s) = %q, want %q", tt.providerType, got, tt.want)
		}
	}
}

func TestBaseURLForOpenAIDefaultsEmpty(t *testing.T) {
	// An empty openai base URL must stay empty so the client falls back to
	// the public endpoint, never to the ollama address.
	if got := BaseURLFor("openai", "http://localhost:11434", ""); got != "" {
		t.Fatalf("BaseURLFor(openai) = %q, want empty", got)
	}
}

func TestNewProviderOpenAIRequiresKey(t *testing.T) {
	if _, err := NewProvider("openai", "gpt-4o", "", ""); err == nil {
		t.Fatal("expected error for openai without API key")
	}
}

func TestNewProviderUnsupportedType(t *testing.T) {
	if _, err := NewProvider("bedrock", "model", "", "key"); err == nil {
		t.Fatal("expected error for unsupported provider type")
	}
}
