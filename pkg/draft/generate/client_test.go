package generate

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

// cannedProvider returns a fixed response for every call.
type cannedProvider struct {
	response string
	err      error
}

func (p *cannedProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return p.response, p.err
}

func (p *cannedProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.response, p.err
}

func (p *cannedProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamEvent, error) {
	return nil, errors.New("not used")
}

const structuredResponse = `Here is the document:
{"title":"Motion to Compel Arbitration","sections":[{"heading":"Introduction","body":"Defendant moves..."}],"citations":["9 U.S.C. § 4"]}`

var testDetails = store.CaseDetails{
	Fields:    map[string]string{"client_name": "Apex Logistics"},
	Narrative: "compel arbitration under the services agreement",
	TaskType:  "motion",
}

var testInitialResult = store.Result{
	Success:  true,
	Provider: "provider-a",
	Document: &store.MotionDocument{Title: "Motion to Compel Arbitration"},
}

func newTestClient(providers map[string]llm.Provider) *Client {
	registry := llm.NewRegistry()
	for name, p := range providers {
		registry.Register(name, p)
	}
	return NewClient(registry, log.New(io.Discard, "", 0))
}

func TestGenerateParsesStructuredResponse(t *testing.T) {
	c := newTestClient(map[string]llm.Provider{
		"provider-a": &cannedProvider{response: structuredResponse},
	})

	results, err := c.Generate(context.Background(), Request{
		Details:   &testDetails,
		Providers: []string{"provider-a"},
	})

	assert.NoError(t, err)
	result := results["provider-a"]
	assert.NotNil(t, result)
	assert.True(t, result.Success)
	assert.NotNil(t, result.Document)
	assert.Equal(t, "Motion to Compel Arbitration", result.Document.Title)
	assert.Len(t, result.Document.Sections, 1)
	assert.Equal(t, []string{"9 U.S.C. § 4"}, result.Document.Citations)
	assert.Empty(t, result.RawText)
}

func TestGenerateRawFallback(t *testing.T) {
	c := newTestClient(map[string]llm.Provider{
		"provider-a": &cannedProvider{response: "MOTION TO COMPEL ARBITRATION\n\nDefendant respectfully moves..."},
	})

	results, err := c.Generate(context.Background(), Request{
		Details:   &testDetails,
		Providers: []string{"provider-a"},
	})

	assert.NoError(t, err)
	result := results["provider-a"]
	assert.True(t, result.Success)
	assert.Nil(t, result.Document)
	assert.Contains(t, result.RawText, "MOTION TO COMPEL")
}

func TestGenerateFanOutIsolatesFailures(t *testing.T) {
	c := newTestClient(map[string]llm.Provider{
		"provider-a": &cannedProvider{err: errors.New("model not loaded")},
		"provider-b": &cannedProvider{response: structuredResponse},
	})

	results, err := c.Generate(context.Background(), Request{
		Details:   &testDetails,
		Providers: []string{"provider-a", "provider-b"},
	})

	assert.NoError(t, err)
	assert.Len(t, results, 2)

	assert.False(t, results["provider-a"].Success)
	assert.Equal(t, "model not loaded", results["provider-a"].Meta["error"])
	assert.True(t, results["provider-b"].Success)
}

func TestGenerateUnknownProvider(t *testing.T) {
	c := newTestClient(nil)

	results, err := c.Generate(context.Background(), Request{
		Details:   &testDetails,
		Providers: []string{"ghost"},
	})

	assert.NoError(t, err)
	assert.False(t, results["ghost"].Success)
	assert.Contains(t, results["ghost"].Meta["error"], "unknown provider")
}

func TestGenerateNoProviders(t *testing.T) {
	c := newTestClient(nil)

	_, err := c.Generate(context.Background(), Request{Details: &testDetails})
	assert.Error(t, err)
}

func TestRefineExtractsChangeNotes(t *testing.T) {
	refineResponse := `{"title":"Motion to Compel Arbitration","sections":[{"heading":"Introduction","body":"..."}],"change_notes":"Strengthened the FAA preemption argument"}`
	c := newTestClient(map[string]llm.Provider{
		"provider-b": &cannedProvider{response: refineResponse},
	})

	previous := &testInitialResult
	result, notes, err := c.Refine(context.Background(), &testDetails, previous, "stronger preemption argument", "provider-b")

	assert.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Strengthened the FAA preemption argument", notes)
}

func TestRefineUnknownProvider(t *testing.T) {
	c := newTestClient(nil)

	_, _, err := c.Refine(context.Background(), &testDetails, &testInitialResult, "", "ghost")
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{
			name:     "bare object",
			response: `{"title":"x"}`,
			want:     `{"title":"x"}`,
		},
		{
			name:     "object wrapped in prose",
			response: "Sure! Here you go:\n{\"title\":\"x\"}\nLet me know if you need changes.",
			want:     `{"title":"x"}`,
		},
		{
			name:     "no object",
			response: "I cannot help with that.",
			want:     "",
		},
		{
			name:     "unbalanced braces",
			response: "} oops {",
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.response))
		})
	}
}
