package openai

import (
	"ai-motiondraft-be/pkg/llm"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider speaks the OpenAI chat completion API. With a custom base
// URL it also covers OpenAI-compatible backends (vLLM, LM Studio, gateways).
type OpenAIProvider struct {
	ModelName string
	Client    *goopenai.Client
}

var _ llm.Provider = &OpenAIProvider{}

func NewOpenAIProvider(apiKey, baseURL, modelName string) *OpenAIProvider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		ModelName: modelName,
		Client:    goopenai.NewClientWithConfig(cfg),
	}
}

func (o *OpenAIProvider) buildRequest(history []llm.Message, options *llm.Options) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = goopenai.ChatMessageRoleAssistant
		}
		messages[i] = goopenai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	model := o.ModelName
	if options.Model != "" {
		model = options.Model
	}

	req := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(options.Temperature),
	}
	if options.MaxTokens > 0 {
		req.MaxTokens = options.MaxTokens
	}
	return req
}

func (o *OpenAIProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.ApplyOptions(opts...)

	resp, err := o.Client.CreateChatCompletion(ctx, o.buildRequest(history, options))
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return o.Chat(ctx, []llm.Message{{Role: goopenai.ChatMessageRoleUser, Content: prompt}}, opts...)
}

func (o *OpenAIProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamEvent, error) {
	options := llm.ApplyOptions(opts...)

	req := o.buildRequest(history, options)
	req.Stream = true

	stream, err := o.Client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai stream failed: %w", err)
	}

	events := make(chan llm.StreamEvent)

	go func() {
		defer close(events)
		defer stream.Close()

		var full strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case events <- llm.StreamEvent{Type: llm.EventDone, Text: full.String()}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				events <- llm.StreamEvent{Type: llm.EventError, Err: fmt.Sprintf("stream read failed: %v", err)}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			select {
			case events <- llm.StreamEvent{Type: llm.EventToken, Token: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
