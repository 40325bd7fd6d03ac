package llm

import (
	"context"
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// StreamEventType tags the variants of a streaming event.
type StreamEventType int

const (
	// EventToken carries one incremental text fragment.
	EventToken StreamEventType = iota
	// EventDone carries the final assembled text. Terminal.
	EventDone
	// EventError carries a human-readable failure message. Terminal.
	EventError
)

// StreamEvent is one element of a provider's incremental token feed.
// Invariant: zero or more EventToken events precede exactly one terminal
// event (EventDone or EventError), after which the channel is closed.
type StreamEvent struct {
	Type  StreamEventType
	Token string // set for EventToken
	Text  string // full text, set for EventDone
	Err   string // set for EventError
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

// Provider defines the contract for any LLM backend
type Provider interface {
	// Chat sends a chat history to the model and returns the response
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate sends a single prompt to the model (convenience method)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)

	// ChatStream sends a chat history and returns an incremental token feed.
	// The returned channel is closed after the terminal event. Cancelling the
	// context stops the stream; no events are delivered after cancellation.
	ChatStream(ctx context.Context, history []Message, options ...Option) (<-chan StreamEvent, error)
}

// Registry maps provider identifiers to configured backends.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

// Get returns the provider registered under name, or nil.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// Names returns the registered provider identifiers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// ApplyOptions folds a list of options over defaults. Shared by providers.
func ApplyOptions(opts ...Option) *Options {
	options := &Options{
		Temperature: 0.7, // Default
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
