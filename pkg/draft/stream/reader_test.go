package stream

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"ai-motiondraft-be/pkg/llm"
)

// scriptedProvider plays back a fixed event sequence.
type scriptedProvider struct {
	events  []llm.StreamEvent
	openErr error
}

func (p *scriptedProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *scriptedProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamEvent, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range p.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestReader() *Reader {
	return NewReader(log.New(io.Discard, "", 0))
}

type recorder struct {
	mu     sync.Mutex
	tokens []string
	done   string
	errMsg string
	doneN  int
	errN   int
}

func (rec *recorder) callbacks() Callbacks {
	return Callbacks{
		OnToken: func(fragment string) {
			rec.mu.Lock()
			rec.tokens = append(rec.tokens, fragment)
			rec.mu.Unlock()
		},
		OnDone: func(fullText string) {
			rec.mu.Lock()
			rec.done = fullText
			rec.doneN++
			rec.mu.Unlock()
		},
		OnError: func(message string) {
			rec.mu.Lock()
			rec.errMsg = message
			rec.errN++
			rec.mu.Unlock()
		},
	}
}

func TestReaderAssemblesTokens(t *testing.T) {
	provider := &scriptedProvider{events: []llm.StreamEvent{
		{Type: llm.EventToken, Token: "The motion "},
		{Type: llm.EventToken, Token: "is granted."},
		{Type: llm.EventDone}, // empty Text: reader must fall back to assembled tokens
	}}

	rec := &recorder{}
	handle := newTestReader().Read(context.Background(), provider, nil, rec.callbacks())
	<-handle.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(rec.tokens))
	}
	if rec.done != "The motion is granted." {
		t.Fatalf("OnDone text = %q", rec.done)
	}
	if rec.doneN != 1 || rec.errN != 0 {
		t.Fatalf("terminal calls: done=%d err=%d, want exactly one done", rec.doneN, rec.errN)
	}
}

func TestReaderPrefersProviderFullText(t *testing.T) {
	provider := &scriptedProvider{events: []llm.StreamEvent{
		{Type: llm.EventToken, Token: "partial"},
		{Type: llm.EventDone, Text: "authoritative full text"},
	}}

	rec := &recorder{}
	handle := newTestReader().Read(context.Background(), provider, nil, rec.callbacks())
	<-handle.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.done != "authoritative full text" {
		t.Fatalf("OnDone text = %q", rec.done)
	}
}

func TestReaderOpenFailure(t *testing.T) {
	provider := &scriptedProvider{openErr: errors.New("connection refused")}

	rec := &recorder{}
	handle := newTestReader().Read(context.Background(), provider, nil, rec.callbacks())
	<-handle.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errN != 1 || rec.doneN != 0 {
		t.Fatalf("terminal calls: done=%d err=%d, want exactly one error", rec.doneN, rec.errN)
	}
	if rec.errMsg == "" {
		t.Fatal("OnError message empty")
	}
}

func TestReaderProviderError(t *testing.T) {
	provider := &scriptedProvider{events: []llm.StreamEvent{
		{Type: llm.EventToken, Token: "some"},
		{Type: llm.EventError, Err: "model unloaded"},
	}}

	rec := &recorder{}
	handle := newTestReader().Read(context.Background(), provider, nil, rec.callbacks())
	<-handle.Done()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.errMsg != "model unloaded" {
		t.Fatalf("OnError = %q", rec.errMsg)
	}
	if rec.doneN != 0 {
		t.Fatal("OnDone fired after provider error")
	}
}

func TestReaderCancelSuppressesCallbacks(t *testing.T) {
	// A provider that never terminates on its own.
	blocked := make(chan struct{})
	provider := &blockingProvider{release: blocked}

	rec := &recorder{}
	handle := newTestReader().Read(context.Background(), provider, nil, rec.callbacks())

	handle.Cancel()
	handle.Cancel() // idempotent
	close(blocked)

	select {
	case <-handle.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not stop after Cancel")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.doneN != 0 || rec.errN != 0 {
		t.Fatalf("callbacks fired after Cancel: done=%d err=%d", rec.doneN, rec.errN)
	}
}

// blockingProvider holds its stream open until released, then tries to emit a
// terminal event. Used to prove cancellation wins.
type blockingProvider struct {
	release chan struct{}
}

func (p *blockingProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *blockingProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *blockingProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		<-p.release
		select {
		case ch <- llm.StreamEvent{Type: llm.EventDone, Text: "too late"}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}
