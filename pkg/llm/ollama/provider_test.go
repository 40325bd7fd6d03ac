package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-motiondraft-be/pkg/llm"
)

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream: true")
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		chunks := []string{
			`{"model":"llama3","message":{"role":"assistant","content":"The "},"done":false}`,
			`{"model":"llama3","message":{"role":"assistant","content":"motion."},"done":false}`,
			`{"model":"llama3","message":{"role":"assistant","content":""},"done":true}`,
		}
		for _, c := range chunks {
			w.Write([]byte(c + "\n"))
			w.(http.Flusher).Flush()
		}
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3")
	events, err := provider.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "draft it"}})
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	var tokens []string
	var final string
	sawDone := false
	for ev := range events {
		switch ev.Type {
		case llm.EventToken:
			tokens = append(tokens, ev.Token)
		case llm.EventDone:
			sawDone = true
			final = ev.Text
		case llm.EventError:
			t.Fatalf("unexpected error event: %s", ev.Err)
		}
	}

	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(tokens))
	}
	if !sawDone {
		t.Fatal("never saw done event")
	}
	if final != "The motion." {
		t.Fatalf("final text = %q", final)
	}
}

func TestChatStreamWithoutDoneMarker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"role":"assistant","content":"truncated"},"done":false}` + "\n"))
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3")
	events, err := provider.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "draft"}})
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	var final string
	sawDone := false
	for ev := range events {
		if ev.Type == llm.EventDone {
			sawDone = true
			final = ev.Text
		}
	}

	// A stream that ends without done: true still terminates with what
	// arrived so far.
	if !sawDone || final != "truncated" {
		t.Fatalf("sawDone=%v final=%q", sawDone, final)
	}
}

func TestChatStreamMalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not json\n"))
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3")
	events, err := provider.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "draft"}})
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	sawError := false
	for ev := range events {
		if ev.Type == llm.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("malformed chunk did not surface as error event")
	}
}

func TestChatStreamCancelledConsumerDoesNotBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One token, then the stream ends without a done marker: the
		// goroutine's final send has to race consumer cancellation.
		w.Write([]byte(`{"message":{"role":"assistant","content":"partial"},"done":false}` + "\n"))
		w.(http.Flusher).Flush()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := NewOllamaProvider(server.URL, "llama3")
	events, err := provider.ChatStream(ctx, []llm.Message{{Role: "user", Content: "draft"}})
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	// Take the first token, then cancel and stop reading, the way a caller
	// that moved on behaves.
	<-events
	cancel()
	time.Sleep(100 * time.Millisecond)

	// The goroutine must have bailed out and closed the channel instead of
	// sitting blocked on an unread terminal send.
	select {
	case ev, ok := <-events:
		if ok {
			t.Fatalf("got event type %d after cancel, want closed channel", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel never closed after consumer cancelled")
	}
}

func TestChatStreamHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3")
	if _, err := provider.ChatStream(context.Background(), nil); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected stream: false")
		}
		// Legacy "model" role must be normalized
		if len(req.Messages) == 2 && req.Messages[1].Role != "assistant" {
			t.Errorf("role = %s, want assistant", req.Messages[1].Role)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaMessage{Role: "assistant", Content: "done"},
			Done:    true,
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "llama3")
	got, err := provider.Chat(context.Background(), []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "model", Content: "previous reply"},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if got != "done" {
		t.Fatalf("Chat = %q", got)
	}
}
