package stream

import (
	"context"
	"log"
	"strings"
	"sync"

	"ai-motiondraft-be/pkg/llm"
)

// Callbacks receive streaming output. OnToken fires zero or more times in
// delivery order; exactly one of OnDone/OnError fires as the terminal call.
// After Cancel, nothing fires.
type Callbacks struct {
	OnToken func(fragment string)
	OnDone  func(fullText string)
	OnError func(message string)
}

// Handle is a one-shot cancellation handle for an in-flight streaming read.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
	terminal  bool
}

// Cancel signals the read to stop. Idempotent. No callback fires after
// Cancel returns.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

// Done is closed once the read has fully stopped (terminal event delivered
// or cancellation observed).
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// deliver runs fn unless the handle is cancelled or already terminal.
// terminal marks this delivery as the terminal one.
func (h *Handle) deliver(terminal bool, fn func()) {
	h.mu.Lock()
	if h.cancelled || h.terminal {
		h.mu.Unlock()
		return
	}
	if terminal {
		h.terminal = true
	}
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Reader consumes a provider's incremental token feed and assembles both the
// running text and the final full text.
type Reader struct {
	logger *log.Logger
}

func NewReader(logger *log.Logger) *Reader {
	return &Reader{logger: logger}
}

// Read starts a streaming chat call against the provider and pumps events
// into the callbacks. Transport failures (including a failed initial call)
// surface through OnError; Read itself never returns an error.
func (r *Reader) Read(
	ctx context.Context,
	provider llm.Provider,
	history []llm.Message,
	cb Callbacks,
	opts ...llm.Option,
) *Handle {
	readCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(handle.done)
		defer cancel()

		events, err := provider.ChatStream(readCtx, history, opts...)
		if err != nil {
			r.logger.Printf("[STREAM] open failed: %v", err)
			handle.deliver(true, func() {
				if cb.OnError != nil {
					cb.OnError(err.Error())
				}
			})
			return
		}

		var assembled strings.Builder
		for ev := range events {
			// Check between units of work so cancellation wins over
			// buffered events.
			if readCtx.Err() != nil {
				return
			}

			switch ev.Type {
			case llm.EventToken:
				assembled.WriteString(ev.Token)
				handle.deliver(false, func() {
					if cb.OnToken != nil {
						cb.OnToken(ev.Token)
					}
				})

			case llm.EventDone:
				full := ev.Text
				if full == "" {
					full = assembled.String()
				}
				handle.deliver(true, func() {
					if cb.OnDone != nil {
						cb.OnDone(full)
					}
				})
				return

			case llm.EventError:
				r.logger.Printf("[STREAM] provider error: %s", ev.Err)
				handle.deliver(true, func() {
					if cb.OnError != nil {
						cb.OnError(ev.Err)
					}
				})
				return
			}
		}
	}()

	return handle
}
