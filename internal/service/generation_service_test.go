package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"ai-motiondraft-be/internal/config"
	"ai-motiondraft-be/internal/constant"
	"ai-motiondraft-be/internal/dto"
	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/contract"
	"ai-motiondraft-be/internal/repository/memory"
	"ai-motiondraft-be/internal/repository/specification"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/internal/websocket"
	"ai-motiondraft-be/pkg/embedding"
	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/store"

	"github.com/google/uuid"
)

// --- persistence fakes ---

type stubDraftSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.DraftSession
}

func newStubDraftSessionRepo() *stubDraftSessionRepo {
	return &stubDraftSessionRepo{sessions: make(map[uuid.UUID]*entity.DraftSession)}
}

func (r *stubDraftSessionRepo) Create(ctx context.Context, session *entity.DraftSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Id] = session
	return nil
}

func (r *stubDraftSessionRepo) Update(ctx context.Context, session *entity.DraftSession) error {
	return nil
}

func (r *stubDraftSessionRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *stubDraftSessionRepo) DeleteAllByUserIdUnscoped(ctx context.Context, userId uuid.UUID) error {
	return nil
}

func (r *stubDraftSessionRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, spec := range specs {
		if byId, ok := spec.(specification.ByID); ok {
			return r.sessions[byId.ID], nil
		}
	}
	return nil, nil
}

func (r *stubDraftSessionRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftSession, error) {
	return nil, nil
}

func (r *stubDraftSessionRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

type stubDraftMessageRepo struct {
	mu   sync.Mutex
	rows []*entity.DraftMessage
}

func (r *stubDraftMessageRepo) Create(ctx context.Context, message *entity.DraftMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, message)
	return nil
}

func (r *stubDraftMessageRepo) CreateBatch(ctx context.Context, messages []*entity.DraftMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, messages...)
	return nil
}

func (r *stubDraftMessageRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *stubDraftMessageRepo) DeleteAllBySessionIdUnscoped(ctx context.Context, sessionId uuid.UUID) error {
	return nil
}

func (r *stubDraftMessageRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftMessage, error) {
	return nil, nil
}

func (r *stubDraftMessageRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftMessage, error) {
	return nil, nil
}

func (r *stubDraftMessageRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

type stubDraftResultRepo struct {
	mu   sync.Mutex
	rows []*entity.DraftResult
}

func (r *stubDraftResultRepo) Create(ctx context.Context, result *entity.DraftResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, result)
	return nil
}

func (r *stubDraftResultRepo) Update(ctx context.Context, result *entity.DraftResult) error {
	return nil
}

func (r *stubDraftResultRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (r *stubDraftResultRepo) DeleteAllBySessionIdUnscoped(ctx context.Context, sessionId uuid.UUID) error {
	return nil
}

func (r *stubDraftResultRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftResult, error) {
	return nil, nil
}

func (r *stubDraftResultRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftResult, error) {
	return nil, nil
}

func (r *stubDraftResultRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

type stubDocumentRepo struct{}

func (r *stubDocumentRepo) Create(ctx context.Context, document *entity.Document) error { return nil }
func (r *stubDocumentRepo) Update(ctx context.Context, document *entity.Document) error { return nil }
func (r *stubDocumentRepo) Delete(ctx context.Context, id uint) error                   { return nil }
func (r *stubDocumentRepo) DeleteAllByUserIdUnscoped(ctx context.Context, userId uuid.UUID) error {
	return nil
}
func (r *stubDocumentRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Document, error) {
	return nil, nil
}
func (r *stubDocumentRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Document, error) {
	return nil, nil
}
func (r *stubDocumentRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}

type stubEmbeddingRepo struct{}

func (r *stubEmbeddingRepo) Create(ctx context.Context, embedding *entity.DocumentEmbedding) error {
	return nil
}
func (r *stubEmbeddingRepo) CreateBulk(ctx context.Context, embeddings []*entity.DocumentEmbedding) error {
	return nil
}
func (r *stubEmbeddingRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (r *stubEmbeddingRepo) DeleteByDocumentId(ctx context.Context, documentId uint) error {
	return nil
}
func (r *stubEmbeddingRepo) DeleteAllByUserIdUnscoped(ctx context.Context, userId uuid.UUID) error {
	return nil
}
func (r *stubEmbeddingRepo) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DocumentEmbedding, error) {
	return nil, nil
}
func (r *stubEmbeddingRepo) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DocumentEmbedding, error) {
	return nil, nil
}
func (r *stubEmbeddingRepo) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	return 0, nil
}
func (r *stubEmbeddingRepo) SearchSimilar(ctx context.Context, embedding []float32, limit int, userId uuid.UUID, documentIds []uint) ([]*contract.ScoredDocumentEmbedding, error) {
	return nil, nil
}

type stubUow struct {
	sessions  *stubDraftSessionRepo
	messages  *stubDraftMessageRepo
	results   *stubDraftResultRepo
	documents *stubDocumentRepo
	chunks    *stubEmbeddingRepo
}

func (u *stubUow) Begin(ctx context.Context) error { return nil }
func (u *stubUow) Commit() error                   { return nil }
func (u *stubUow) Rollback() error                 { return nil }

func (u *stubUow) DocumentRepository() contract.DocumentRepository { return u.documents }
func (u *stubUow) DocumentEmbeddingRepository() contract.DocumentEmbeddingRepository {
	return u.chunks
}
func (u *stubUow) DraftSessionRepository() contract.DraftSessionRepository { return u.sessions }
func (u *stubUow) DraftMessageRepository() contract.DraftMessageRepository { return u.messages }
func (u *stubUow) DraftResultRepository() contract.DraftResultRepository   { return u.results }

type stubUowFactory struct {
	uow *stubUow
}

func (f *stubUowFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork { return f.uow }

type stubEmbedder struct{}

func (e *stubEmbedder) Generate(text string, taskType string) (*embedding.EmbeddingResponse, error) {
	return nil, errors.New("not used")
}

// --- provider fakes ---

// clarifyProvider scripts the intake endpoint. Each Generate call signals
// started, waits for one gate release, then returns the next scripted reply.
// The last reply is reused once the script runs out.
type clarifyProvider struct {
	mu      sync.Mutex
	replies []string
	started chan struct{}
	gate    chan struct{}
}

func (p *clarifyProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	p.started <- struct{}{}
	<-p.gate

	p.mu.Lock()
	defer p.mu.Unlock()
	reply := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return reply, nil
}

func (p *clarifyProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *clarifyProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamEvent, error) {
	return nil, errors.New("not used")
}

// streamCall scripts one ChatStream invocation: the tokens to emit, an
// optional gate to hold the stream open, and the final full text.
type streamCall struct {
	tokens []string
	gate   chan struct{}
	final  string
}

type streamProvider struct {
	mu    sync.Mutex
	calls []streamCall
	n     int
}

func (p *streamProvider) ChatStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (<-chan llm.StreamEvent, error) {
	p.mu.Lock()
	idx := p.n
	if idx >= len(p.calls) {
		idx = len(p.calls) - 1
	}
	call := p.calls[idx]
	p.n++
	p.mu.Unlock()

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		for _, tok := range call.tokens {
			select {
			case ch <- llm.StreamEvent{Type: llm.EventToken, Token: tok}:
			case <-ctx.Done():
				return
			}
		}
		if call.gate != nil {
			select {
			case <-call.gate:
			case <-ctx.Done():
				return
			}
		}
		select {
		case ch <- llm.StreamEvent{Type: llm.EventDone, Text: call.final}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (p *streamProvider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

func (p *streamProvider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return "", errors.New("not used")
}

// --- delivery fake ---

type frameRecorder struct {
	mu     sync.Mutex
	frames []websocket.Frame
}

func (r *frameRecorder) Send(userID uuid.UUID, frame websocket.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *frameRecorder) count(frameType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f.Type == frameType {
			n++
		}
	}
	return n
}

// --- harness ---

type draftHarness struct {
	svc      IGenerationService
	recorder *frameRecorder
	userId   uuid.UUID
}

func newDraftHarness(t *testing.T, providerA, providerB llm.Provider) *draftHarness {
	t.Helper()

	registry := llm.NewRegistry()
	registry.Register(constant.ProviderKeyA, providerA)
	registry.Register(constant.ProviderKeyB, providerB)

	uow := &stubUow{
		sessions:  newStubDraftSessionRepo(),
		messages:  &stubDraftMessageRepo{},
		results:   &stubDraftResultRepo{},
		documents: &stubDocumentRepo{},
		chunks:    &stubEmbeddingRepo{},
	}
	cfg := &config.Config{
		Draft: config.DraftConfig{
			ProgressTickEvery: time.Hour,
			ProgressCeiling:   90,
			MaxTokens:         256,
			HistoryLimit:      20,
		},
	}

	recorder := &frameRecorder{}
	svc := NewGenerationService(
		&stubUowFactory{uow: uow},
		registry,
		&stubEmbedder{},
		memory.NewSessionRepository(),
		recorder,
		nil,
		cfg,
	)
	return &draftHarness{svc: svc, recorder: recorder, userId: uuid.New()}
}

func (h *draftHarness) createSession(t *testing.T, mode string) uuid.UUID {
	t.Helper()
	res, err := h.svc.CreateSession(context.Background(), h.userId, &dto.CreateDraftSessionRequest{Mode: mode})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return res.Id
}

func (h *draftHarness) snapshot(t *testing.T, sessionId uuid.UUID) *dto.SessionSnapshotResponse {
	t.Helper()
	snap, err := h.svc.Snapshot(context.Background(), h.userId, sessionId)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func (h *draftHarness) assistantTurns(t *testing.T, sessionId uuid.UUID) []string {
	t.Helper()
	var out []string
	for _, m := range h.snapshot(t, sessionId).Messages {
		if m.Role == store.RoleAssistant {
			out = append(out, m.Content)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- tests ---

// A message arriving while an intake round is outstanding is queued and must
// end up in the transcript exactly once, in arrival order.
func TestIntakeQueuedMessageAppendsOnce(t *testing.T) {
	needsInfo := `{"status":"needs_info","question":"What is the case number?"}`
	clarify := &clarifyProvider{
		replies: []string{needsInfo},
		started: make(chan struct{}, 4),
		gate:    make(chan struct{}),
	}
	h := newDraftHarness(t, clarify, &streamProvider{calls: []streamCall{{final: "unused"}}})
	sessionId := h.createSession(t, store.ModeRefine)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
			DraftSessionId: sessionId,
			Message:        "Draft a motion to compel for Acme Corp",
		})
		firstDone <- err
	}()
	<-clarify.started

	// This message lands while the first round is still out; it gets queued
	// instead of starting a concurrent round.
	res, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
		DraftSessionId: sessionId,
		Message:        "Opposing party is Beta LLC",
	})
	if err != nil {
		t.Fatalf("queued submit: %v", err)
	}
	if res.Stage != store.StageCollecting {
		t.Fatalf("queued submit stage = %s, want %s", res.Stage, store.StageCollecting)
	}

	clarify.gate <- struct{}{}
	if err := <-firstDone; err != nil {
		t.Fatalf("first submit: %v", err)
	}

	thirdDone := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
			DraftSessionId: sessionId,
			Message:        "Case number is 12-345",
		})
		thirdDone <- err
	}()
	<-clarify.started
	clarify.gate <- struct{}{}
	if err := <-thirdDone; err != nil {
		t.Fatalf("third submit: %v", err)
	}

	var userTurns []string
	for _, m := range h.snapshot(t, sessionId).Messages {
		if m.Role == store.RoleUser {
			userTurns = append(userTurns, m.Content)
		}
	}
	want := []string{
		"Draft a motion to compel for Acme Corp",
		"Opposing party is Beta LLC",
		"Case number is 12-345",
	}
	if !reflect.DeepEqual(userTurns, want) {
		t.Fatalf("user turns = %q, want each message exactly once in order %q", userTurns, want)
	}
}

// Feedback on a reply that is still streaming cancels that stream before the
// second opinion starts. Only the replacement reply may land.
func TestFeedbackCancelsActiveStream(t *testing.T) {
	gate := make(chan struct{})
	providerA := &streamProvider{calls: []streamCall{
		{tokens: []string{"The court "}, gate: gate, final: "The court finds"},
	}}
	providerB := &streamProvider{calls: []streamCall{
		{tokens: []string{"A better "}, final: "A better reply"},
	}}
	h := newDraftHarness(t, providerA, providerB)
	sessionId := h.createSession(t, store.ModeConversation)
	ctx := context.Background()

	if _, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
		DraftSessionId: sessionId,
		Message:        "Summarize the dispute",
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitFor(t, "first stream token", func() bool {
		return h.recorder.count(websocket.FrameToken) >= 1
	})

	if _, err := h.svc.SubmitFeedback(ctx, h.userId, &dto.FeedbackRequest{
		DraftSessionId: sessionId,
		Feedback:       "Give me a second opinion",
	}); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	waitFor(t, "replacement reply", func() bool {
		return len(h.assistantTurns(t, sessionId)) >= 1
	})

	// Release the superseded stream only now; its completion must be
	// discarded, not appended.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	assistants := h.assistantTurns(t, sessionId)
	if len(assistants) != 1 || assistants[0] != "A better reply" {
		t.Fatalf("assistant turns = %q, want exactly the second stream's reply", assistants)
	}
	if stage := h.snapshot(t, sessionId).Stage; stage != store.StageIdle {
		t.Fatalf("stage = %s, want %s", stage, store.StageIdle)
	}
}

// A new user turn during an active stream supersedes it instead of being
// rejected.
func TestSubmitSupersedesActiveStream(t *testing.T) {
	gate := make(chan struct{})
	providerA := &streamProvider{calls: []streamCall{
		{tokens: []string{"first "}, gate: gate, final: "first reply"},
		{final: "second reply"},
	}}
	h := newDraftHarness(t, providerA, &streamProvider{calls: []streamCall{{final: "unused"}}})
	sessionId := h.createSession(t, store.ModeConversation)
	ctx := context.Background()

	if _, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
		DraftSessionId: sessionId,
		Message:        "Start drafting",
	}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	waitFor(t, "first stream token", func() bool {
		return h.recorder.count(websocket.FrameToken) >= 1
	})

	if _, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
		DraftSessionId: sessionId,
		Message:        "Actually, focus on damages",
	}); err != nil {
		t.Fatalf("second submit during stream: %v", err)
	}
	waitFor(t, "replacement reply", func() bool {
		return len(h.assistantTurns(t, sessionId)) >= 1
	})

	close(gate)
	time.Sleep(50 * time.Millisecond)

	assistants := h.assistantTurns(t, sessionId)
	if len(assistants) != 1 || assistants[0] != "second reply" {
		t.Fatalf("assistant turns = %q, want exactly the second stream's reply", assistants)
	}
}

// Snapshots race against streaming completions that append to the same
// session. Run with the race detector.
func TestSnapshotWhileRepliesLand(t *testing.T) {
	providerA := &streamProvider{calls: []streamCall{
		{tokens: []string{"tok"}, final: "reply"},
	}}
	h := newDraftHarness(t, providerA, &streamProvider{calls: []streamCall{{final: "unused"}}})
	sessionId := h.createSession(t, store.ModeConversation)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			if _, err := h.svc.Submit(ctx, h.userId, &dto.SubmitRequest{
				DraftSessionId: sessionId,
				Message:        "again",
			}); err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
		}
	}()

	for i := 0; i < 100; i++ {
		if _, err := h.svc.Snapshot(ctx, h.userId, sessionId); err != nil {
			t.Fatalf("snapshot %d: %v", i, err)
		}
	}
	<-done
}
