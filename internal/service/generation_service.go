package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ai-motiondraft-be/internal/config"
	"ai-motiondraft-be/internal/constant"
	"ai-motiondraft-be/internal/dto"
	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/memory"
	"ai-motiondraft-be/internal/repository/specification"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/internal/websocket"
	"ai-motiondraft-be/pkg/draft/docs"
	"ai-motiondraft-be/pkg/draft/generate"
	"ai-motiondraft-be/pkg/draft/history"
	"ai-motiondraft-be/pkg/draft/intake"
	"ai-motiondraft-be/pkg/draft/pipeline"
	"ai-motiondraft-be/pkg/draft/progress"
	"ai-motiondraft-be/pkg/draft/prompt"
	"ai-motiondraft-be/pkg/draft/session"
	"ai-motiondraft-be/pkg/draft/state"
	"ai-motiondraft-be/pkg/draft/stream"
	"ai-motiondraft-be/pkg/embedding"
	"ai-motiondraft-be/pkg/events"
	"ai-motiondraft-be/pkg/llm"
	pktNats "ai-motiondraft-be/pkg/nats"
	"ai-motiondraft-be/pkg/store"

	"github.com/google/uuid"
)

// DraftDelivery pushes real-time frames to connected clients.
// Typically implemented by the WebSocket Hub.
type DraftDelivery interface {
	Send(userID uuid.UUID, frame websocket.Frame)
}

// IGenerationService defines the drafting orchestrator interface
type IGenerationService interface {
	CreateSession(ctx context.Context, userId uuid.UUID, request *dto.CreateDraftSessionRequest) (*dto.CreateDraftSessionResponse, error)
	GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllDraftSessionsResponse, error)
	Snapshot(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.SessionSnapshotResponse, error)
	Submit(ctx context.Context, userId uuid.UUID, request *dto.SubmitRequest) (*dto.SubmitResponse, error)
	SubmitFeedback(ctx context.Context, userId uuid.UUID, request *dto.FeedbackRequest) (*dto.SubmitResponse, error)
	ForceGenerate(ctx context.Context, userId uuid.UUID, request *dto.ForceGenerateRequest) (*dto.SubmitResponse, error)
	SelectResult(ctx context.Context, userId uuid.UUID, request *dto.SelectResultRequest) (*dto.SubmitResponse, error)
	Cancel(ctx context.Context, userId uuid.UUID, request *dto.CancelRequest) error
	DeleteSession(ctx context.Context, userId uuid.UUID, request *dto.DeleteDraftSessionRequest) error
}

// sessionRuntime holds the live, non-serializable collaborators for one
// session: the intake machine, the document working set, the per-session
// progress estimator and whatever call is currently in flight. runSeq guards
// against stale completions: a run that finishes after Cancel (or after a
// newer run started) finds the sequence advanced and discards its result.
type sessionRuntime struct {
	mu sync.Mutex

	machine      *intake.Machine
	docsResolver *docs.Resolver
	estimator    *progress.Estimator
	orchestrator *pipeline.Orchestrator

	streamHandle *stream.Handle
	cancelRun    context.CancelFunc
	runSeq       int
}

// generationService coordinates domain components
type generationService struct {
	uowFactory  unitofwork.RepositoryFactory
	sessionRepo *memory.SessionRepository
	registry    *llm.Registry
	embedder    embedding.EmbeddingProvider
	llmLogger   *log.Logger
	cfg         *config.Config

	sessionManager *session.Manager
	stateManager   *state.Manager
	historyLoader  *history.Loader
	streamReader   *stream.Reader
	intakeEndpoint intake.Endpoint
	genClient      *generate.Client

	delivery  DraftDelivery
	publisher *pktNats.Publisher

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

// NewGenerationService creates the drafting orchestrator with all domain
// components wired to the provider registry.
func NewGenerationService(
	uowFactory unitofwork.RepositoryFactory,
	registry *llm.Registry,
	embedder embedding.EmbeddingProvider,
	sessionRepo *memory.SessionRepository,
	delivery DraftDelivery,
	publisher *pktNats.Publisher,
	cfg *config.Config,
) IGenerationService {

	llmLogger := initLLMLogger()

	return &generationService{
		uowFactory:  uowFactory,
		sessionRepo: sessionRepo,
		registry:    registry,
		embedder:    embedder,
		llmLogger:   llmLogger,
		cfg:         cfg,

		sessionManager: session.NewManager(sessionRepo),
		stateManager:   state.NewManager(llmLogger),
		historyLoader:  history.NewLoader(uowFactory),
		streamReader:   stream.NewReader(llmLogger),
		intakeEndpoint: intake.NewResolver(registry.Get(constant.ProviderKeyA), llmLogger),
		genClient:      generate.NewClient(registry, llmLogger),

		delivery:  delivery,
		publisher: publisher,

		runtimes: make(map[string]*sessionRuntime),
	}
}

func initLLMLogger() *log.Logger {
	logPath := filepath.Join(".", "logs", "llm_draft.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[LLM-DRAFT] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}

// runtime returns (creating if needed) the live collaborators for a session.
func (gs *generationService) runtime(sess *store.Session, userId uuid.UUID) *sessionRuntime {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	rt, ok := gs.runtimes[sess.ID]
	if ok {
		return rt
	}

	rt = &sessionRuntime{
		machine:      intake.NewMachine(constant.TaskTypeMotion, gs.llmLogger),
		docsResolver: docs.NewResolver(gs.llmLogger),
	}

	sessionId := sess.ID
	rt.estimator = progress.NewEstimator(
		gs.cfg.Draft.ProgressCeiling,
		gs.cfg.Draft.ProgressTickEvery,
		func(snap progress.Snapshot) {
			gs.delivery.Send(userId, websocket.Frame{
				Type:      websocket.FrameProgress,
				SessionID: sessionId,
				Data:      snap,
			})
		},
	)
	rt.orchestrator = pipeline.NewOrchestrator(gs.genClient, gs.genClient, rt.estimator, gs.llmLogger)

	gs.runtimes[sess.ID] = rt
	return rt
}

func (gs *generationService) dropRuntime(sessionId string) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	delete(gs.runtimes, sessionId)
}

// cancelInFlight stops the session's current stream or pipeline run, if any.
// Bumping the sequence makes a completion that already escaped the cancel
// land as stale and get discarded.
func (gs *generationService) cancelInFlight(rt *sessionRuntime) {
	rt.mu.Lock()
	rt.runSeq++
	handle := rt.streamHandle
	rt.streamHandle = nil
	cancel := rt.cancelRun
	rt.cancelRun = nil
	rt.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// CreateSession creates a new draft session
func (gs *generationService) CreateSession(ctx context.Context, userId uuid.UUID, request *dto.CreateDraftSessionRequest) (*dto.CreateDraftSessionResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)

	mode := request.Mode
	if mode == "" {
		mode = store.ModeConversation
	}

	draftSession := &entity.DraftSession{
		Id:        uuid.New(),
		UserId:    userId,
		Title:     "New Draft",
		Mode:      mode,
		CreatedAt: time.Now(),
	}
	if err := uow.DraftSessionRepository().Create(ctx, draftSession); err != nil {
		return nil, err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, draftSession.Id)
	sess.Mode = mode
	gs.sessionManager.Save(sess)

	return &dto.CreateDraftSessionResponse{Id: draftSession.Id, Mode: mode}, nil
}

// GetAllSessions lists the user's draft sessions, newest first
func (gs *generationService) GetAllSessions(ctx context.Context, userId uuid.UUID) ([]*dto.GetAllDraftSessionsResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)

	sessions, err := uow.DraftSessionRepository().FindAll(ctx,
		specification.OwnedByUser{UserID: userId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: 100},
	)
	if err != nil {
		return nil, err
	}

	responses := make([]*dto.GetAllDraftSessionsResponse, len(sessions))
	for i, s := range sessions {
		responses[i] = &dto.GetAllDraftSessionsResponse{
			Id:        s.Id,
			Title:     s.Title,
			Mode:      s.Mode,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		}
	}
	return responses, nil
}

// Snapshot returns the live session state for the frontend to rehydrate.
func (gs *generationService) Snapshot(ctx context.Context, userId uuid.UUID, sessionId uuid.UUID) (*dto.SessionSnapshotResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := gs.sessionManager.VerifyDraftSession(ctx, uow, userId, sessionId); err != nil {
		return nil, err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, sessionId)
	gs.hydrateSession(ctx, sessionId, sess)
	rt := gs.runtime(sess, userId)

	// Background completions keep mutating the live session; the response is
	// built from a deep copy so it is internally consistent.
	snap := sess.Clone()

	messages := make([]dto.MessageDTO, len(snap.Messages))
	for i, m := range snap.Messages {
		messages[i] = dto.MessageDTO{Role: m.Role, Provider: m.Provider, Content: m.Content}
	}

	return &dto.SessionSnapshotResponse{
		DraftSessionId: sessionId,
		Stage:          snap.Stage,
		Mode:           snap.Mode,
		Messages:       messages,
		DocumentIds:    rt.docsResolver.IDs(),
		PendingUploads: rt.docsResolver.Pending(),
		Run:            gs.runDTO(snap, rt),
	}, nil
}

// Submit handles one user turn. Conversation mode streams a reply; motion
// modes run the intake dialogue and, once enough is gathered, hand off to
// the generation pipeline in the background.
func (gs *generationService) Submit(ctx context.Context, userId uuid.UUID, request *dto.SubmitRequest) (*dto.SubmitResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)

	draftSession, err := gs.sessionManager.VerifyDraftSession(ctx, uow, userId, request.DraftSessionId)
	if err != nil {
		return nil, err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, request.DraftSessionId)
	gs.hydrateSession(ctx, request.DraftSessionId, sess)
	rt := gs.runtime(sess, userId)

	// A new turn supersedes whatever is in flight: the previous stream or
	// pipeline run is cancelled before this one proceeds.
	gs.cancelInFlight(rt)

	now := time.Now()
	sess.Append(store.RoleUser, "", request.Message)
	sess.SetLastQuery(request.Message)
	gs.persistMessage(ctx, request.DraftSessionId, store.RoleUser, "", request.Message)

	// First user turn names the session
	if draftSession.Title == "New Draft" {
		_ = gs.sessionManager.UpdateTitle(ctx, uow, draftSession, request.Message, now)
	}

	// Fold the request's document references into the working set
	if err := gs.reconcileDocuments(ctx, userId, sess, rt, request.DocumentIds, request.UploadNames); err != nil {
		return nil, err
	}

	if request.TaskType != "" {
		// Explicit task type restarts intake for that task
		rt.machine.Merge(&intake.Outcome{TaskType: request.TaskType})
	}

	if sess.Mode == store.ModeConversation {
		return gs.submitConversation(userId, sess, rt)
	}
	return gs.submitMotion(ctx, userId, sess, rt, request.Message)
}

// submitConversation streams a free-form reply over the websocket.
func (gs *generationService) submitConversation(userId uuid.UUID, sess *store.Session, rt *sessionRuntime) (*dto.SubmitResponse, error) {
	gs.stateManager.Transition(sess, store.StageStreaming)
	gs.sessionManager.Save(sess)

	sessionUUID, _ := uuid.Parse(sess.ID)
	historyMsgs := gs.llmHistory(sess)
	provider := gs.registry.Get(constant.ProviderKeyA)

	rt.mu.Lock()
	rt.runSeq++
	seq := rt.runSeq
	handle := gs.streamReader.Read(context.Background(), provider, historyMsgs, stream.Callbacks{
		OnToken: func(fragment string) {
			gs.delivery.Send(userId, websocket.Frame{
				Type:      websocket.FrameToken,
				SessionID: sess.ID,
				Data:      fragment,
			})
		},
		OnDone: func(fullText string) {
			gs.finishStream(userId, sessionUUID, sess, rt, seq, constant.ProviderKeyA, fullText)
		},
		OnError: func(message string) {
			gs.failStream(userId, sess, rt, seq, message)
		},
	}, llm.WithMaxTokens(gs.cfg.Draft.MaxTokens))
	rt.streamHandle = handle
	rt.mu.Unlock()

	return &dto.SubmitResponse{
		DraftSessionId: sessionUUID,
		Stage:          sess.CurrentStage(),
		Mode:           sess.Mode,
	}, nil
}

// finishStream lands a completed conversation reply, unless a newer call or
// a cancel has superseded this stream.
func (gs *generationService) finishStream(userId uuid.UUID, sessionId uuid.UUID, sess *store.Session, rt *sessionRuntime, seq int, providerKey string, fullText string) {
	rt.mu.Lock()
	if rt.runSeq != seq {
		rt.mu.Unlock()
		return
	}
	rt.streamHandle = nil
	rt.mu.Unlock()

	sess.Append(store.RoleAssistant, providerKey, fullText)
	gs.stateManager.Transition(sess, store.StageIdle)
	gs.sessionManager.Save(sess)
	gs.persistMessage(context.Background(), sessionId, store.RoleAssistant, providerKey, fullText)

	gs.delivery.Send(userId, websocket.Frame{
		Type:      websocket.FrameStage,
		SessionID: sess.ID,
		Data:      sess.CurrentStage(),
	})
}

func (gs *generationService) failStream(userId uuid.UUID, sess *store.Session, rt *sessionRuntime, seq int, message string) {
	rt.mu.Lock()
	if rt.runSeq != seq {
		rt.mu.Unlock()
		return
	}
	rt.streamHandle = nil
	rt.mu.Unlock()

	gs.stateManager.Revert(sess, store.StageIdle)
	gs.sessionManager.Save(sess)

	gs.delivery.Send(userId, websocket.Frame{
		Type:      websocket.FrameError,
		SessionID: sess.ID,
		Data:      message,
	})
}

// submitMotion runs one intake round. A round already in flight queues the
// message instead of dispatching a concurrent call.
func (gs *generationService) submitMotion(ctx context.Context, userId uuid.UUID, sess *store.Session, rt *sessionRuntime, message string) (*dto.SubmitResponse, error) {
	sessionUUID, _ := uuid.Parse(sess.ID)

	rt.machine.Begin()
	gs.stateManager.Transition(sess, store.StageCollecting)

	if !rt.machine.TryAcquire() {
		rt.machine.Enqueue(message)
		gs.sessionManager.Save(sess)
		return &dto.SubmitResponse{
			DraftSessionId: sessionUUID,
			Stage:          sess.CurrentStage(),
			Mode:           sess.Mode,
		}, nil
	}
	defer rt.machine.Release()

	// Messages queued during the previous round were already appended to the
	// transcript by their own Submit; the queue only needs flushing so this
	// round's Clarify call sees a clean slate.
	rt.machine.Drain()

	outcome, err := gs.intakeEndpoint.Clarify(ctx, sess.MessagesSnapshot(), rt.machine.TaskType(), rt.docsResolver.References())
	if err != nil {
		gs.stateManager.Revert(sess, store.StageIdle)
		gs.sessionManager.Save(sess)
		return nil, err
	}

	rt.machine.Merge(outcome)

	if !outcome.Ready {
		sess.Append(store.RoleAssistant, "", outcome.Question)
		gs.sessionManager.Save(sess)
		gs.persistMessage(ctx, sessionUUID, store.RoleAssistant, "", outcome.Question)

		return &dto.SubmitResponse{
			DraftSessionId: sessionUUID,
			Stage:          sess.CurrentStage(),
			Mode:           sess.Mode,
			Question:       outcome.Question,
		}, nil
	}

	details, err := rt.machine.Details()
	if err != nil {
		return nil, err
	}
	sess.SetDetails(details)

	return gs.launchRun(userId, sess, rt)
}

// ForceGenerate is the "generate now" escape hatch: missing intake fields are
// filled with placeholders and generation starts immediately.
func (gs *generationService) ForceGenerate(ctx context.Context, userId uuid.UUID, request *dto.ForceGenerateRequest) (*dto.SubmitResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := gs.sessionManager.VerifyDraftSession(ctx, uow, userId, request.DraftSessionId); err != nil {
		return nil, err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, request.DraftSessionId)
	rt := gs.runtime(sess, userId)

	if sess.Mode == store.ModeConversation {
		return nil, fmt.Errorf("force-generate applies to motion modes only")
	}
	if stage := sess.CurrentStage(); stage == store.StageCreating || stage == store.StageRefining {
		return nil, fmt.Errorf("a generation is already in flight")
	}

	var userMessages []string
	for _, m := range sess.MessagesSnapshot() {
		if m.Role == store.RoleUser {
			userMessages = append(userMessages, m.Content)
		}
	}
	sess.SetDetails(rt.machine.ForceReady(userMessages))

	return gs.launchRun(userId, sess, rt)
}

// launchRun starts the generation pipeline in the background and returns
// immediately with the run id. Completion, failure and cancellation all
// surface as websocket frames and bus events.
func (gs *generationService) launchRun(userId uuid.UUID, sess *store.Session, rt *sessionRuntime) (*dto.SubmitResponse, error) {
	sessionUUID, _ := uuid.Parse(sess.ID)

	rt.machine.MarkGenerating()
	gs.stateManager.Transition(sess, store.StageCreating)
	gs.sessionManager.Save(sess)

	runCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.runSeq++
	seq := rt.runSeq
	rt.cancelRun = cancel
	rt.mu.Unlock()

	// The pipeline works off a deep copy; the live session stays free for
	// concurrent snapshots and cancels.
	snap := sess.Clone()

	runId := uuid.NewString()
	req := generate.Request{
		Details:        snap.Details,
		ReferenceNames: gs.referenceNames(rt),
		Excerpts:       gs.retrieveExcerpts(context.Background(), userId, snap, rt),
		MaxTokens:      gs.cfg.Draft.MaxTokens,
	}

	gs.publishEvent(events.NewDraftStarted(snap.UserID, snap.ID, snap.Mode))

	go func() {
		defer cancel()

		var run *store.Run
		var err error
		if snap.Mode == store.ModeParallel {
			req.Providers = []string{constant.ProviderKeyA, constant.ProviderKeyB}
			run, err = rt.orchestrator.RunParallel(runCtx, req)
		} else {
			run, err = rt.orchestrator.RunCreateRefine(runCtx, req, constant.ProviderKeyA, constant.ProviderKeyB)
		}

		rt.mu.Lock()
		stale := rt.runSeq != seq
		if !stale {
			rt.cancelRun = nil
		}
		rt.mu.Unlock()
		if stale {
			// A cancel or a newer run superseded this one; its result is
			// discarded without touching the session.
			return
		}

		if err != nil {
			gs.llmLogger.Printf("[RUN] %s failed: %v", runId, err)
			gs.stateManager.Revert(sess, store.StageCollecting)
			gs.sessionManager.Save(sess)
			gs.publishEvent(events.NewDraftFailed(snap.UserID, snap.ID, err.Error()))
			gs.delivery.Send(userId, websocket.Frame{
				Type:      websocket.FrameError,
				SessionID: sess.ID,
				Data:      err.Error(),
			})
			return
		}

		// Read the result off the run before handing it to the session, after
		// which SelectResult may mutate it.
		provider := ""
		if active := run.ActiveResult(); active != nil {
			provider = active.Provider
		}

		gs.persistRun(sessionUUID, run)
		sess.SetRun(run)
		gs.stateManager.Transition(sess, store.StageDone)
		gs.sessionManager.Save(sess)

		gs.publishEvent(events.NewDraftCompleted(snap.UserID, snap.ID, provider))
		gs.delivery.Send(userId, websocket.Frame{
			Type:      websocket.FrameResult,
			SessionID: sess.ID,
			Data:      gs.runDTO(sess.Clone(), rt),
		})
	}()

	return &dto.SubmitResponse{
		DraftSessionId: sessionUUID,
		Stage:          sess.CurrentStage(),
		Mode:           sess.Mode,
		RunId:          runId,
	}, nil
}

// SubmitFeedback routes user feedback on a finished draft into a refinement
// call against the active result. In conversation mode there is no run, so
// feedback regenerates the last reply with the second provider.
func (gs *generationService) SubmitFeedback(ctx context.Context, userId uuid.UUID, request *dto.FeedbackRequest) (*dto.SubmitResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := gs.sessionManager.VerifyDraftSession(ctx, uow, userId, request.DraftSessionId); err != nil {
		return nil, err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, request.DraftSessionId)
	rt := gs.runtime(sess, userId)
	sessionUUID := request.DraftSessionId

	sess.Append(store.RoleUser, "", request.Feedback)
	gs.persistMessage(ctx, sessionUUID, store.RoleUser, "", request.Feedback)

	if sess.Mode == store.ModeConversation {
		// Feedback supersedes the reply being streamed. Without the cancel,
		// the old stream would keep pushing tokens interleaved with the new one.
		gs.cancelInFlight(rt)

		// Second opinion: replay the history against provider B
		gs.stateManager.Transition(sess, store.StageStreaming)
		gs.sessionManager.Save(sess)

		provider := gs.registry.Get(constant.ProviderKeyB)
		historyMsgs := gs.llmHistory(sess)

		rt.mu.Lock()
		rt.runSeq++
		seq := rt.runSeq
		rt.streamHandle = gs.streamReader.Read(context.Background(), provider, historyMsgs, stream.Callbacks{
			OnToken: func(fragment string) {
				gs.delivery.Send(userId, websocket.Frame{
					Type:      websocket.FrameToken,
					SessionID: sess.ID,
					Data:      fragment,
				})
			},
			OnDone: func(fullText string) {
				gs.finishStream(userId, sessionUUID, sess, rt, seq, constant.ProviderKeyB, fullText)
			},
			OnError: func(message string) {
				gs.failStream(userId, sess, rt, seq, message)
			},
		}, llm.WithMaxTokens(gs.cfg.Draft.MaxTokens))
		rt.mu.Unlock()

		return &dto.SubmitResponse{
			DraftSessionId: sessionUUID,
			Stage:          sess.CurrentStage(),
			Mode:           sess.Mode,
		}, nil
	}

	// The refinement works against a deep copy of the run. On success the
	// copy is swapped in; on failure the live run is never touched, so the
	// prior result stays usable.
	snap := sess.Clone()
	if snap.Run == nil || snap.Run.Stage != store.StageDone {
		return nil, fmt.Errorf("no completed draft to refine")
	}

	// A refinement still in flight is superseded by this one.
	gs.cancelInFlight(rt)

	gs.stateManager.Transition(sess, store.StageRefining)
	gs.sessionManager.Save(sess)

	runCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	rt.runSeq++
	seq := rt.runSeq
	rt.cancelRun = cancel
	rt.mu.Unlock()

	go func() {
		defer cancel()
		run := snap.Run
		err := rt.orchestrator.RefineActive(runCtx, snap.Details, run, request.Feedback)

		rt.mu.Lock()
		stale := rt.runSeq != seq
		if !stale {
			rt.cancelRun = nil
		}
		rt.mu.Unlock()
		if stale {
			return
		}

		if err != nil {
			gs.llmLogger.Printf("[RUN] feedback refinement failed: %v", err)
			gs.stateManager.Transition(sess, store.StageDone)
			gs.sessionManager.Save(sess)
			gs.delivery.Send(userId, websocket.Frame{
				Type:      websocket.FrameError,
				SessionID: sess.ID,
				Data:      err.Error(),
			})
			return
		}

		gs.persistRun(sessionUUID, run)
		sess.SetRun(run)
		gs.stateManager.Transition(sess, store.StageDone)
		gs.sessionManager.Save(sess)
		gs.delivery.Send(userId, websocket.Frame{
			Type:      websocket.FrameResult,
			SessionID: sess.ID,
			Data:      gs.runDTO(sess.Clone(), rt),
		})
	}()

	return &dto.SubmitResponse{
		DraftSessionId: sessionUUID,
		Stage:          sess.CurrentStage(),
		Mode:           sess.Mode,
	}, nil
}

// SelectResult switches the presented result between providers of a
// completed parallel run.
func (gs *generationService) SelectResult(ctx context.Context, userId uuid.UUID, request *dto.SelectResultRequest) (*dto.SubmitResponse, error) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := gs.sessionManager.VerifyDraftSession(ctx, uow, userId, request.DraftSessionId); err != nil {
		return nil, err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, request.DraftSessionId)
	rt := gs.runtime(sess, userId)

	snap := sess.Clone()
	if snap.Run == nil || snap.Run.Mode != store.ModeParallel {
		return nil, fmt.Errorf("no parallel run to select from")
	}
	result, ok := snap.Run.ByProvider[request.Provider]
	if !ok || !result.Success {
		return nil, fmt.Errorf("provider %s has no usable result", request.Provider)
	}

	sess.UpdateRun(func(run *store.Run) {
		run.ActiveProvider = request.Provider
		// An explicit provider selection overrides any post-completion refinement
		run.ActiveSlot = ""
	})
	gs.sessionManager.Save(sess)

	return &dto.SubmitResponse{
		DraftSessionId: request.DraftSessionId,
		Stage:          sess.CurrentStage(),
		Mode:           sess.Mode,
		Run:            gs.runDTO(sess.Clone(), rt),
	}, nil
}

// Cancel aborts the in-flight stream or pipeline run. Tokens and results
// arriving after Cancel are discarded via the sequence guard.
func (gs *generationService) Cancel(ctx context.Context, userId uuid.UUID, request *dto.CancelRequest) error {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	if _, err := gs.sessionManager.VerifyDraftSession(ctx, uow, userId, request.DraftSessionId); err != nil {
		return err
	}

	sess := gs.sessionManager.LoadOrCreate(userId, request.DraftSessionId)
	rt := gs.runtime(sess, userId)

	gs.cancelInFlight(rt)
	rt.estimator.Finish()

	snap := sess.Clone()
	switch snap.Stage {
	case store.StageStreaming:
		gs.stateManager.Revert(sess, store.StageIdle)
	case store.StageCreating, store.StageRefining:
		if snap.Run != nil && snap.Run.Stage == store.StageDone {
			gs.stateManager.Revert(sess, store.StageDone)
		} else {
			gs.stateManager.Revert(sess, store.StageCollecting)
		}
	}
	gs.sessionManager.Save(sess)

	gs.publishEvent(events.NewDraftCancelled(sess.UserID, sess.ID))
	gs.delivery.Send(userId, websocket.Frame{
		Type:      websocket.FrameStage,
		SessionID: sess.ID,
		Data:      sess.CurrentStage(),
	})
	return nil
}

// DeleteSession removes a draft session and its live state
func (gs *generationService) DeleteSession(ctx context.Context, userId uuid.UUID, request *dto.DeleteDraftSessionRequest) error {
	uow := gs.uowFactory.NewUnitOfWork(ctx)

	sess, err := uow.DraftSessionRepository().FindOne(ctx,
		specification.ByID{ID: request.DraftSessionId},
		specification.OwnedByUser{UserID: userId},
	)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session not found or access denied")
	}

	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	if err := uow.DraftMessageRepository().DeleteAllBySessionIdUnscoped(ctx, request.DraftSessionId); err != nil {
		return err
	}
	if err := uow.DraftResultRepository().DeleteAllBySessionIdUnscoped(ctx, request.DraftSessionId); err != nil {
		return err
	}
	if err := uow.DraftSessionRepository().Delete(ctx, request.DraftSessionId); err != nil {
		return err
	}
	if err := uow.Commit(); err != nil {
		return err
	}

	gs.sessionManager.Drop(request.DraftSessionId)
	gs.dropRuntime(request.DraftSessionId.String())
	return nil
}

// --- helpers ---

// reconcileDocuments folds toggled ids and upload names into the working
// set, then resolves pending names against the user's stored documents.
func (gs *generationService) reconcileDocuments(ctx context.Context, userId uuid.UUID, sess *store.Session, rt *sessionRuntime, ids []uint, uploadNames []string) error {
	uow := gs.uowFactory.NewUnitOfWork(ctx)

	if len(ids) > 0 {
		found, err := uow.DocumentRepository().FindAll(ctx,
			specification.ByNumericIDs{IDs: ids},
			specification.OwnedByUser{UserID: userId},
		)
		if err != nil {
			return err
		}
		refs := make([]docs.Reference, len(found))
		for i, d := range found {
			refs[i] = docs.Reference{ID: d.Id, Name: d.Name, Type: d.Type}
		}
		rt.docsResolver.Carry(refs)
	}

	for _, name := range uploadNames {
		rt.docsResolver.AddPendingUpload(name)
	}

	if len(rt.docsResolver.Pending()) > 0 {
		all, err := uow.DocumentRepository().FindAll(ctx,
			specification.OwnedByUser{UserID: userId},
			specification.OrderBy{Field: "created_at", Desc: false},
		)
		if err != nil {
			return err
		}
		refs := make([]docs.Reference, len(all))
		for i, d := range all {
			refs[i] = docs.Reference{ID: d.Id, Name: d.Name, Type: d.Type}
		}
		rt.docsResolver.Reconcile(refs)
	}

	sess.SetDocuments(rt.docsResolver.IDs(), rt.docsResolver.Pending())
	return nil
}

// retrieveExcerpts pulls the chunks most relevant to the case narrative out
// of the indexed reference documents. Retrieval is best-effort: any failure
// degrades to a prompt that names the documents without quoting them.
func (gs *generationService) retrieveExcerpts(ctx context.Context, userId uuid.UUID, snap *store.Session, rt *sessionRuntime) []prompt.Excerpt {
	docIds := rt.docsResolver.IDs()
	if len(docIds) == 0 {
		return nil
	}

	query := snap.LastQuery
	if snap.Details != nil && snap.Details.Narrative != "" {
		query = snap.Details.Narrative
	}
	if query == "" {
		return nil
	}

	res, err := gs.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		gs.llmLogger.Printf("[RETRIEVE] query embedding failed: %v", err)
		return nil
	}

	uow := gs.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.DocumentEmbeddingRepository().SearchSimilar(ctx, res.Embedding.Values, 5, userId, docIds)
	if err != nil {
		gs.llmLogger.Printf("[RETRIEVE] similarity search failed: %v", err)
		return nil
	}

	nameById := make(map[uint]string)
	for _, ref := range rt.docsResolver.References() {
		nameById[ref.ID] = ref.Name
	}

	excerpts := make([]prompt.Excerpt, 0, len(scored))
	for _, s := range scored {
		source := nameById[s.Embedding.DocumentId]
		if source == "" {
			source = fmt.Sprintf("document %d", s.Embedding.DocumentId)
		}
		excerpts = append(excerpts, prompt.Excerpt{Source: source, Text: s.Embedding.ChunkText})
	}
	return excerpts
}

func (gs *generationService) referenceNames(rt *sessionRuntime) []string {
	refs := rt.docsResolver.References()
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}

// hydrateSession rebuilds the in-memory transcript from persisted messages
// after a cache miss, typically the first touch after a process restart.
// Load failures leave the session empty; turns still persist going forward.
func (gs *generationService) hydrateSession(ctx context.Context, sessionId uuid.UUID, sess *store.Session) {
	if sess.MessageCount() > 0 {
		return
	}
	msgs, err := gs.historyLoader.LoadConversationHistory(ctx, sessionId)
	if err != nil {
		gs.llmLogger.Printf("[HISTORY] hydrate failed for %s: %v", sessionId, err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	transcript := make([]store.Message, len(msgs))
	for i, m := range msgs {
		transcript[i] = store.Message{Role: m.Role, Content: m.Content}
	}
	if !sess.AdoptHistory(transcript) {
		return
	}
	gs.sessionManager.Save(sess)
}

// llmHistory maps the session log onto provider messages.
func (gs *generationService) llmHistory(sess *store.Session) []llm.Message {
	limit := gs.cfg.Draft.HistoryLimit
	msgs := sess.MessagesSnapshot()
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func (gs *generationService) persistMessage(ctx context.Context, sessionId uuid.UUID, role, provider, content string) {
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	err := uow.DraftMessageRepository().Create(ctx, &entity.DraftMessage{
		Id:             uuid.New(),
		DraftSessionId: sessionId,
		Role:           role,
		Provider:       provider,
		Content:        content,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		gs.llmLogger.Printf("[PERSIST] message save failed: %v", err)
	}
}

// persistRun stores every result of a completed run. Persistence failures
// are logged, not surfaced: the in-memory session already has the results.
func (gs *generationService) persistRun(sessionId uuid.UUID, run *store.Run) {
	ctx := context.Background()
	uow := gs.uowFactory.NewUnitOfWork(ctx)
	repo := uow.DraftResultRepository()

	save := func(result *store.Result, slot string) {
		if result == nil {
			return
		}
		var doc []byte
		if result.Document != nil {
			doc, _ = json.Marshal(result.Document)
		}
		err := repo.Create(ctx, &entity.DraftResult{
			Id:             uuid.New(),
			DraftSessionId: sessionId,
			Provider:       result.Provider,
			Slot:           slot,
			Success:        result.Success,
			Document:       doc,
			RawText:        result.RawText,
			ChangeNotes:    run.ChangeNotes,
			CreatedAt:      time.Now(),
		})
		if err != nil {
			gs.llmLogger.Printf("[PERSIST] result save failed: %v", err)
		}
	}

	if run.Mode == store.ModeParallel {
		for name, result := range run.ByProvider {
			save(result, name)
		}
		save(run.Refined, store.SlotRefined)
		return
	}
	save(run.Initial, store.SlotInitial)
	save(run.Refined, store.SlotRefined)
}

func (gs *generationService) publishEvent(event events.Event) {
	if gs.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gs.publisher.Publish(ctx, event); err != nil {
		gs.llmLogger.Printf("[EVENTS] publish failed: %v", err)
	}
}

// runDTO builds the run view from a session clone. Callers pass a Clone so
// the DTO never aliases state a background goroutine is still writing.
func (gs *generationService) runDTO(snap *store.Session, rt *sessionRuntime) *dto.DraftRunDTO {
	run := snap.Run
	if run == nil {
		return nil
	}

	toDTO := func(r *store.Result) *dto.ResultDTO {
		if r == nil {
			return nil
		}
		return &dto.ResultDTO{
			Success:  r.Success,
			Provider: r.Provider,
			Document: r.Document,
			RawText:  r.RawText,
		}
	}

	var results map[string]*dto.ResultDTO
	if len(run.ByProvider) > 0 {
		results = make(map[string]*dto.ResultDTO, len(run.ByProvider))
		for name, r := range run.ByProvider {
			results[name] = toDTO(r)
		}
	}

	progressSnap := rt.estimator.Snapshot()
	return &dto.DraftRunDTO{
		Mode:            run.Mode,
		Stage:           run.Stage,
		ActiveSlot:      run.ActiveSlot,
		ActiveProvider:  run.ActiveProvider,
		CreatorProvider: run.CreatorProvider,
		RefinerProvider: run.RefinerProvider,
		ChangeNotes:     run.ChangeNotes,
		Results:         results,
		Active:          toDTO(run.ActiveResult()),
		Progress: &dto.ProgressDTO{
			Percent:        progressSnap.Percent,
			ElapsedSeconds: progressSnap.ElapsedSeconds,
			Running:        progressSnap.Running,
		},
		Details: snap.Details,
	}
}
