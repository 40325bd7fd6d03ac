package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"ai-motiondraft-be/pkg/draft/generate"
	"ai-motiondraft-be/pkg/draft/progress"
	"ai-motiondraft-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

type fakeGenerator struct {
	results map[string]*store.Result
	err     error
	calls   int
}

func (g *fakeGenerator) Generate(ctx context.Context, req generate.Request) (map[string]*store.Result, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	out := make(map[string]*store.Result, len(req.Providers))
	for _, name := range req.Providers {
		if r, ok := g.results[name]; ok {
			out[name] = r
		}
	}
	return out, nil
}

type fakeRefiner struct {
	result       *store.Result
	notes        string
	err          error
	calls        int
	lastProvider string
	lastFeedback string
}

func (r *fakeRefiner) Refine(ctx context.Context, details *store.CaseDetails, previous *store.Result, instruction string, provider string) (*store.Result, string, error) {
	r.calls++
	r.lastProvider = provider
	r.lastFeedback = instruction
	if r.err != nil {
		return nil, "", r.err
	}
	return r.result, r.notes, nil
}

func okResult(provider string) *store.Result {
	return &store.Result{
		Success:  true,
		Provider: provider,
		Document: &store.MotionDocument{Title: "Motion to Compel Arbitration"},
	}
}

func failedResult(provider, msg string) *store.Result {
	return &store.Result{
		Provider: provider,
		Meta:     map[string]interface{}{"error": msg},
	}
}

func newTestOrchestrator(g generate.Generator, r generate.Refiner) *Orchestrator {
	est := progress.NewEstimator(90, time.Hour, nil)
	return NewOrchestrator(g, r, est, log.New(io.Discard, "", 0))
}

func parallelRequest() generate.Request {
	return generate.Request{
		Details:   &store.CaseDetails{Narrative: "compel arbitration"},
		Providers: []string{"provider-a", "provider-b"},
	}
}

func TestRunParallelActivatesFirstSuccess(t *testing.T) {
	gen := &fakeGenerator{results: map[string]*store.Result{
		"provider-a": failedResult("provider-a", "timeout"),
		"provider-b": okResult("provider-b"),
	}}
	o := newTestOrchestrator(gen, &fakeRefiner{})

	run, err := o.RunParallel(context.Background(), parallelRequest())

	assert.NoError(t, err)
	assert.Equal(t, store.ModeParallel, run.Mode)
	assert.Equal(t, store.StageDone, run.Stage)
	assert.Equal(t, "provider-b", run.ActiveProvider)
	assert.Len(t, run.ByProvider, 2)
}

func TestRunParallelRequestOrderWins(t *testing.T) {
	gen := &fakeGenerator{results: map[string]*store.Result{
		"provider-a": okResult("provider-a"),
		"provider-b": okResult("provider-b"),
	}}
	o := newTestOrchestrator(gen, &fakeRefiner{})

	run, err := o.RunParallel(context.Background(), parallelRequest())

	assert.NoError(t, err)
	assert.Equal(t, "provider-a", run.ActiveProvider)
}

func TestRunParallelAllFailed(t *testing.T) {
	gen := &fakeGenerator{results: map[string]*store.Result{
		"provider-a": failedResult("provider-a", "timeout"),
		"provider-b": failedResult("provider-b", "model missing"),
	}}
	o := newTestOrchestrator(gen, &fakeRefiner{})

	run, err := o.RunParallel(context.Background(), parallelRequest())

	assert.Error(t, err)
	assert.NotNil(t, run)
	assert.Empty(t, run.ActiveProvider)
}

func TestRunCreateRefineHappyPath(t *testing.T) {
	gen := &fakeGenerator{results: map[string]*store.Result{
		"provider-a": okResult("provider-a"),
	}}
	ref := &fakeRefiner{result: okResult("provider-b"), notes: "tightened the standard of review"}
	o := newTestOrchestrator(gen, ref)

	req := generate.Request{Details: &store.CaseDetails{Narrative: "compel arbitration"}}
	run, err := o.RunCreateRefine(context.Background(), req, "provider-a", "provider-b")

	assert.NoError(t, err)
	assert.Equal(t, store.StageDone, run.Stage)
	assert.Equal(t, store.SlotRefined, run.ActiveSlot)
	assert.Equal(t, "tightened the standard of review", run.ChangeNotes)
	assert.Equal(t, run.Refined, run.ActiveResult())
	// Automatic stage-2 pass carries no user instruction.
	assert.Empty(t, ref.lastFeedback)
}

func TestRunCreateRefineStage2FailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{results: map[string]*store.Result{
		"provider-a": okResult("provider-a"),
	}}
	ref := &fakeRefiner{err: errors.New("refiner offline")}
	o := newTestOrchestrator(gen, ref)

	req := generate.Request{Details: &store.CaseDetails{}}
	run, err := o.RunCreateRefine(context.Background(), req, "provider-a", "provider-b")

	// Stage-2 failure is not terminal: the run degrades to the initial slot.
	assert.NoError(t, err)
	assert.Equal(t, store.StageDone, run.Stage)
	assert.Equal(t, store.SlotInitial, run.ActiveSlot)
	assert.Nil(t, run.Refined)
	assert.Equal(t, run.Initial, run.ActiveResult())
}

func TestRunCreateRefineStage1FailureIsTerminal(t *testing.T) {
	gen := &fakeGenerator{results: map[string]*store.Result{
		"provider-a": failedResult("provider-a", "context length exceeded"),
	}}
	o := newTestOrchestrator(gen, &fakeRefiner{})

	req := generate.Request{Details: &store.CaseDetails{}}
	run, err := o.RunCreateRefine(context.Background(), req, "provider-a", "provider-b")

	assert.Error(t, err)
	assert.Nil(t, run)
	assert.Contains(t, err.Error(), "context length exceeded")
}

func TestRefineActiveRequiresCompletedRun(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{}, &fakeRefiner{})

	err := o.RefineActive(context.Background(), nil, nil, "shorter")
	assert.Error(t, err)

	err = o.RefineActive(context.Background(), nil, &store.Run{Stage: store.StageCreating}, "shorter")
	assert.Error(t, err)
}

func TestRefineActiveAppliesFeedback(t *testing.T) {
	ref := &fakeRefiner{result: okResult("provider-b"), notes: "added reply deadline"}
	o := newTestOrchestrator(&fakeGenerator{}, ref)

	run := &store.Run{
		Mode:            store.ModeRefine,
		Stage:           store.StageDone,
		Initial:         okResult("provider-a"),
		ActiveSlot:      store.SlotInitial,
		CreatorProvider: "provider-a",
		RefinerProvider: "provider-b",
	}

	err := o.RefineActive(context.Background(), &store.CaseDetails{}, run, "add the reply deadline")

	assert.NoError(t, err)
	assert.Equal(t, store.SlotRefined, run.ActiveSlot)
	assert.Equal(t, "added reply deadline", run.ChangeNotes)
	assert.Equal(t, "provider-b", ref.lastProvider)
	assert.Equal(t, "add the reply deadline", ref.lastFeedback)
}

func TestRefineActiveFailureLeavesRunUntouched(t *testing.T) {
	ref := &fakeRefiner{err: errors.New("refiner offline")}
	o := newTestOrchestrator(&fakeGenerator{}, ref)

	run := &store.Run{
		Mode:       store.ModeRefine,
		Stage:      store.StageDone,
		Initial:    okResult("provider-a"),
		ActiveSlot: store.SlotInitial,
	}

	err := o.RefineActive(context.Background(), &store.CaseDetails{}, run, "shorter")

	assert.Error(t, err)
	assert.Equal(t, store.SlotInitial, run.ActiveSlot)
	assert.Nil(t, run.Refined)
	assert.Equal(t, store.StageDone, run.Stage)
}

func TestRefineActiveParallelUsesActiveProvider(t *testing.T) {
	ref := &fakeRefiner{result: okResult("provider-b")}
	o := newTestOrchestrator(&fakeGenerator{}, ref)

	run := &store.Run{
		Mode:  store.ModeParallel,
		Stage: store.StageDone,
		ByProvider: map[string]*store.Result{
			"provider-a": okResult("provider-a"),
			"provider-b": okResult("provider-b"),
		},
		ActiveProvider: "provider-b",
	}

	err := o.RefineActive(context.Background(), &store.CaseDetails{}, run, "cite the FAA")

	assert.NoError(t, err)
	assert.Equal(t, "provider-b", ref.lastProvider)
	assert.Equal(t, "provider-b", run.RefinerProvider)
	assert.Equal(t, store.SlotRefined, run.ActiveSlot)
	assert.Equal(t, run.Refined, run.ActiveResult())
}
