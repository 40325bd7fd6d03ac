package pipeline

import (
	"context"
	"fmt"
	"log"

	"ai-motiondraft-be/pkg/draft/generate"
	"ai-motiondraft-be/pkg/draft/progress"
	"ai-motiondraft-be/pkg/store"
)

// Orchestrator drives the two generation modes: parallel multi-provider
// single-shot, and sequential create-then-refine with a post-completion
// refinement loop. The progress estimator is restarted per stage and is
// never consulted for control flow.
type Orchestrator struct {
	generator generate.Generator
	refiner   generate.Refiner
	progress  *progress.Estimator
	logger    *log.Logger
}

func NewOrchestrator(
	generator generate.Generator,
	refiner generate.Refiner,
	estimator *progress.Estimator,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		refiner:   refiner,
		progress:  estimator,
		logger:    logger,
	}
}

// RunParallel fans one request out to every provider for comparison. There
// is no refine stage; each provider succeeds or fails independently and the
// first successful provider (in request order) starts out active.
func (o *Orchestrator) RunParallel(ctx context.Context, req generate.Request) (*store.Run, error) {
	run := &store.Run{
		Mode:  store.ModeParallel,
		Stage: store.StageCreating,
	}

	o.progress.Start()
	results, err := o.generator.Generate(ctx, req)
	o.progress.Finish()
	if err != nil {
		return nil, err
	}

	run.ByProvider = results
	for _, name := range req.Providers {
		if result, ok := results[name]; ok && result.Success {
			run.ActiveProvider = name
			break
		}
	}
	run.Stage = store.StageDone

	if run.ActiveProvider == "" {
		return run, fmt.Errorf("all providers failed")
	}

	o.logger.Printf("[PIPELINE] Parallel run done: %d providers, active=%s", len(results), run.ActiveProvider)
	return run, nil
}

// RunCreateRefine executes the two-stage pipeline. Stage-1 failure is
// terminal. Stage-2 failure is NOT: the run degrades to the stage-1 result
// and still reaches Done, so the caller is never left with nothing.
func (o *Orchestrator) RunCreateRefine(
	ctx context.Context,
	req generate.Request,
	creatorProvider string,
	refinerProvider string,
) (*store.Run, error) {

	run := &store.Run{
		Mode:            store.ModeRefine,
		Stage:           store.StageCreating,
		CreatorProvider: creatorProvider,
		RefinerProvider: refinerProvider,
	}

	// Stage 1: create
	o.logger.Printf("[PIPELINE] Stage 1 (create) via %s", creatorProvider)
	o.progress.Start()

	createReq := req
	createReq.Providers = []string{creatorProvider}
	results, err := o.generator.Generate(ctx, createReq)
	if err != nil {
		o.progress.Finish()
		return nil, err
	}

	initial := results[creatorProvider]
	if initial == nil || !initial.Success {
		o.progress.Finish()
		return nil, fmt.Errorf("creator provider %s failed: %s", creatorProvider, resultError(initial))
	}

	run.Initial = initial
	run.ActiveSlot = store.SlotInitial
	o.progress.Finish()

	// Stage 2: refine, immediately
	run.Stage = store.StageRefining
	o.logger.Printf("[PIPELINE] Stage 2 (refine) via %s", refinerProvider)
	o.progress.Start()

	refined, notes, err := o.refiner.Refine(ctx, req.Details, initial, "", refinerProvider)
	o.progress.Finish()

	if err != nil || refined == nil || !refined.Success {
		// Partial-pipeline failure: keep stage 1's result and finish the
		// run in a usable state. Not escalated as an error.
		o.logger.Printf("[PIPELINE] Refine failed, falling back to initial result: %v", err)
		run.ActiveSlot = store.SlotInitial
		run.Stage = store.StageDone
		return run, nil
	}

	run.Refined = refined
	run.ChangeNotes = notes
	run.ActiveSlot = store.SlotRefined
	run.Stage = store.StageDone

	o.logger.Printf("[PIPELINE] Run done, refined result active")
	return run, nil
}

// RefineActive is the post-completion refinement loop: user feedback is
// routed straight into a stage-2-shaped call using the currently active
// result as context, skipping intake entirely. On failure the run is left
// untouched so the session stays usable.
func (o *Orchestrator) RefineActive(
	ctx context.Context,
	details *store.CaseDetails,
	run *store.Run,
	feedback string,
) error {
	if run == nil || run.Stage != store.StageDone {
		return fmt.Errorf("no completed run to refine")
	}

	previous := run.ActiveResult()
	if previous == nil {
		return fmt.Errorf("run has no result to refine")
	}

	refinerProvider := run.RefinerProvider
	if refinerProvider == "" {
		// Parallel runs have no dedicated refiner; reuse the active provider.
		refinerProvider = previous.Provider
	}

	o.progress.Start()
	refined, notes, err := o.refiner.Refine(ctx, details, previous, feedback, refinerProvider)
	o.progress.Finish()
	if err != nil {
		return err
	}
	if refined == nil || !refined.Success {
		return fmt.Errorf("refiner provider %s failed: %s", refinerProvider, resultError(refined))
	}

	run.Refined = refined
	run.ChangeNotes = notes
	run.ActiveSlot = store.SlotRefined
	if run.Mode == store.ModeParallel {
		// Further feedback keeps refining the refined slot, so record the
		// refiner for the next round.
		run.RefinerProvider = refinerProvider
	}

	o.logger.Printf("[PIPELINE] Post-completion refinement applied via %s", refinerProvider)
	return nil
}

func resultError(result *store.Result) string {
	if result == nil {
		return "no result"
	}
	if result.Meta != nil {
		if msg, ok := result.Meta["error"].(string); ok {
			return msg
		}
	}
	return "unknown error"
}
