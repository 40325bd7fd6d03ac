package store

import (
	"fmt"
	"sync"
	"testing"
)

func TestSessionCloneIsDeepCopy(t *testing.T) {
	sess := &Session{
		ID:     "s1",
		UserID: "u1",
		Stage:  StageDone,
		Mode:   ModeRefine,
		Details: &CaseDetails{
			Fields:    map[string]string{"client_name": "Acme Corp"},
			Narrative: "breach of contract",
			TaskType:  "motion",
		},
		DocumentIDs: []uint{3, 7},
		Run: &Run{
			Mode:       ModeRefine,
			Stage:      StageDone,
			ActiveSlot: SlotInitial,
			Initial: &Result{
				Success:  true,
				Provider: "provider-a",
				Document: &MotionDocument{
					Title:     "Motion to Compel",
					Sections:  []Section{{Heading: "Introduction", Body: "..."}},
					Citations: []string{"Smith v. Jones"},
				},
				Meta: map[string]interface{}{"duration_ms": 1200},
			},
		},
	}
	sess.Append(RoleUser, "", "draft it")

	clone := sess.Clone()

	// Mutations of the original must not show through the clone.
	sess.Append(RoleAssistant, "provider-a", "done")
	sess.SwapStage(StageIdle)
	sess.Details.Fields["client_name"] = "changed"
	sess.Run.ActiveSlot = SlotRefined
	sess.Run.Initial.Document.Sections[0].Body = "rewritten"
	sess.DocumentIDs[0] = 99

	if len(clone.Messages) != 1 {
		t.Fatalf("clone has %d messages, want 1", len(clone.Messages))
	}
	if clone.Stage != StageDone {
		t.Fatalf("clone stage = %s, want %s", clone.Stage, StageDone)
	}
	if clone.Details.Fields["client_name"] != "Acme Corp" {
		t.Fatalf("clone details leaked mutation: %q", clone.Details.Fields["client_name"])
	}
	if clone.Run.ActiveSlot != SlotInitial {
		t.Fatalf("clone run slot = %s, want %s", clone.Run.ActiveSlot, SlotInitial)
	}
	if clone.Run.Initial.Document.Sections[0].Body != "..." {
		t.Fatal("clone document aliased the original's sections")
	}
	if clone.DocumentIDs[0] != 3 {
		t.Fatal("clone document ids aliased the original's slice")
	}
}

func TestSessionCloneOfEmptySession(t *testing.T) {
	sess := &Session{ID: "s1", Stage: StageIdle, Mode: ModeConversation}
	clone := sess.Clone()
	if clone.Details != nil || clone.Run != nil || len(clone.Messages) != 0 {
		t.Fatal("empty session clone is not empty")
	}
}

// Readers clone and writers append concurrently, the way snapshot requests
// overlap streaming completions. Run with the race detector.
func TestSessionConcurrentAppendAndClone(t *testing.T) {
	sess := &Session{ID: "s1", Stage: StageIdle, Mode: ModeConversation}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				sess.Append(RoleAssistant, "provider-a", fmt.Sprintf("reply %d-%d", w, i))
				sess.SwapStage(StageStreaming)
				sess.SetRun(&Run{Mode: ModeRefine, Stage: StageDone})
				sess.SetLastQuery("query")
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				clone := sess.Clone()
				_ = len(clone.Messages)
				_ = clone.CurrentStage()
				_ = sess.MessagesSnapshot()
			}
		}()
	}
	wg.Wait()

	if got := sess.MessageCount(); got != 400 {
		t.Fatalf("message count = %d, want 400", got)
	}
}

func TestSessionAdoptHistoryOnlyWhenEmpty(t *testing.T) {
	sess := &Session{ID: "s1"}
	loaded := []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "second"},
	}

	if !sess.AdoptHistory(loaded) {
		t.Fatal("adopt into empty session refused")
	}
	if sess.AdoptHistory(loaded) {
		t.Fatal("adopt into populated session accepted")
	}
	if got := sess.MessageCount(); got != 2 {
		t.Fatalf("message count = %d, want 2", got)
	}
}
