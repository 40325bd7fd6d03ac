package intake

import (
	"io"
	"log"
	"testing"
)

func newTestMachine(taskType string) *Machine {
	return NewMachine(taskType, log.New(io.Discard, "", 0))
}

func TestMachineTransitions(t *testing.T) {
	m := newTestMachine("motion")

	if got := m.State(); got != StateIdle {
		t.Fatalf("initial state = %s, want %s", got, StateIdle)
	}

	m.Begin()
	if got := m.State(); got != StateCollecting {
		t.Fatalf("after Begin state = %s, want %s", got, StateCollecting)
	}

	// Begin is idempotent once collecting
	m.Begin()
	if got := m.State(); got != StateCollecting {
		t.Fatalf("second Begin state = %s, want %s", got, StateCollecting)
	}

	m.Merge(&Outcome{Ready: true, Fields: map[string]string{"client_name": "Apex"}})
	if got := m.State(); got != StateReady {
		t.Fatalf("after ready Merge state = %s, want %s", got, StateReady)
	}

	m.MarkGenerating()
	if got := m.State(); got != StateGenerating {
		t.Fatalf("after MarkGenerating state = %s, want %s", got, StateGenerating)
	}
}

func TestMachineMergeAccumulates(t *testing.T) {
	m := newTestMachine("motion")
	m.Begin()

	m.Merge(&Outcome{
		Ready:    false,
		Question: "What court is this in?",
		Fields:   map[string]string{"client_name": "Apex Logistics"},
	})
	if got := m.State(); got != StateCollecting {
		t.Fatalf("not-ready Merge moved state to %s", got)
	}

	// Later rounds add fields without erasing earlier ones; empty values
	// never overwrite.
	m.Merge(&Outcome{
		Ready:     true,
		Fields:    map[string]string{"court": "King County Superior Court", "client_name": ""},
		Narrative: "Defendant moves to compel arbitration.",
	})

	details, err := m.Details()
	if err != nil {
		t.Fatalf("Details() error: %v", err)
	}
	if details.Fields["client_name"] != "Apex Logistics" {
		t.Errorf("client_name = %q, want accumulated value", details.Fields["client_name"])
	}
	if details.Fields["court"] != "King County Superior Court" {
		t.Errorf("court = %q", details.Fields["court"])
	}
	if details.Narrative == "" {
		t.Error("narrative not carried into details")
	}
}

func TestMachineDetailsRequiresReady(t *testing.T) {
	m := newTestMachine("motion")
	m.Begin()

	if _, err := m.Details(); err == nil {
		t.Fatal("Details() while collecting should error")
	}
}

func TestMachineForceReady(t *testing.T) {
	m := newTestMachine("motion")
	m.Begin()
	m.Merge(&Outcome{Fields: map[string]string{"client_name": "Apex Logistics"}})

	details := m.ForceReady([]string{"I need a motion to compel arbitration"})

	if got := m.State(); got != StateReady {
		t.Fatalf("after ForceReady state = %s, want %s", got, StateReady)
	}
	if details.Fields["client_name"] != "Apex Logistics" {
		t.Errorf("gathered field lost: %q", details.Fields["client_name"])
	}
	for _, key := range RequiredFields {
		if details.Fields[key] == "" {
			t.Errorf("required field %q left empty, want placeholder", key)
		}
	}
	if details.Fields["case_number"] != PlaceholderValue {
		t.Errorf("ungathered field = %q, want %q", details.Fields["case_number"], PlaceholderValue)
	}
	if details.Narrative != "I need a motion to compel arbitration" {
		t.Errorf("narrative = %q, want user message fallback", details.Narrative)
	}
}

func TestMachineForceReadyEmptyEverything(t *testing.T) {
	m := newTestMachine("")
	m.Begin()

	details := m.ForceReady(nil)
	if details.Narrative != PlaceholderValue {
		t.Errorf("narrative = %q, want placeholder", details.Narrative)
	}
	if details.TaskType != DefaultTaskType {
		t.Errorf("task type = %q, want default %q", details.TaskType, DefaultTaskType)
	}
}

func TestMachineSingleFlightQueue(t *testing.T) {
	m := newTestMachine("motion")

	if !m.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if m.TryAcquire() {
		t.Fatal("second TryAcquire should fail while round in flight")
	}

	m.Enqueue("also, the hearing is October 12")
	m.Enqueue("and we represent the defendant")

	queued := m.Drain()
	if len(queued) != 2 {
		t.Fatalf("Drain returned %d messages, want 2", len(queued))
	}
	if queued[0] != "also, the hearing is October 12" {
		t.Errorf("queue order broken: %q first", queued[0])
	}
	if got := m.Drain(); len(got) != 0 {
		t.Errorf("second Drain returned %d messages, want 0", len(got))
	}

	m.Release()
	if !m.TryAcquire() {
		t.Fatal("TryAcquire after Release should succeed")
	}
}
