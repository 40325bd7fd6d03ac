package intake

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"ai-motiondraft-be/pkg/store"
)

// Machine states
const (
	StateIdle       = "IDLE"
	StateCollecting = "COLLECTING"
	StateReady      = "READY"
	StateGenerating = "GENERATING"
)

// Field keys the intake dialogue tries to fill before generation.
var RequiredFields = []string{"client_name", "case_number", "court", "opposing_party"}

// PlaceholderValue marks a field the dialogue never gathered. Used by the
// force-generate escape hatch so generation can proceed in degraded mode
// instead of losing the request.
const PlaceholderValue = "Not specified"

// DefaultTaskType is used when generation is forced before the dialogue
// established what kind of document to draft.
const DefaultTaskType = "motion"

// Outcome is the tagged result of one intake round: either a clarifying
// question (Ready=false) or the structured payload needed for generation.
// Fields may be partially filled on either variant; the machine accumulates
// them across rounds.
type Outcome struct {
	Ready     bool              `json:"ready"`
	Question  string            `json:"question,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Narrative string            `json:"narrative,omitempty"`
	TaskType  string            `json:"task_type,omitempty"`
}

// Machine drives the clarifying-question dialogue that precedes generation.
// It enforces single-flight intake calls: a user message arriving while a
// round is outstanding is queued as the next round's tail, never dispatched
// concurrently.
type Machine struct {
	mu     sync.Mutex
	state  string
	logger *log.Logger

	taskType  string
	fields    map[string]string
	narrative string

	busy  bool
	queue []string
}

func NewMachine(taskType string, logger *log.Logger) *Machine {
	return &Machine{
		state:    StateIdle,
		taskType: taskType,
		fields:   make(map[string]string),
		logger:   logger,
	}
}

func (m *Machine) State() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TaskType returns the accumulated task type, empty until the user or the
// intake endpoint names one.
func (m *Machine) TaskType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.taskType
}

// Begin moves Idle -> Collecting on the first user message.
func (m *Machine) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateIdle {
		m.state = StateCollecting
		m.logger.Printf("[INTAKE] %s -> %s", StateIdle, StateCollecting)
	}
}

// TryAcquire claims the single outstanding-call slot. Returns false if a
// round is already in flight.
func (m *Machine) TryAcquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false
	}
	m.busy = true
	return true
}

// Release frees the outstanding-call slot.
func (m *Machine) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
}

// Enqueue stores a user message that arrived while a round was outstanding.
func (m *Machine) Enqueue(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, content)
	m.logger.Printf("[INTAKE] Queued message while round in flight (%d waiting)", len(m.queue))
}

// Drain returns and clears queued messages. They become the tail of the next
// round's message sequence.
func (m *Machine) Drain() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	queued := m.queue
	m.queue = nil
	return queued
}

// Merge folds a round's outcome into accumulated state and performs the
// Collecting -> Ready transition when the endpoint says enough has been
// gathered.
func (m *Machine) Merge(outcome *Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range outcome.Fields {
		if value != "" {
			m.fields[key] = value
		}
	}
	if outcome.Narrative != "" {
		m.narrative = outcome.Narrative
	}
	if outcome.TaskType != "" {
		m.taskType = outcome.TaskType
	}

	if outcome.Ready && m.state == StateCollecting {
		m.state = StateReady
		m.logger.Printf("[INTAKE] %s -> %s (%d fields)", StateCollecting, StateReady, len(m.fields))
	}
}

// ForceReady is the explicit "generate now" escape hatch. Any field the
// endpoint has not supplied is filled with a placeholder and the narrative
// falls back to the user's own words. This is a deliberate degraded-mode
// path, not silent data loss; the placeholders are visible downstream.
func (m *Machine) ForceReady(userMessages []string) *store.CaseDetails {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := make(map[string]string, len(RequiredFields))
	for _, key := range RequiredFields {
		if v, ok := m.fields[key]; ok && v != "" {
			fields[key] = v
		} else {
			fields[key] = PlaceholderValue
		}
	}
	for key, value := range m.fields {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}

	narrative := m.narrative
	if narrative == "" {
		narrative = strings.Join(userMessages, "\n")
	}
	if narrative == "" {
		narrative = PlaceholderValue
	}

	taskType := m.taskType
	if taskType == "" {
		taskType = DefaultTaskType
	}

	prev := m.state
	m.state = StateReady
	m.logger.Printf("[INTAKE] Forced %s -> %s (degraded defaults)", prev, StateReady)

	return &store.CaseDetails{
		Fields:    fields,
		Narrative: narrative,
		TaskType:  taskType,
	}
}

// Details returns the gathered payload. Errors unless the machine is Ready.
func (m *Machine) Details() (*store.CaseDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateReady && m.state != StateGenerating {
		return nil, fmt.Errorf("intake not ready (state %s)", m.state)
	}

	fields := make(map[string]string, len(m.fields))
	for k, v := range m.fields {
		fields[k] = v
	}
	return &store.CaseDetails{
		Fields:    fields,
		Narrative: m.narrative,
		TaskType:  m.taskType,
	}, nil
}

// MarkGenerating moves Ready -> Generating once the pipeline takes over.
func (m *Machine) MarkGenerating() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateReady {
		m.state = StateGenerating
		m.logger.Printf("[INTAKE] %s -> %s", StateReady, StateGenerating)
	}
}
