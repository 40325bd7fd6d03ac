package store

import "sync"

// Message is one entry in the session's append-only conversation log.
// Provider is set on assistant messages so the UI can tell which backend
// produced the reply; it never changes processing semantics.
type Message struct {
	Role     string `json:"role"`
	Provider string `json:"provider,omitempty"`
	Content  string `json:"content"`
}

// Section is one titled block of a generated document.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// MotionDocument is the structured form of a generation result.
type MotionDocument struct {
	Title     string    `json:"title"`
	Sections  []Section `json:"sections"`
	Citations []string  `json:"citations"` // key case law
}

// Result is the outcome of one provider call in a pipeline run.
// Either Document or RawText is populated; RawText is the fallback when the
// provider response could not be parsed into a structured document.
type Result struct {
	Success  bool                   `json:"success"`
	Provider string                 `json:"provider"`
	Document *MotionDocument        `json:"document,omitempty"`
	RawText  string                 `json:"raw_text,omitempty"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// Run tracks one generation attempt through the pipeline.
// In refine mode Initial/Refined are the two result slots and ActiveSlot
// selects between them. In parallel mode ByProvider holds every provider's
// independent result and ActiveProvider selects one.
type Run struct {
	Mode  string `json:"mode"`
	Stage string `json:"stage"`

	Initial     *Result `json:"initial,omitempty"`
	Refined     *Result `json:"refined,omitempty"`
	ActiveSlot  string  `json:"active_slot,omitempty"`
	ChangeNotes string  `json:"change_notes,omitempty"`

	ByProvider     map[string]*Result `json:"by_provider,omitempty"`
	ActiveProvider string             `json:"active_provider,omitempty"`

	CreatorProvider string `json:"creator_provider,omitempty"`
	RefinerProvider string `json:"refiner_provider,omitempty"`
}

// ActiveResult returns the result the UI should currently present, or nil if
// the run has not produced one yet.
func (r *Run) ActiveResult() *Result {
	if r == nil {
		return nil
	}
	if r.Mode == ModeParallel {
		// A post-completion refinement supersedes the provider selection.
		if r.ActiveSlot == SlotRefined && r.Refined != nil {
			return r.Refined
		}
		if r.ByProvider == nil {
			return nil
		}
		return r.ByProvider[r.ActiveProvider]
	}
	if r.ActiveSlot == SlotRefined && r.Refined != nil {
		return r.Refined
	}
	return r.Initial
}

// CaseDetails is the structured payload gathered by intake.
type CaseDetails struct {
	Fields    map[string]string `json:"fields"`
	Narrative string            `json:"narrative"`
	TaskType  string            `json:"task_type"`
}

// Session is the live working state for one conversation. The pointer is
// shared between request handlers and background completion goroutines, so
// every field access after construction goes through the locked methods.
// Readers that need more than one field take a Clone and work off the copy.
type Session struct {
	mu sync.RWMutex

	ID     string `json:"id"`
	UserID string `json:"user_id"`

	Stage string `json:"stage"`
	Mode  string `json:"mode"`

	Messages []Message `json:"messages"`

	// Gathered by the intake dialogue, consumed by the pipeline.
	Details *CaseDetails `json:"details,omitempty"`

	// Reference documents resolved for this session.
	DocumentIDs    []uint   `json:"document_ids"`
	PendingUploads []string `json:"pending_uploads,omitempty"`

	Run *Run `json:"run,omitempty"`

	LastQuery string `json:"last_query"`
}

// Append adds a message to the ordered log.
func (s *Session) Append(role, provider, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, Message{Role: role, Provider: provider, Content: content})
}

// AdoptHistory installs a transcript loaded from storage. Returns false
// without touching anything if turns already exist in memory, so two
// concurrent rehydrations cannot double the log.
func (s *Session) AdoptHistory(msgs []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Messages) > 0 {
		return false
	}
	s.Messages = append(s.Messages, msgs...)
	return true
}

// MessagesSnapshot returns a copy of the ordered log.
func (s *Session) MessagesSnapshot() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.Messages...)
}

func (s *Session) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Messages)
}

// SwapStage installs a new stage and reports the previous one. changed is
// false when the session was already there.
func (s *Session) SwapStage(stage string) (prev string, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.Stage
	if prev == stage {
		return prev, false
	}
	s.Stage = stage
	return prev, true
}

func (s *Session) CurrentStage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stage
}

func (s *Session) SetLastQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastQuery = query
}

func (s *Session) SetDetails(details *CaseDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Details = details
}

func (s *Session) SetDocuments(ids []uint, pendingUploads []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DocumentIDs = ids
	s.PendingUploads = pendingUploads
}

func (s *Session) SetRun(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Run = run
}

// UpdateRun runs fn against the live run under the session lock. Returns
// false if there is no run. fn must not retain the run past the call.
func (s *Session) UpdateRun(fn func(*Run)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Run == nil {
		return false
	}
	fn(s.Run)
	return true
}

// Clone returns a deep copy that is safe to read and serialize while the
// owning goroutines keep mutating the original.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &Session{
		ID:        s.ID,
		UserID:    s.UserID,
		Stage:     s.Stage,
		Mode:      s.Mode,
		LastQuery: s.LastQuery,
	}
	if s.Messages != nil {
		c.Messages = append([]Message(nil), s.Messages...)
	}
	if s.DocumentIDs != nil {
		c.DocumentIDs = append([]uint(nil), s.DocumentIDs...)
	}
	if s.PendingUploads != nil {
		c.PendingUploads = append([]string(nil), s.PendingUploads...)
	}
	c.Details = s.Details.clone()
	c.Run = s.Run.clone()
	return c
}

func (d *CaseDetails) clone() *CaseDetails {
	if d == nil {
		return nil
	}
	c := &CaseDetails{
		Narrative: d.Narrative,
		TaskType:  d.TaskType,
	}
	if d.Fields != nil {
		c.Fields = make(map[string]string, len(d.Fields))
		for k, v := range d.Fields {
			c.Fields[k] = v
		}
	}
	return c
}

func (r *Run) clone() *Run {
	if r == nil {
		return nil
	}
	c := &Run{
		Mode:            r.Mode,
		Stage:           r.Stage,
		Initial:         r.Initial.clone(),
		Refined:         r.Refined.clone(),
		ActiveSlot:      r.ActiveSlot,
		ChangeNotes:     r.ChangeNotes,
		ActiveProvider:  r.ActiveProvider,
		CreatorProvider: r.CreatorProvider,
		RefinerProvider: r.RefinerProvider,
	}
	if r.ByProvider != nil {
		c.ByProvider = make(map[string]*Result, len(r.ByProvider))
		for name, result := range r.ByProvider {
			c.ByProvider[name] = result.clone()
		}
	}
	return c
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := &Result{
		Success:  r.Success,
		Provider: r.Provider,
		RawText:  r.RawText,
	}
	if r.Document != nil {
		doc := &MotionDocument{Title: r.Document.Title}
		if r.Document.Sections != nil {
			doc.Sections = append([]Section(nil), r.Document.Sections...)
		}
		if r.Document.Citations != nil {
			doc.Citations = append([]string(nil), r.Document.Citations...)
		}
		c.Document = doc
	}
	if r.Meta != nil {
		c.Meta = make(map[string]interface{}, len(r.Meta))
		for k, v := range r.Meta {
			c.Meta[k] = v
		}
	}
	return c
}

const (
	// Session stages
	StageIdle       = "IDLE"
	StageCollecting = "COLLECTING"
	StageReady      = "READY"
	StageStreaming  = "STREAMING"
	StageCreating   = "CREATING"
	StageRefining   = "REFINING"
	StageDone       = "DONE"

	// Generation modes
	ModeConversation = "CONVERSATION"
	ModeParallel     = "PARALLEL"
	ModeRefine       = "REFINE"

	// Result slots for refine mode
	SlotInitial = "INITIAL"
	SlotRefined = "REFINED"

	// Message roles
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
