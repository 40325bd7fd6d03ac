package dto

import (
	"time"

	"github.com/google/uuid"

	"ai-motiondraft-be/pkg/store"
)

type CreateDraftSessionRequest struct {
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=CONVERSATION PARALLEL REFINE"`
}

type CreateDraftSessionResponse struct {
	Id   uuid.UUID `json:"id"`
	Mode string    `json:"mode"`
}

type GetAllDraftSessionsResponse struct {
	Id        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Mode      string     `json:"mode"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// SubmitRequest carries a user turn into the session. Document ids are
// pre-resolved references; upload names cover files still being indexed.
type SubmitRequest struct {
	DraftSessionId uuid.UUID `json:"draft_session_id" validate:"required"`
	Message        string    `json:"message" validate:"required"`
	DocumentIds    []uint    `json:"document_ids,omitempty" validate:"max=10"`
	UploadNames    []string  `json:"upload_names,omitempty" validate:"max=10"`
	TaskType       string    `json:"task_type,omitempty"`
}

type SubmitResponse struct {
	DraftSessionId uuid.UUID    `json:"draft_session_id"`
	Stage          string       `json:"stage"`
	Mode           string       `json:"mode"`
	Question       string       `json:"question,omitempty"`
	RunId          string       `json:"run_id,omitempty"`
	Reply          *MessageDTO  `json:"reply,omitempty"`
	Run            *DraftRunDTO `json:"run,omitempty"`
}

type MessageDTO struct {
	Role     string `json:"role"`
	Provider string `json:"provider,omitempty"`
	Content  string `json:"content"`
}

type FeedbackRequest struct {
	DraftSessionId uuid.UUID `json:"draft_session_id" validate:"required"`
	Feedback       string    `json:"feedback" validate:"required"`
}

type ForceGenerateRequest struct {
	DraftSessionId uuid.UUID `json:"draft_session_id" validate:"required"`
}

type SelectResultRequest struct {
	DraftSessionId uuid.UUID `json:"draft_session_id" validate:"required"`
	Provider       string    `json:"provider" validate:"required"`
}

type CancelRequest struct {
	DraftSessionId uuid.UUID `json:"draft_session_id" validate:"required"`
}

type DraftRunDTO struct {
	Mode            string                   `json:"mode"`
	Stage           string                   `json:"stage"`
	ActiveSlot      string                   `json:"active_slot,omitempty"`
	ActiveProvider  string                   `json:"active_provider,omitempty"`
	CreatorProvider string                   `json:"creator_provider,omitempty"`
	RefinerProvider string                   `json:"refiner_provider,omitempty"`
	ChangeNotes     string                   `json:"change_notes,omitempty"`
	Results         map[string]*ResultDTO `json:"results,omitempty"`
	Active          *ResultDTO            `json:"active,omitempty"`
	Progress        *ProgressDTO          `json:"progress,omitempty"`
	Details         *store.CaseDetails    `json:"details,omitempty"`
}

type ResultDTO struct {
	Success  bool                  `json:"success"`
	Provider string                `json:"provider"`
	Document *store.MotionDocument `json:"document,omitempty"`
	RawText  string                `json:"raw_text,omitempty"`
}

type ProgressDTO struct {
	Percent        int  `json:"percent"`
	ElapsedSeconds int  `json:"elapsed_seconds"`
	Running        bool `json:"running"`
}

type SessionSnapshotResponse struct {
	DraftSessionId uuid.UUID    `json:"draft_session_id"`
	Stage          string       `json:"stage"`
	Mode           string       `json:"mode"`
	Messages       []MessageDTO `json:"messages"`
	DocumentIds    []uint       `json:"document_ids,omitempty"`
	PendingUploads []string     `json:"pending_uploads,omitempty"`
	Run            *DraftRunDTO `json:"run,omitempty"`
}

type DeleteDraftSessionRequest struct {
	DraftSessionId uuid.UUID `json:"draft_session_id"`
}
