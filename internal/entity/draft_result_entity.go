package entity

import (
	"time"

	"github.com/google/uuid"
)

// DraftResult is a persisted generation outcome. Document holds the
// structured payload when the model returned parseable JSON; RawText is
// the fallback when it did not. Exactly one of the two is meaningful.
type DraftResult struct {
	Id             uuid.UUID
	DraftSessionId uuid.UUID
	Provider       string
	Slot           string
	Success        bool
	Document       []byte
	RawText        string
	ChangeNotes    string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	DeletedAt      *time.Time
	IsDeleted      bool
}
