package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByDraftSessionID struct {
	DraftSessionID uuid.UUID
}

func (s ByDraftSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("draft_session_id = ?", s.DraftSessionID)
}
