package entity

import (
	"time"

	"github.com/google/uuid"
)

type DraftMessage struct {
	Id             uuid.UUID
	DraftSessionId uuid.UUID
	Role           string
	Provider       string
	Content        string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	DeletedAt      *time.Time
	IsDeleted      bool
}
