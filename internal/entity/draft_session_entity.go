package entity

import (
	"time"

	"github.com/google/uuid"
)

type DraftSession struct {
	Id        uuid.UUID
	UserId    uuid.UUID
	Title     string
	Mode      string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
