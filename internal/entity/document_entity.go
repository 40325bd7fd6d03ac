package entity

import (
	"time"

	"github.com/google/uuid"
)

// Document ids are numeric and assigned by the database; during the upload
// race window the display name stands in for the id until the listing
// catches up.
type Document struct {
	Id        uint
	UserId    uuid.UUID
	Name      string
	Type      string
	Content   string
	CreatedAt time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
	IsDeleted bool
}
