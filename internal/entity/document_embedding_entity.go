package entity

import (
	"time"

	"github.com/google/uuid"
)

type DocumentEmbedding struct {
	Id         uuid.UUID
	DocumentId uint
	UserId     uuid.UUID
	ChunkIndex int
	ChunkText  string
	Embedding  []float32
	CreatedAt  time.Time
	UpdatedAt  *time.Time
	DeletedAt  *time.Time
	IsDeleted  bool
}
