package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadDocumentRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Type    string `json:"type" validate:"required,oneof=contract brief exhibit transcript other"`
	Content string `json:"content" validate:"required"`
}

type DocumentResponse struct {
	Id        uint      `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type ListDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
	Total     int64              `json:"total"`
}

// SearchDocumentMatch is one semantic search hit, aggregated per document
// with its best-scoring chunk as the snippet.
type SearchDocumentMatch struct {
	Id         uint    `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

type SearchDocumentsResponse struct {
	Matches []SearchDocumentMatch `json:"matches"`
}

// PublishIndexDocumentMessage is the payload placed on the indexing topic
// after a document is created or its content changes.
type PublishIndexDocumentMessage struct {
	DocumentId uint      `json:"document_id"`
	UserId     uuid.UUID `json:"user_id"`
}
