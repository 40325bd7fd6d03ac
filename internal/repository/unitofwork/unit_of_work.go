package unitofwork

import (
	"context"

	"ai-motiondraft-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	DocumentRepository() contract.DocumentRepository
	DocumentEmbeddingRepository() contract.DocumentEmbeddingRepository

	DraftSessionRepository() contract.DraftSessionRepository
	DraftMessageRepository() contract.DraftMessageRepository
	DraftResultRepository() contract.DraftResultRepository
}
