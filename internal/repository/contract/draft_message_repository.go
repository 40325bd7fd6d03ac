package contract

import (
	"context"

	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DraftMessageRepository interface {
	Create(ctx context.Context, message *entity.DraftMessage) error
	CreateBatch(ctx context.Context, messages []*entity.DraftMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllBySessionIdUnscoped(ctx context.Context, sessionId uuid.UUID) error // Hard delete all
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftMessage, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftMessage, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
