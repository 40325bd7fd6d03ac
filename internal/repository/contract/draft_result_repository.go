package contract

import (
	"context"

	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DraftResultRepository interface {
	Create(ctx context.Context, result *entity.DraftResult) error
	Update(ctx context.Context, result *entity.DraftResult) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllBySessionIdUnscoped(ctx context.Context, sessionId uuid.UUID) error // Hard delete all
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftResult, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftResult, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
