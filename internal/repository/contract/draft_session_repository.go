package contract

import (
	"context"

	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/specification"

	"github.com/google/uuid"
)

type DraftSessionRepository interface {
	Create(ctx context.Context, session *entity.DraftSession) error
	Update(ctx context.Context, session *entity.DraftSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllByUserIdUnscoped(ctx context.Context, userId uuid.UUID) error // Hard delete all
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftSession, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftSession, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
