package implementation

import (
	"context"
	"errors"

	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/mapper"
	"ai-motiondraft-be/internal/model"
	"ai-motiondraft-be/internal/repository/contract"
	"ai-motiondraft-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DraftResultRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DraftMapper
}

func NewDraftResultRepository(db *gorm.DB) contract.DraftResultRepository {
	return &DraftResultRepositoryImpl{
		db:     db,
		mapper: mapper.NewDraftMapper(),
	}
}

func (r *DraftResultRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DraftResultRepositoryImpl) Create(ctx context.Context, result *entity.DraftResult) error {
	m := r.mapper.ResultToModel(result)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*result = *r.mapper.ResultToEntity(m)
	return nil
}

func (r *DraftResultRepositoryImpl) Update(ctx context.Context, result *entity.DraftResult) error {
	m := r.mapper.ResultToModel(result)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*result = *r.mapper.ResultToEntity(m)
	return nil
}

func (r *DraftResultRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.DraftResult{}, id).Error
}

func (r *DraftResultRepositoryImpl) DeleteAllBySessionIdUnscoped(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Unscoped().Where("draft_session_id = ?", sessionId).Delete(&model.DraftResult{}).Error
}

func (r *DraftResultRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftResult, error) {
	var m model.DraftResult
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ResultToEntity(&m), nil
}

func (r *DraftResultRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftResult, error) {
	var models []*model.DraftResult
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ResultsToEntities(models), nil
}

func (r *DraftResultRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.DraftResult{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
