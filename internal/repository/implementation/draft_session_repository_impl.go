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

type DraftSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DraftMapper
}

func NewDraftSessionRepository(db *gorm.DB) contract.DraftSessionRepository {
	return &DraftSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewDraftMapper(),
	}
}

func (r *DraftSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DraftSessionRepositoryImpl) Create(ctx context.Context, session *entity.DraftSession) error {
	m := r.mapper.SessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.SessionToEntity(m)
	return nil
}

func (r *DraftSessionRepositoryImpl) Update(ctx context.Context, session *entity.DraftSession) error {
	m := r.mapper.SessionToModel(session)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.SessionToEntity(m)
	return nil
}

func (r *DraftSessionRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.DraftSession{}, id).Error
}

func (r *DraftSessionRepositoryImpl) DeleteAllByUserIdUnscoped(ctx context.Context, userId uuid.UUID) error {
	return r.db.WithContext(ctx).Unscoped().Where("user_id = ?", userId).Delete(&model.DraftSession{}).Error
}

func (r *DraftSessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftSession, error) {
	var m model.DraftSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SessionToEntity(&m), nil
}

func (r *DraftSessionRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftSession, error) {
	var models []*model.DraftSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.SessionsToEntities(models), nil
}

func (r *DraftSessionRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.DraftSession{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
