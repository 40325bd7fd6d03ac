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

type DraftMessageRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.DraftMapper
}

func NewDraftMessageRepository(db *gorm.DB) contract.DraftMessageRepository {
	return &DraftMessageRepositoryImpl{
		db:     db,
		mapper: mapper.NewDraftMapper(),
	}
}

func (r *DraftMessageRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *DraftMessageRepositoryImpl) Create(ctx context.Context, message *entity.DraftMessage) error {
	m := r.mapper.MessageToModel(message)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*message = *r.mapper.MessageToEntity(m)
	return nil
}

func (r *DraftMessageRepositoryImpl) CreateBatch(ctx context.Context, messages []*entity.DraftMessage) error {
	if len(messages) == 0 {
		return nil
	}
	models := r.mapper.MessagesToModels(messages)
	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}
	for i, m := range models {
		*messages[i] = *r.mapper.MessageToEntity(m)
	}
	return nil
}

func (r *DraftMessageRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.DraftMessage{}, id).Error
}

func (r *DraftMessageRepositoryImpl) DeleteAllBySessionIdUnscoped(ctx context.Context, sessionId uuid.UUID) error {
	return r.db.WithContext(ctx).Unscoped().Where("draft_session_id = ?", sessionId).Delete(&model.DraftMessage{}).Error
}

func (r *DraftMessageRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.DraftMessage, error) {
	var m model.DraftMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.MessageToEntity(&m), nil
}

func (r *DraftMessageRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.DraftMessage, error) {
	var models []*model.DraftMessage
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.MessagesToEntities(models), nil
}

func (r *DraftMessageRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.DraftMessage{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
