package mapper

import (
	"time"

	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DraftMapper struct{}

func NewDraftMapper() *DraftMapper {
	return &DraftMapper{}
}

// Session Mappers

func (m *DraftMapper) SessionToEntity(s *model.DraftSession) *entity.DraftSession {
	if s == nil {
		return nil
	}

	var deletedAt *time.Time
	if s.DeletedAt.Valid {
		t := s.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.DraftSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		Mode:      s.Mode,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
		IsDeleted: s.DeletedAt.Valid,
	}
}

func (m *DraftMapper) SessionToModel(s *entity.DraftSession) *model.DraftSession {
	if s == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if s.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *s.DeletedAt, Valid: true}
	} else if s.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.DraftSession{
		Id:        s.Id,
		UserId:    s.UserId,
		Title:     s.Title,
		Mode:      s.Mode,
		CreatedAt: s.CreatedAt,
		UpdatedAt: updatedAt,
		DeletedAt: deletedAt,
	}
}

func (m *DraftMapper) SessionsToEntities(sessions []*model.DraftSession) []*entity.DraftSession {
	entities := make([]*entity.DraftSession, len(sessions))
	for i, s := range sessions {
		entities[i] = m.SessionToEntity(s)
	}
	return entities
}

// Message Mappers

func (m *DraftMapper) MessageToEntity(msg *model.DraftMessage) *entity.DraftMessage {
	if msg == nil {
		return nil
	}

	var deletedAt *time.Time
	if msg.DeletedAt.Valid {
		t := msg.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !msg.UpdatedAt.IsZero() {
		t := msg.UpdatedAt
		updatedAt = &t
	}

	return &entity.DraftMessage{
		Id:             msg.Id,
		DraftSessionId: msg.DraftSessionId,
		Role:           msg.Role,
		Provider:       msg.Provider,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
		IsDeleted:      msg.DeletedAt.Valid,
	}
}

func (m *DraftMapper) MessageToModel(msg *entity.DraftMessage) *model.DraftMessage {
	if msg == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if msg.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *msg.DeletedAt, Valid: true}
	} else if msg.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if msg.UpdatedAt != nil {
		updatedAt = *msg.UpdatedAt
	}

	return &model.DraftMessage{
		Id:             msg.Id,
		DraftSessionId: msg.DraftSessionId,
		Role:           msg.Role,
		Provider:       msg.Provider,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
	}
}

func (m *DraftMapper) MessagesToEntities(messages []*model.DraftMessage) []*entity.DraftMessage {
	entities := make([]*entity.DraftMessage, len(messages))
	for i, msg := range messages {
		entities[i] = m.MessageToEntity(msg)
	}
	return entities
}

func (m *DraftMapper) MessagesToModels(messages []*entity.DraftMessage) []*model.DraftMessage {
	models := make([]*model.DraftMessage, len(messages))
	for i, msg := range messages {
		models[i] = m.MessageToModel(msg)
	}
	return models
}

// Result Mappers

func (m *DraftMapper) ResultToEntity(r *model.DraftResult) *entity.DraftResult {
	if r == nil {
		return nil
	}

	var deletedAt *time.Time
	if r.DeletedAt.Valid {
		t := r.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	return &entity.DraftResult{
		Id:             r.Id,
		DraftSessionId: r.DraftSessionId,
		Provider:       r.Provider,
		Slot:           r.Slot,
		Success:        r.Success,
		Document:       []byte(r.Document),
		RawText:        r.RawText,
		ChangeNotes:    r.ChangeNotes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
		IsDeleted:      r.DeletedAt.Valid,
	}
}

func (m *DraftMapper) ResultToModel(r *entity.DraftResult) *model.DraftResult {
	if r == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if r.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *r.DeletedAt, Valid: true}
	} else if r.IsDeleted {
		deletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	}

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.DraftResult{
		Id:             r.Id,
		DraftSessionId: r.DraftSessionId,
		Provider:       r.Provider,
		Slot:           r.Slot,
		Success:        r.Success,
		Document:       datatypes.JSON(r.Document),
		RawText:        r.RawText,
		ChangeNotes:    r.ChangeNotes,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
	}
}

func (m *DraftMapper) ResultsToEntities(results []*model.DraftResult) []*entity.DraftResult {
	entities := make([]*entity.DraftResult, len(results))
	for i, r := range results {
		entities[i] = m.ResultToEntity(r)
	}
	return entities
}

func (m *DraftMapper) ResultsToModels(results []*entity.DraftResult) []*model.DraftResult {
	models := make([]*model.DraftResult, len(results))
	for i, r := range results {
		models[i] = m.ResultToModel(r)
	}
	return models
}
