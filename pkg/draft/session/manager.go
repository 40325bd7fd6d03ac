package session

import (
	"context"
	"fmt"
	"time"

	"ai-motiondraft-be/internal/entity"
	"ai-motiondraft-be/internal/repository/memory"
	"ai-motiondraft-be/internal/repository/specification"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/pkg/store"

	"github.com/google/uuid"
)

// Manager handles session operations
type Manager struct {
	sessionRepo *memory.SessionRepository
}

// NewManager creates a new session manager
func NewManager(sessionRepo *memory.SessionRepository) *Manager {
	return &Manager{sessionRepo: sessionRepo}
}

// LoadOrCreate retrieves or creates an in-memory session
func (m *Manager) LoadOrCreate(userId uuid.UUID, sessionId uuid.UUID) *store.Session {
	sessionID := sessionId.String()
	session, found := m.sessionRepo.Get(sessionID)
	if !found {
		session = &store.Session{
			ID:     sessionID,
			UserID: userId.String(),
			Stage:  store.StageIdle,
			Mode:   store.ModeConversation,
		}
	}
	return session
}

// Save persists session state
func (m *Manager) Save(session *store.Session) {
	m.sessionRepo.Save(session)
}

// Drop discards the in-memory session so the next load starts clean
func (m *Manager) Drop(sessionId uuid.UUID) {
	m.sessionRepo.Delete(sessionId.String())
}

// VerifyDraftSession validates session ownership
func (m *Manager) VerifyDraftSession(ctx context.Context, uow unitofwork.UnitOfWork, userId uuid.UUID, sessionId uuid.UUID) (*entity.DraftSession, error) {
	session, err := uow.DraftSessionRepository().FindOne(ctx,
		specification.ByID{ID: sessionId},
		specification.OwnedByUser{UserID: userId},
	)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or access denied")
	}
	return session, nil
}

// UpdateTitle updates session title
func (m *Manager) UpdateTitle(ctx context.Context, uow unitofwork.UnitOfWork, session *entity.DraftSession, title string, now time.Time) error {
	session.Title = title
	session.UpdatedAt = &now
	return uow.DraftSessionRepository().Update(ctx, session)
}
