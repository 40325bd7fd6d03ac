package session

import (
	"testing"

	"ai-motiondraft-be/internal/repository/memory"
	"ai-motiondraft-be/pkg/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLoadOrCreateDefaults(t *testing.T) {
	m := NewManager(memory.NewSessionRepository())
	userId := uuid.New()
	sessionId := uuid.New()

	sess := m.LoadOrCreate(userId, sessionId)

	assert.Equal(t, sessionId.String(), sess.ID)
	assert.Equal(t, userId.String(), sess.UserID)
	assert.Equal(t, store.StageIdle, sess.Stage)
	assert.Equal(t, store.ModeConversation, sess.Mode)
	assert.Empty(t, sess.Messages)
}

func TestLoadOrCreateRoundTrip(t *testing.T) {
	m := NewManager(memory.NewSessionRepository())
	userId := uuid.New()
	sessionId := uuid.New()

	sess := m.LoadOrCreate(userId, sessionId)
	sess.Stage = store.StageCollecting
	sess.Append(store.RoleUser, "", "I need a motion to compel arbitration")
	m.Save(sess)

	loaded := m.LoadOrCreate(userId, sessionId)
	assert.Equal(t, store.StageCollecting, loaded.Stage)
	assert.Len(t, loaded.Messages, 1)
	assert.Equal(t, store.RoleUser, loaded.Messages[0].Role)
}

func TestDropStartsClean(t *testing.T) {
	m := NewManager(memory.NewSessionRepository())
	userId := uuid.New()
	sessionId := uuid.New()

	sess := m.LoadOrCreate(userId, sessionId)
	sess.Stage = store.StageDone
	m.Save(sess)

	m.Drop(sessionId)

	fresh := m.LoadOrCreate(userId, sessionId)
	assert.Equal(t, store.StageIdle, fresh.Stage)
	assert.Empty(t, fresh.Messages)
}
