package memory

import (
	"time"

	"ai-motiondraft-be/pkg/store"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps live conversation sessions in memory. Sessions are
// working state, not records: an idle conversation expires and the user
// simply starts a new one.
type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository() *SessionRepository {
	// Expire idle sessions after 2 hours, purge every 15 minutes
	c := cache.New(2*time.Hour, 15*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(session *store.Session) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*store.Session, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*store.Session), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}
