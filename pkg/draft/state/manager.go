package state

import (
	"log"

	"ai-motiondraft-be/pkg/store"
)

// Manager owns session stage transitions so every move is logged in one
// place and reverts are symmetrical with advances.
type Manager struct {
	logger *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	return &Manager{logger: logger}
}

// Transition moves the session to a new stage.
func (m *Manager) Transition(session *store.Session, stage string) {
	if prev, changed := session.SwapStage(stage); changed {
		m.logger.Printf("[STATE] %s: %s -> %s", session.ID, prev, stage)
	}
}

// Revert returns the session to its last stable stage after a terminal call
// failure, so the user can retry from where they were.
func (m *Manager) Revert(session *store.Session, stage string) {
	prev, _ := session.SwapStage(stage)
	m.logger.Printf("[STATE] %s: reverting %s -> %s after failure", session.ID, prev, stage)
}
