package history

import (
	"context"

	"ai-motiondraft-be/internal/repository/specification"
	"ai-motiondraft-be/internal/repository/unitofwork"
	"ai-motiondraft-be/pkg/llm"
	"ai-motiondraft-be/pkg/store"

	"github.com/google/uuid"
)

// Loader rebuilds conversation history from persisted messages
type Loader struct {
	uowFactory unitofwork.RepositoryFactory
}

// NewLoader creates a new history loader
func NewLoader(uowFactory unitofwork.RepositoryFactory) *Loader {
	return &Loader{
		uowFactory: uowFactory,
	}
}

// LoadConversationHistory loads recent messages for LLM context, oldest first.
// Only user and assistant turns are forwarded; system priming is rebuilt per
// request by the prompt builder, so persisted system rows are skipped.
func (l *Loader) LoadConversationHistory(ctx context.Context, sessionId uuid.UUID) ([]llm.Message, error) {
	uow := l.uowFactory.NewUnitOfWork(ctx)

	rows, err := uow.DraftMessageRepository().FindAll(ctx,
		specification.ByDraftSessionID{DraftSessionID: sessionId},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, err
	}

	limit := 20
	if len(rows) > limit {
		rows = rows[:limit]
	}

	messages := make([]llm.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if row.Role == store.RoleSystem {
			continue
		}
		messages = append(messages, llm.Message{
			Role:    row.Role,
			Content: row.Content,
		})
	}

	return messages, nil
}
