package events

import "time"

// Draft lifecycle event codes.
const (
	TypeDraftStarted    = "DRAFT_STARTED"
	TypeDraftCompleted  = "DRAFT_COMPLETED"
	TypeDraftFailed     = "DRAFT_FAILED"
	TypeDraftCancelled  = "DRAFT_CANCELLED"
	TypeDocumentCreated = "DOCUMENT_CREATED"
	TypeDocumentIndexed = "DOCUMENT_INDEXED"
)

func NewDraftStarted(userId, sessionId, mode string) Event {
	return BaseEvent{
		Type: TypeDraftStarted,
		Data: map[string]interface{}{
			"user_id":    userId,
			"session_id": sessionId,
			"mode":       mode,
		},
		OccurredAt: time.Now(),
	}
}

func NewDraftCompleted(userId, sessionId, provider string) Event {
	return BaseEvent{
		Type: TypeDraftCompleted,
		Data: map[string]interface{}{
			"user_id":    userId,
			"session_id": sessionId,
			"provider":   provider,
		},
		OccurredAt: time.Now(),
	}
}

func NewDraftFailed(userId, sessionId, reason string) Event {
	return BaseEvent{
		Type: TypeDraftFailed,
		Data: map[string]interface{}{
			"user_id":    userId,
			"session_id": sessionId,
			"reason":     reason,
		},
		OccurredAt: time.Now(),
	}
}

func NewDraftCancelled(userId, sessionId string) Event {
	return BaseEvent{
		Type: TypeDraftCancelled,
		Data: map[string]interface{}{
			"user_id":    userId,
			"session_id": sessionId,
		},
		OccurredAt: time.Now(),
	}
}

func NewDocumentCreated(userId string, documentId uint, name string) Event {
	return BaseEvent{
		Type: TypeDocumentCreated,
		Data: map[string]interface{}{
			"user_id":     userId,
			"document_id": documentId,
			"name":        name,
		},
		OccurredAt: time.Now(),
	}
}

func NewDocumentIndexed(userId string, documentId uint, chunks int) Event {
	return BaseEvent{
		Type: TypeDocumentIndexed,
		Data: map[string]interface{}{
			"user_id":     userId,
			"document_id": documentId,
			"chunks":      chunks,
		},
		OccurredAt: time.Now(),
	}
}
