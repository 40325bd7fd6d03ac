package service

import (
	"context"
	"fmt"
	"strings"

	"ai-motiondraft-be/internal/pkg/logger"
	"ai-motiondraft-be/internal/websocket"
	"ai-motiondraft-be/pkg/events"
	pktNats "ai-motiondraft-be/pkg/nats"

	"github.com/google/uuid"
)

// NotificationDelivery defines how to push real-time updates.
// Typically implemented by the WebSocket Hub.
type NotificationDelivery interface {
	Send(userID uuid.UUID, frame websocket.Frame)
	Broadcast(frame websocket.Frame)
}

// NotificationService relays draft lifecycle events from the event bus to
// connected clients. Events are ephemeral pushes, nothing is stored.
type NotificationService struct {
	subscriber *pktNats.Subscriber
	delivery   NotificationDelivery
	logger     logger.ILogger
}

func NewNotificationService(sub *pktNats.Subscriber, delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *NotificationService) Start() {
	err := s.subscriber.Subscribe("drafts.>", "notif-service-worker", s.handleEvent)
	if err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err})
		return
	}
	s.logger.Info("NotificationService", "Notification service started, listening to drafts.>", nil)
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	// The subject includes the stream prefix, strip it back to the code.
	typeCode := strings.TrimPrefix(event.EventType(), "drafts.")
	payload := event.Payload()

	s.logger.Info("NotificationService", fmt.Sprintf("Processing event: %s", typeCode), map[string]interface{}{"type": typeCode})

	frame := websocket.Frame{
		Type: websocket.FrameNotification,
		Data: map[string]interface{}{
			"code":    typeCode,
			"payload": payload,
		},
	}
	if sessionId, ok := payload["session_id"].(string); ok {
		frame.SessionID = sessionId
	}

	userIdRaw, _ := payload["user_id"].(string)
	if userIdRaw == "" || userIdRaw == "*" {
		if s.delivery != nil {
			s.delivery.Broadcast(frame)
		}
		return nil
	}

	userId, err := uuid.Parse(userIdRaw)
	if err != nil {
		s.logger.Warn("NotificationService", "Event carries malformed user_id, dropping", map[string]interface{}{"user_id": userIdRaw})
		return nil
	}

	if s.delivery != nil {
		s.delivery.Send(userId, frame)
	}
	return nil
}
