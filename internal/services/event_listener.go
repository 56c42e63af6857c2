package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// EventListener consumes business events other Keplero services publish on
// Redis and feeds them to the dispatcher.
type EventListener struct {
	redis      *redis.Client
	dispatcher *Dispatcher
	logger     *zap.Logger
	channels   []string
	stopChan   chan struct{}
}

// NewEventListener creates a new event listener
func NewEventListener(redisClient *redis.Client, dispatcher *Dispatcher, logger *zap.Logger) *EventListener {
	return &EventListener{
		redis:      redisClient,
		dispatcher: dispatcher,
		logger:     logger,
		channels: []string{
			"keplero:events:contact",
			"keplero:events:list",
			"keplero:events:messaging",
		},
		stopChan: make(chan struct{}),
	}
}

// Start begins listening for events. It blocks until the context is
// cancelled or Stop is called.
func (l *EventListener) Start(ctx context.Context) error {
	l.logger.Info("Starting event listener", zap.Strings("channels", l.channels))

	pubsub := l.redis.Subscribe(ctx, l.channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channels: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Event listener stopped due to context cancellation")
			return ctx.Err()
		case <-l.stopChan:
			l.logger.Info("Event listener stopped")
			return nil
		case msg := <-ch:
			if err := l.processMessage(ctx, msg); err != nil {
				l.logger.Error("Failed to process event message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
			}
		}
	}
}

// Stop stops the event listener
func (l *EventListener) Stop() {
	close(l.stopChan)
}

func (l *EventListener) processMessage(ctx context.Context, msg *redis.Message) error {
	event, err := ParseEvent([]byte(msg.Payload))
	if err != nil {
		return fmt.Errorf("failed to parse event from %s: %w", msg.Channel, err)
	}

	ec := &models.ExecContext{
		WorkspaceID: event.WorkspaceID,
		UserID:      event.UserID,
	}

	if _, err := l.dispatcher.Dispatch(ctx, event, ec); err != nil {
		return fmt.Errorf("failed to dispatch event %s: %w", event.ID, err)
	}

	return nil
}

// ParseEvent decodes a raw event payload into a models.Event, validating
// the fields the engine requires.
func ParseEvent(payload []byte) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}

	if event.Kind == "" {
		return nil, fmt.Errorf("event kind is required")
	}
	if event.WorkspaceID == 0 {
		return nil, fmt.Errorf("event workspace_id is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	return &event, nil
}
