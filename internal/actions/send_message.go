package actions

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

const KindSendMessage = "send_message"

// MessageJobChannel is the Redis channel the messaging service consumes
const MessageJobChannel = "keplero:jobs:messages"

// SendMessageConfig is the per-node configuration of the send_message action
type SendMessageConfig struct {
	Channel string `json:"channel"` // sms, whatsapp, email
	Body    string `json:"body"`
	From    string `json:"from"`
}

// Publisher publishes a payload on a named channel. Satisfied by
// RedisPublisher in production and by fakes in tests.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher adapts a redis client to the Publisher interface
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps a redis client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends the payload on the channel
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// SendMessageAction hands a message job to the messaging service over Redis.
// Rendering, provider selection and delivery are the messaging service's
// concern.
type SendMessageAction struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewSendMessageAction creates a send_message handler
func NewSendMessageAction(publisher Publisher, logger *zap.Logger) *SendMessageAction {
	return &SendMessageAction{publisher: publisher, logger: logger}
}

func (a *SendMessageAction) Kind() string { return KindSendMessage }

// Execute publishes a message job for the trigger contact
func (a *SendMessageAction) Execute(ctx context.Context, config models.JSONMap, trigger models.JSONMap, ec *models.ExecContext) (*Result, error) {
	var cfg SendMessageConfig
	if err := config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", a.Kind(), err)
	}
	if cfg.Channel == "" || cfg.Body == "" {
		return nil, fmt.Errorf("%s: channel and body are required", a.Kind())
	}

	contactID, ok := triggerContactID(trigger)
	if !ok {
		return nil, fmt.Errorf("%s: trigger payload has no contact_id", a.Kind())
	}

	jobID := uuid.NewString()
	job := map[string]interface{}{
		"job_id":       jobID,
		"channel":      cfg.Channel,
		"body":         cfg.Body,
		"from":         cfg.From,
		"contact_id":   contactID,
		"workspace_id": ec.WorkspaceID,
		"user_id":      ec.UserID,
		"queued_at":    time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message job: %w", err)
	}

	if err := a.publisher.Publish(ctx, MessageJobChannel, payload); err != nil {
		return nil, fmt.Errorf("failed to publish message job: %w", err)
	}

	a.logger.Info("Queued message job",
		zap.String("job_id", jobID),
		zap.String("channel", cfg.Channel),
		zap.Uint("contact_id", contactID))

	return &Result{
		Success: true,
		Output: models.JSONMap{
			"job_id":     jobID,
			"channel":    cfg.Channel,
			"contact_id": contactID,
		},
	}, nil
}
