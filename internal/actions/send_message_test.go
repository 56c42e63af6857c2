package actions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

// Fake Publisher for testing
type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.channel = channel
	p.payload = payload
	return nil
}

func TestSendMessage_PublishesJob(t *testing.T) {
	publisher := &fakePublisher{}
	action := NewSendMessageAction(publisher, zaptest.NewLogger(t))

	result, err := action.Execute(context.Background(),
		models.JSONMap{"channel": "sms", "body": "welcome aboard", "from": "+3912345"},
		models.JSONMap{"contact_id": uint(7)},
		&models.ExecContext{WorkspaceID: 1, UserID: 2},
	)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, MessageJobChannel, publisher.channel)

	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(publisher.payload, &job))
	assert.Equal(t, "sms", job["channel"])
	assert.Equal(t, "welcome aboard", job["body"])
	assert.Equal(t, "+3912345", job["from"])
	assert.Equal(t, float64(7), job["contact_id"])
	assert.Equal(t, float64(1), job["workspace_id"])
	assert.NotEmpty(t, job["job_id"])
	assert.Equal(t, job["job_id"], result.Output["job_id"])
}

func TestSendMessage_RequiresChannelAndBody(t *testing.T) {
	action := NewSendMessageAction(&fakePublisher{}, zaptest.NewLogger(t))

	cases := []struct {
		name   string
		config models.JSONMap
	}{
		{"missing channel", models.JSONMap{"body": "hi"}},
		{"missing body", models.JSONMap{"channel": "sms"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := action.Execute(context.Background(), tc.config,
				models.JSONMap{"contact_id": uint(7)}, &models.ExecContext{})
			assert.Error(t, err)
		})
	}
}

func TestSendMessage_PublishFailure(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("redis down")}
	action := NewSendMessageAction(publisher, zaptest.NewLogger(t))

	_, err := action.Execute(context.Background(),
		models.JSONMap{"channel": "sms", "body": "hi"},
		models.JSONMap{"contact_id": uint(7)},
		&models.ExecContext{},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}
