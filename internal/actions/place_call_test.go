package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

func TestPlaceCall_SubmitsCallRequest(t *testing.T) {
	var gotPath, gotToken string
	var gotRequest map[string]interface{}
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Internal-Token")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotRequest)

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"call_id":"call-99","status":"queued"}`))
	}))
	defer gateway.Close()

	action := NewPlaceCallAction(gateway.URL, "secret-token", zaptest.NewLogger(t))

	result, err := action.Execute(context.Background(),
		models.JSONMap{"flowId": "flow-1", "from": "+3912345"},
		models.JSONMap{"contact_id": uint(7)},
		&models.ExecContext{WorkspaceID: 1, UserID: 2},
	)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "/v1/calls", gotPath)
	assert.Equal(t, "secret-token", gotToken)
	assert.Equal(t, "flow-1", gotRequest["flow_id"])
	assert.Equal(t, float64(7), gotRequest["contact_id"])
	assert.Equal(t, float64(1), gotRequest["workspace_id"])

	call, ok := result.Output["call"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "call-99", call["call_id"])
}

func TestPlaceCall_RequiresFlowID(t *testing.T) {
	action := NewPlaceCallAction("http://voice-gateway:8010", "tok", zaptest.NewLogger(t))

	_, err := action.Execute(context.Background(),
		models.JSONMap{"from": "+3912345"},
		models.JSONMap{"contact_id": uint(7)},
		&models.ExecContext{},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "flowId")
}

func TestPlaceCall_GatewayErrorSurfaces(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer gateway.Close()

	action := NewPlaceCallAction(gateway.URL, "tok", zaptest.NewLogger(t))

	_, err := action.Execute(context.Background(),
		models.JSONMap{"flowId": "flow-1"},
		models.JSONMap{"contact_id": uint(7)},
		&models.ExecContext{},
	)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewPlaceCallAction("http://voice-gateway:8010", "tok", zaptest.NewLogger(t)))

	assert.True(t, registry.Has(KindPlaceCall))
	assert.False(t, registry.Has(KindSendMessage))

	_, err := registry.Get(KindSendMessage)
	assert.ErrorIs(t, err, ErrHandlerNotFound)

	h, err := registry.Get(KindPlaceCall)
	require.NoError(t, err)
	assert.Equal(t, KindPlaceCall, h.Kind())
}
