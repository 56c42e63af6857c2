package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

const KindPlaceCall = "place_call"

// PlaceCallConfig is the per-node configuration of the place_call action
type PlaceCallConfig struct {
	FlowID string `json:"flowId"`
	From   string `json:"from"`
}

// PlaceCallAction asks the voice gateway to start an outbound call to the
// trigger contact. The gateway owns dialing, media and call state; this
// handler only shapes and submits the request.
type PlaceCallAction struct {
	gatewayURL    string
	internalToken string
	httpClient    *http.Client
	breaker       *gobreaker.CircuitBreaker
	logger        *zap.Logger
}

// NewPlaceCallAction creates a place_call handler targeting the voice gateway
func NewPlaceCallAction(gatewayURL, internalToken string, logger *zap.Logger) *PlaceCallAction {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "voice-gateway",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &PlaceCallAction{
		gatewayURL:    gatewayURL,
		internalToken: internalToken,
		breaker:       breaker,
		logger:        logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *PlaceCallAction) Kind() string { return KindPlaceCall }

// Execute submits a call request for the trigger contact
func (a *PlaceCallAction) Execute(ctx context.Context, config models.JSONMap, trigger models.JSONMap, ec *models.ExecContext) (*Result, error) {
	var cfg PlaceCallConfig
	if err := config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", a.Kind(), err)
	}
	if cfg.FlowID == "" {
		return nil, fmt.Errorf("%s: flowId is required", a.Kind())
	}

	contactID, ok := triggerContactID(trigger)
	if !ok {
		return nil, fmt.Errorf("%s: trigger payload has no contact_id", a.Kind())
	}

	callRequest := map[string]interface{}{
		"request_id":   uuid.NewString(),
		"flow_id":      cfg.FlowID,
		"from":         cfg.From,
		"contact_id":   contactID,
		"workspace_id": ec.WorkspaceID,
		"user_id":      ec.UserID,
	}

	payload, err := json.Marshal(callRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.gatewayURL+"/v1/calls", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", a.internalToken)

	body, status, err := a.doThroughBreaker(req)
	if err != nil {
		return nil, fmt.Errorf("voice gateway request failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("voice gateway returned HTTP %d", status)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		// Gateway accepted the call but returned a non-JSON body.
		response = map[string]interface{}{"raw": string(body)}
	}

	a.logger.Info("Placed outbound call",
		zap.Uint("contact_id", contactID),
		zap.String("flow_id", cfg.FlowID))

	return &Result{
		Success: true,
		Output: models.JSONMap{
			"contact_id": contactID,
			"flow_id":    cfg.FlowID,
			"call":       response,
		},
	}, nil
}

func (a *PlaceCallAction) doThroughBreaker(req *http.Request) ([]byte, int, error) {
	out, err := a.breaker.Execute(func() (interface{}, error) {
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return nil, err
		}
		return &gatewayResponse{body: body, status: resp.StatusCode}, nil
	})
	if err != nil {
		return nil, 0, err
	}

	resp := out.(*gatewayResponse)
	return resp.body, resp.status, nil
}

type gatewayResponse struct {
	body   []byte
	status int
}

// triggerContactID extracts the contact id from the trigger payload. The
// payload may come straight from an Event or from a JSON roundtrip, so
// numeric types vary.
func triggerContactID(trigger models.JSONMap) (uint, bool) {
	switch v := trigger["contact_id"].(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return uint(n), n > 0
		}
	}
	return 0, false
}
