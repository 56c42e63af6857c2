package actions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Lovjeet1233/kepleroai-automation-service/internal/models"
)

const KindHTTPRequest = "http_request"

// maxResponseBody caps how much of the remote response is persisted on the
// execution record.
const maxResponseBody = 10_000

// HTTPRequestConfig is the per-node configuration of the http_request action
type HTTPRequestConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// HTTPRequestAction issues an arbitrary outbound HTTP request. Each target
// host gets its own circuit breaker and rate limiter so one flapping
// endpoint cannot starve the rest.
type HTTPRequestAction struct {
	httpClient *http.Client
	logger     *zap.Logger
	rps        int
	breakers   sync.Map // map[string]*gobreaker.CircuitBreaker
	limiters   sync.Map // map[string]*rate.Limiter
}

// NewHTTPRequestAction creates an http_request handler. rps bounds outbound
// requests per second per host.
func NewHTTPRequestAction(rps int, logger *zap.Logger) *HTTPRequestAction {
	if rps <= 0 {
		rps = 10
	}
	return &HTTPRequestAction{
		logger: logger,
		rps:    rps,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (a *HTTPRequestAction) Kind() string { return KindHTTPRequest }

// Execute performs the configured request and reports status and body
func (a *HTTPRequestAction) Execute(ctx context.Context, config models.JSONMap, trigger models.JSONMap, ec *models.ExecContext) (*Result, error) {
	var cfg HTTPRequestConfig
	if err := config.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", a.Kind(), err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s: url is required", a.Kind())
	}

	target, err := url.Parse(cfg.URL)
	if err != nil || target.Host == "" {
		return nil, fmt.Errorf("%s: invalid url %q", a.Kind(), cfg.URL)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	if !a.getRateLimiter(target.Host).Allow() {
		return nil, fmt.Errorf("rate limit exceeded for host %s", target.Host)
	}

	var body io.Reader
	if cfg.Body != "" {
		body = strings.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if cfg.Body != "" && cfg.Headers["Content-Type"] == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	cb := a.getCircuitBreaker(target.Host)

	out, err := cb.Execute(func() (interface{}, error) {
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
		if err != nil {
			respBody = []byte("failed to read response body")
		}
		return &gatewayResponse{body: respBody, status: resp.StatusCode}, nil
	})
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("http request to %s failed: %w", target.Host, err)
	}

	resp := out.(*gatewayResponse)

	responseBody := string(resp.body)
	if len(responseBody) > maxResponseBody {
		responseBody = responseBody[:maxResponseBody] + "... (truncated)"
	}

	a.logger.Info("Executed http_request action",
		zap.String("method", method),
		zap.String("host", target.Host),
		zap.Int("status", resp.status),
		zap.Duration("duration", duration))

	success := resp.status >= 200 && resp.status < 300
	if !success {
		return nil, fmt.Errorf("http request to %s returned HTTP %d", target.Host, resp.status)
	}

	return &Result{
		Success: true,
		Output: models.JSONMap{
			"status_code": resp.status,
			"body":        responseBody,
			"duration_ms": duration.Milliseconds(),
		},
	}, nil
}

func (a *HTTPRequestAction) getCircuitBreaker(host string) *gobreaker.CircuitBreaker {
	if cb, ok := a.breakers.Load(host); ok {
		return cb.(*gobreaker.CircuitBreaker)
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("http-action-%s", host),
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			a.logger.Info("Circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	cb, _ := a.breakers.LoadOrStore(host, gobreaker.NewCircuitBreaker(settings))
	return cb.(*gobreaker.CircuitBreaker)
}

func (a *HTTPRequestAction) getRateLimiter(host string) *rate.Limiter {
	if limiter, ok := a.limiters.Load(host); ok {
		return limiter.(*rate.Limiter)
	}

	limiter, _ := a.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(a.rps), a.rps*2))
	return limiter.(*rate.Limiter)
}
