// Package webhook provides the webhook workflow action, which posts the
// trigger payload to an external URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/billhawk/billhawk/pkg/models"
	"github.com/billhawk/billhawk/pkg/protocol"
)

// ErrURLMissing is returned when the configuration carries no URL.
var ErrURLMissing = errors.New("missing 'url' in configuration")

const defaultTimeout = 30 * time.Second

// RetryConfig controls delivery retries on transport errors and 5xx replies.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// Action delivers the trigger data as a JSON document. Non-2xx replies below
// 500 are treated as final.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
	Retry   RetryConfig
	client  *http.Client
}

func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLMissing
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	headers := make(map[string]string)
	if headersConfig, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	retry := RetryConfig{Attempts: 1}
	if retryConfig, ok := config["retry"].(map[string]any); ok {
		if attempts, ok := retryConfig["attempts"].(float64); ok && attempts >= 1 {
			retry.Attempts = int(attempts)
		}

		if delay, ok := retryConfig["delay"].(float64); ok {
			retry.Delay = time.Duration(delay) * time.Second
		}
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Timeout: defaultTimeout,
		Retry:   retry,
		client:  &http.Client{},
	}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("module", "webhook_action")

	payload := map[string]any{
		"trigger_type": executionCtx.TriggerType,
		"entity_id":    executionCtx.EntityID,
		"data":         executionCtx.TriggerData,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	var (
		statusCode int
		respBody   []byte
		lastErr    error
	)

	for attempt := 1; attempt <= a.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying webhook delivery",
				"attempt", attempt, "max_attempts", a.Retry.Attempts)
			time.Sleep(a.Retry.Delay)
		}

		statusCode, respBody, lastErr = a.deliver(ctx, body)
		if lastErr == nil {
			break
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("webhook delivery to %s failed: %w", a.URL, lastErr)
	}

	if statusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("webhook %s replied %d: %s", a.URL, statusCode, strings.TrimSpace(string(respBody)))
	}

	logger.InfoContext(ctx, "Webhook delivered", "url", a.URL, "status", statusCode)

	result := map[string]any{"status_code": statusCode}

	var decoded any
	if json.Unmarshal(respBody, &decoded) == nil {
		result["body"] = decoded
	}

	return result, nil
}

func (a *Action) deliver(ctx context.Context, body []byte) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, a.Method, a.URL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range a.Headers {
		req.Header.Set(key, value)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read webhook response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return 0, nil, fmt.Errorf("server error (status %d)", resp.StatusCode)
	}

	return resp.StatusCode, respBody, nil
}

func (a *Action) Validate(_ context.Context) error {
	if a.URL == "" {
		return ErrURLMissing
	}

	switch a.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
		return nil
	default:
		return fmt.Errorf("unsupported webhook method %q", a.Method)
	}
}

// Factory builds webhook actions.
type Factory struct{}

func (f *Factory) ID() models.ActionType {
	return models.ActionWebhook
}

func (f *Factory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}
