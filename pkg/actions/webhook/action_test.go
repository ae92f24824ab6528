package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billhawk/billhawk/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testContext() models.ExecutionContext {
	return models.ExecutionContext{
		ExecutionID: "exec-1",
		RuleID:      "rule-1",
		TriggerType: models.TriggerInvoiceOverdue,
		EntityID:    "inv-1",
		TriggerData: map[string]any{"amount": 150.0},
	}
}

func TestNewAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		config     map[string]any
		wantErr    bool
		wantMethod string
	}{
		{
			name:       "url only defaults to POST",
			config:     map[string]any{"url": "https://hooks.example.com/x"},
			wantMethod: http.MethodPost,
		},
		{
			name:       "explicit method upcased",
			config:     map[string]any{"url": "https://hooks.example.com/x", "method": "put"},
			wantMethod: http.MethodPut,
		},
		{
			name:    "missing url",
			config:  map[string]any{"method": "POST"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			action, err := NewAction(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrURLMissing)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, action.Method)
		})
	}
}

func TestExecute_DeliversTriggerPayload(t *testing.T) {
	var received map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret-token", r.Header.Get("X-Auth"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		fmt.Fprint(w, `{"accepted": true}`)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Auth": "secret-token"},
	})
	require.NoError(t, err)

	result, err := action.Execute(context.Background(), testContext(), testLogger())
	require.NoError(t, err)

	assert.Equal(t, "inv-1", received["entity_id"])
	assert.Equal(t, "invoice_overdue", received["trigger_type"])

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, resultMap["status_code"])
	assert.Equal(t, map[string]any{"accepted": true}, resultMap["body"])
}

func TestExecute_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": float64(3), "delay": float64(0)},
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), testContext(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"error": "bad payload"}`)
	}))
	defer server.Close()

	action, err := NewAction(map[string]any{
		"url":   server.URL,
		"retry": map[string]any{"attempts": float64(3), "delay": float64(0)},
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), testContext(), testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Equal(t, int32(1), calls.Load(), "4xx replies must not be retried")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	action, err := NewAction(map[string]any{"url": "https://hooks.example.com/x", "method": "DELETE"})
	require.NoError(t, err)
	assert.Error(t, action.Validate(context.Background()))

	action, err = NewAction(map[string]any{"url": "https://hooks.example.com/x"})
	require.NoError(t, err)
	assert.NoError(t, action.Validate(context.Background()))
}
