package template

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		data     any
		want     string
	}{
		{
			name:     "plain text passes through",
			template: "Your invoice is overdue.",
			data:     nil,
			want:     "Your invoice is overdue.",
		},
		{
			name:     "fields from map",
			template: "Hi {{.client_name}}, invoice {{.invoice_number}} is due.",
			data:     map[string]any{"client_name": "Acme", "invoice_number": "2026-001"},
			want:     "Hi Acme, invoice 2026-001 is due.",
		},
		{
			name:     "money formats two decimals",
			template: "Amount due: {{money .amount}}",
			data:     map[string]any{"amount": 1234.5},
			want:     "Amount due: 1234.50",
		},
		{
			name:     "date formats year month day",
			template: "Due {{date .due_date}}",
			data:     map[string]any{"due_date": time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)},
			want:     "Due 2026-07-15",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderErrors(t *testing.T) {
	t.Parallel()

	_, err := Render("{{.broken", nil)
	require.Error(t, err)

	_, err = Render("{{money .amount}}", map[string]any{"amount": "not-a-number"})
	require.Error(t, err)
}

func TestParse(t *testing.T) {
	t.Parallel()

	_, err := Parse("Hello {{.name}}")
	assert.NoError(t, err)

	_, err = Parse("{{.broken")
	assert.Error(t, err)
}
