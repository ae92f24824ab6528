package fraud

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScreen(t *testing.T, cfg Config, velocity VelocityStore) *Screen {
	t.Helper()

	if velocity == nil {
		velocity = NewMemoryVelocityStore()
	}

	return NewScreen(cfg, velocity, slog.Default())
}

func TestCheckHighValueThreshold(t *testing.T) {
	t.Parallel()

	screen := newTestScreen(t, Config{HighValueThreshold: 1000}, nil)

	err := screen.Check(context.Background(), 1000, "client@example.com")
	assert.ErrorIs(t, err, ErrDeclined)

	err = screen.Check(context.Background(), 5000, "client@example.com")
	assert.ErrorIs(t, err, ErrDeclined)

	err = screen.Check(context.Background(), 999.99, "client@example.com")
	assert.NoError(t, err)
}

func TestCheckDisposableDomain(t *testing.T) {
	t.Parallel()

	screen := newTestScreen(t, Config{}, nil)

	err := screen.Check(context.Background(), 50, "fraudster@mailinator.com")
	assert.ErrorIs(t, err, ErrDeclined)

	// Case-insensitive on the domain part.
	err = screen.Check(context.Background(), 50, "fraudster@MAILINATOR.com")
	assert.ErrorIs(t, err, ErrDeclined)

	err = screen.Check(context.Background(), 50, "client@example.com")
	assert.NoError(t, err)
}

func TestCheckVelocity(t *testing.T) {
	t.Parallel()

	screen := newTestScreen(t, Config{MaxAttempts: 5}, NewMemoryVelocityStore())
	ctx := context.Background()

	// The ceiling is exclusive: the fifth attempt within the window is still
	// accepted, the sixth is declined.
	for attempt := 1; attempt <= 5; attempt++ {
		require.NoError(t, screen.Check(ctx, 50, "busy@example.com"), "attempt %d", attempt)
	}

	err := screen.Check(ctx, 50, "busy@example.com")
	require.ErrorIs(t, err, ErrDeclined)
	assert.Contains(t, err.Error(), "6 payment attempts")

	// A different client is unaffected.
	assert.NoError(t, screen.Check(ctx, 50, "calm@example.com"))
}

func TestCheckVelocityWindowExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	store := NewMemoryVelocityStoreWithClock(func() time.Time { return now })
	screen := newTestScreen(t, Config{MaxAttempts: 5, Window: time.Hour}, store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, screen.Check(ctx, 50, "busy@example.com"))
	}

	// Once the window slides past the earlier attempts, the client is clean.
	now = now.Add(2 * time.Hour)
	assert.NoError(t, screen.Check(ctx, 50, "busy@example.com"))
}

type brokenVelocityStore struct{}

func (brokenVelocityStore) Record(context.Context, string, time.Duration) (int, error) {
	return 0, errors.New("connection refused")
}

func TestCheckVelocityStoreFailureAccepts(t *testing.T) {
	t.Parallel()

	screen := newTestScreen(t, Config{}, brokenVelocityStore{})

	assert.NoError(t, screen.Check(context.Background(), 50, "client@example.com"))
}

func TestCheckOrder(t *testing.T) {
	t.Parallel()

	// The amount check decides before the domain check gets a say.
	screen := newTestScreen(t, Config{HighValueThreshold: 100}, nil)

	err := screen.Check(context.Background(), 100, "fraudster@mailinator.com")
	require.ErrorIs(t, err, ErrDeclined)
	assert.Contains(t, err.Error(), "high-value threshold")
}
