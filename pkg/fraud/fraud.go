// Package fraud provides pre-transaction screening for payment link creation.
// Three independent checks run in fixed order; the first failing check
// decides. There is no soft-decline tier.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrDeclined indicates the payment was blocked by screening.
var ErrDeclined = errors.New("payment declined by fraud screen")

const (
	// DefaultHighValueThreshold blocks single payments at or above this
	// amount in major currency units.
	DefaultHighValueThreshold = 500000

	// DefaultMaxAttempts is the rapid-succession ceiling per client email
	// within the trailing window.
	DefaultMaxAttempts = 5

	// DefaultWindow is the trailing window for the rapid-succession check.
	DefaultWindow = time.Hour
)

// defaultDisposableDomains is the built-in denylist of throwaway email hosts.
var defaultDisposableDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"tempmail.com",
	"temp-mail.org",
	"throwawaymail.com",
	"yopmail.com",
	"sharklasers.com",
	"getnada.com",
	"trashmail.com",
}

// VelocityStore counts recent payment attempts per client email.
type VelocityStore interface {
	// Record registers one attempt and returns the attempt count within the
	// trailing window, including this one.
	Record(ctx context.Context, email string, window time.Duration) (int, error)
}

// Config tunes the screen. Zero values fall back to the defaults.
type Config struct {
	HighValueThreshold float64
	MaxAttempts        int
	Window             time.Duration
	DisposableDomains  []string
}

// Screen evaluates (amount, clientEmail, recent attempt history) and either
// accepts or declines.
type Screen struct {
	threshold   float64
	maxAttempts int
	window      time.Duration
	denylist    map[string]struct{}
	velocity    VelocityStore
	logger      *slog.Logger
}

func NewScreen(cfg Config, velocity VelocityStore, logger *slog.Logger) *Screen {
	threshold := cfg.HighValueThreshold
	if threshold <= 0 {
		threshold = DefaultHighValueThreshold
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	domains := cfg.DisposableDomains
	if len(domains) == 0 {
		domains = defaultDisposableDomains
	}

	denylist := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		denylist[strings.ToLower(domain)] = struct{}{}
	}

	return &Screen{
		threshold:   threshold,
		maxAttempts: maxAttempts,
		window:      window,
		denylist:    denylist,
		velocity:    velocity,
		logger:      logger.With("module", "fraud_screen"),
	}
}

// Check screens one link-creation attempt. A nil return means accept.
func (s *Screen) Check(ctx context.Context, amount float64, clientEmail string) error {
	if amount >= s.threshold {
		s.logger.WarnContext(ctx, "Declined high-value payment",
			"amount", amount, "threshold", s.threshold)

		return fmt.Errorf("amount %.2f exceeds high-value threshold: %w", amount, ErrDeclined)
	}

	domain := emailDomain(clientEmail)
	if _, blocked := s.denylist[domain]; blocked {
		s.logger.WarnContext(ctx, "Declined disposable email domain",
			"domain", domain)

		return fmt.Errorf("disposable email domain %q: %w", domain, ErrDeclined)
	}

	attempts, err := s.velocity.Record(ctx, strings.ToLower(clientEmail), s.window)
	if err != nil {
		// A broken counter must not block payments; accept and log.
		s.logger.ErrorContext(ctx, "Velocity store unavailable, skipping rapid-succession check",
			"error", err)

		return nil
	}

	if attempts > s.maxAttempts {
		s.logger.WarnContext(ctx, "Declined rapid-succession payments",
			"email", clientEmail, "attempts", attempts, "window", s.window)

		return fmt.Errorf("%d payment attempts within %s: %w", attempts, s.window, ErrDeclined)
	}

	return nil
}

// IsDeclined checks whether err is a fraud decline.
func IsDeclined(err error) bool {
	return errors.Is(err, ErrDeclined)
}

func emailDomain(email string) string {
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return ""
	}

	return strings.ToLower(domain)
}
