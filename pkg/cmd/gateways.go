package cmd

import (
	"log/slog"
	"os"

	"github.com/billhawk/billhawk/pkg/gateway"
	"github.com/billhawk/billhawk/pkg/gateway/payu"
	"github.com/billhawk/billhawk/pkg/gateway/razorpay"
	"github.com/billhawk/billhawk/pkg/gateway/stripe"
)

// NewGatewayRegistry registers every provider whose credentials are present
// in the environment. A deployment that only configures one provider gets a
// registry with just that one.
func NewGatewayRegistry(logger *slog.Logger) *gateway.Registry {
	registry := gateway.NewRegistry(logger)

	if apiKey := os.Getenv("STRIPE_API_KEY"); apiKey != "" {
		registry.Register(stripe.New(stripe.Config{
			APIKey:        apiKey,
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		}, logger))
	}

	if keyID := os.Getenv("RAZORPAY_KEY_ID"); keyID != "" {
		registry.Register(razorpay.New(razorpay.Config{
			KeyID:         keyID,
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		}, logger))
	}

	if merchantKey := os.Getenv("PAYU_MERCHANT_KEY"); merchantKey != "" {
		registry.Register(payu.New(payu.Config{
			MerchantKey: merchantKey,
			Salt:        os.Getenv("PAYU_SALT"),
		}, logger))
	}

	return registry
}
