package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/billhawk/billhawk/pkg/channels/gochannel"
	"github.com/billhawk/billhawk/pkg/channels/kafka"
	"github.com/billhawk/billhawk/pkg/eventbus"
)

// NewEventBus builds the domain event bus for the given provider. The
// in-process gochannel provider is the single-binary default; kafka fans
// events out across processes.
func NewEventBus(provider, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		cfg, err := kafka.ConfigFromEnv(serviceName)
		if err != nil {
			return nil, err
		}

		pub, sub, err := kafka.CreateChannel(wmLogger, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "gochannel", "":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
