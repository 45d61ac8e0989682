// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/nodeloom/nodeloom/pkg/channels/gochannel"
	"github.com/nodeloom/nodeloom/pkg/channels/kafka"
	"github.com/nodeloom/nodeloom/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. Local
// sessions use the in-memory channel; kafka connects to the given brokers.
func NewEventBus(provider string, brokers []string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), "nodeloom", brokers)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "memory", "":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
