package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// TopicTelemetryUpdated carries notifications about freshly persisted
// telemetry, decoupling the flush worker from connected dashboards.
const TopicTelemetryUpdated = "telemetry.updated"

// UpdateNotification tells dashboards that new data landed.
type UpdateNotification struct {
	Scope string    `json:"scope"`
	Count int       `json:"count"`
	AtUTC time.Time `json:"atUtc"`
}

// NotificationBus is the in-process pub/sub surface between producers of
// telemetry changes and the realtime hub.
type NotificationBus interface {
	Subscribe(topic string, handler func(notification UpdateNotification) error, transactional bool) error
	Publish(topic string, notification UpdateNotification) error
}

type NotificationBusImpl struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewNotificationBus(eventBus EventBus.Bus, logger *zap.Logger) *NotificationBusImpl {
	return &NotificationBusImpl{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (nb *NotificationBusImpl) Subscribe(
	topic string,
	handler func(notification UpdateNotification) error,
	transactional bool,
) error {
	err := nb.eventBus.SubscribeAsync(
		topic,
		func(arg string) {
			var notification UpdateNotification
			err := json.Unmarshal([]byte(arg), &notification)
			if err != nil {
				nb.logger.Error("Failed to unmarshal notification during subscription of topic",
					zap.String("topic", topic),
					zap.Error(err),
				)
				return
			}
			err = handler(notification)
			if err != nil {
				nb.logger.Error("Failed to handle notification during subscription of topic",
					zap.String("topic", topic),
					zap.Error(err),
				)
			}
		},
		transactional,
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	return nil
}

func (nb *NotificationBusImpl) Publish(topic string, notification UpdateNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification for topic %s: %w", topic, err)
	}
	nb.eventBus.Publish(topic, string(payload))
	return nil
}

// BusNotifier publishes flush notifications onto the bus. It satisfies the
// flush worker's notifier dependency.
type BusNotifier struct {
	bus    NotificationBus
	logger *zap.Logger
}

func NewBusNotifier(bus NotificationBus, logger *zap.Logger) *BusNotifier {
	return &BusNotifier{bus: bus, logger: logger}
}

func (bn *BusNotifier) NotifyUpdated(scope string, count int) {
	notification := UpdateNotification{
		Scope: scope,
		Count: count,
		AtUTC: time.Now().UTC(),
	}
	if err := bn.bus.Publish(TopicTelemetryUpdated, notification); err != nil {
		bn.logger.Error("Failed to publish telemetry update", zap.Error(err))
	}
}

// ForwardToHub wires bus notifications into the websocket hub.
func ForwardToHub(bus NotificationBus, hub *Hub, logger *zap.Logger) error {
	return bus.Subscribe(TopicTelemetryUpdated, func(notification UpdateNotification) error {
		payload, err := json.Marshal(notification)
		if err != nil {
			return fmt.Errorf("failed to marshal hub payload: %w", err)
		}
		hub.Broadcast(payload)
		return nil
	}, false)
}
