package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TopicAll carries every appointment event; UserTopic carries the events
// that concern one user.
const TopicAll = "appointments/all"

func UserTopic(userID uuid.UUID) string {
	return "appointments/user/" + userID.String()
}

type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status,omitempty"`
	PreviousState string    `json:"previous_status,omitempty"`
	Date          string    `json:"date,omitempty"`
	ActorID       uuid.UUID `json:"actor_id"`
	At            time.Time `json:"at"`
}

// Bus is fire-and-forget; delivery and ordering are the transport's business.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Broadcaster fans an event out to the shared topic and each recipient's own
// topic. Failures are logged and never returned.
type Broadcaster struct {
	bus    Bus
	logger *zap.Logger
}

func NewBroadcaster(bus Bus, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{bus: bus, logger: logger}
}

func (b *Broadcaster) Announce(ctx context.Context, ev Event, recipients ...uuid.UUID) {
	if b == nil || b.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("broadcast encode failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}

	topics := []string{TopicAll}
	seen := map[uuid.UUID]struct{}{}
	for _, id := range recipients {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		topics = append(topics, UserTopic(id))
	}

	for _, topic := range topics {
		if err := b.bus.Publish(ctx, topic, payload); err != nil {
			b.logger.Warn("broadcast publish failed",
				zap.String("topic", topic),
				zap.String("type", ev.Type),
				zap.String("appointment_id", ev.AppointmentID.String()),
				zap.Error(err),
			)
		}
	}
}

// LogBus writes events to the log instead of a transport.
type LogBus struct {
	logger *zap.Logger
}

func NewLogBus(logger *zap.Logger) *LogBus {
	return &LogBus{logger: logger}
}

func (b *LogBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.logger.Info("broadcast", zap.String("topic", topic), zap.ByteString("payload", payload))
	return nil
}
