package kafka

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "outlet.order.events"
	TopicReferralEvents  = "outlet.referral.events"
	TopicDeadLetterQueue = "outlet.dlq" // Dead Letter Queue для недоставленных outbox-событий
)

// Kafka headers outbox-сообщений
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderAggregateType = "x-aggregate-type"
)

// TopicForEvent выбирает topic по типу события.
func TopicForEvent(eventType string) string {
	switch {
	case strings.HasPrefix(eventType, "referral."):
		return TopicReferralEvents
	default:
		return TopicOrderEvents
	}
}

// Envelope описывает сообщение, которое уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(event domain.OutboxMessage) Envelope {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage(`null`)
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   time.Now().UTC(),
	}
}
