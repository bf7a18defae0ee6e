package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"course-admin-service/internal/client"
	"course-admin-service/internal/model"
	"course-admin-service/internal/util"
)

// Publisher emits security events to Kafka for the audit trail. Publishing
// is best effort: a dead broker must never fail a login or an admin action,
// so every error stops at a warning log.
type Publisher struct {
	producer *client.KafkaProducer
	topic    string
}

func NewPublisher(producer *client.KafkaProducer, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish stamps the event with an ID and timestamp and sends it. The
// user is the partition key so one account's audit trail stays ordered.
func (p *Publisher) Publish(ctx context.Context, event model.SecurityEvent) {
	if p == nil || p.producer == nil {
		return
	}

	event.EventID = uuid.New().String()
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		util.Warn("Failed to encode security event",
			zap.String("type", event.Type), zap.Error(err))
		return
	}

	key := event.UserID
	if key == "" {
		key = event.Email
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := p.producer.Publish(publishCtx, p.topic, []byte(key), payload); err != nil {
		util.Warn("Failed to publish security event",
			zap.String("type", event.Type), zap.Error(err))
	}
}
