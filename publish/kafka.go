package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"visitorintel/api/logger"
	"visitorintel/api/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka emits one message per visit, keyed by visitor alias so that a
// visitor's history stays on one partition.
type Kafka struct {
	w   messageWriter
	now func() time.Time
}

func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
		Async:                  true,
		BatchTimeout:           time.Second,
		BatchSize:              100,
		WriteTimeout:           5 * time.Second,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Errorf("Kafka delivery of %d visit messages failed: %v", len(messages), err)
			}
		},
	}
	return newKafka(w)
}

func newKafka(w messageWriter) *Kafka {
	return &Kafka{w: w, now: time.Now}
}

func (k *Kafka) Name() string { return "kafka" }

type visitMessage struct {
	Visit   models.VisitLog   `json:"visit"`
	Derived models.DerivedLog `json:"derived"`
}

func (k *Kafka) PublishVisit(ctx context.Context, visit models.VisitLog, derived models.DerivedLog) error {
	payload, err := json.Marshal(visitMessage{Visit: visit, Derived: derived})
	if err != nil {
		return fmt.Errorf("failed to encode visit message: %w", err)
	}

	key := visit.VisitorAlias
	if key == "" {
		key = visit.SessionID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  k.now().UTC(),
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write visit message: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
