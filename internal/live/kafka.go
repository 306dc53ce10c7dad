package live

import (
	"context"
	"encoding/json"
	"strconv"

	"adr-workers/internal/common/errors"
	"adr-workers/internal/common/logger"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the part of *kgo.Client the bridge needs.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaBridge is a sink observer that republishes every event to a topic.
type KafkaBridge struct {
	producer Producer
	topic    string
	logger   logger.Logger
	events   chan Event
}

func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, errors.NewExternalServiceError("kafka", err)
	}
	return client, nil
}

func NewKafkaBridge(p Producer, topic string, log logger.Logger) *KafkaBridge {
	return &KafkaBridge{
		producer: p,
		topic:    topic,
		logger:   log,
		events:   make(chan Event, 256),
	}
}

// Attach registers the bridge on sink and publishes until ctx is done. When a
// stalled producer gets the bridge dropped, it registers again and carries on
// with the events published after that.
func (b *KafkaBridge) Attach(ctx context.Context, sink *Sink) {
	const id = "kafka-bridge"
	dropped := sink.Register(id, b.events)
	go func() {
		defer sink.Deregister(id)
		for {
			select {
			case <-ctx.Done():
				return
			case <-dropped:
				b.logger.Warn("kafka bridge fell behind, re-registering", map[string]interface{}{"topic": b.topic})
				dropped = sink.Register(id, b.events)
			case ev := <-b.events:
				b.publish(ctx, ev)
			}
		}
	}()
}

func keyOf(payload interface{}) []byte {
	switch p := payload.(type) {
	case NewReservationPayload:
		return []byte(strconv.FormatInt(p.ReservationID, 10))
	case ReservationUpdatePayload:
		return []byte(strconv.FormatInt(p.ReservationID, 10))
	}
	return nil
}

func (b *KafkaBridge) publish(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("live event not encodable", map[string]interface{}{"event": ev.Name, "error": err})
		return
	}
	rec := &kgo.Record{
		Topic: b.topic,
		Key:   keyOf(ev.Payload),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "eventName", Value: []byte(ev.Name)},
		},
	}
	b.producer.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if err != nil {
			b.logger.Warn("live event publish failed", map[string]interface{}{
				"event": ev.Name,
				"topic": b.topic,
				"error": err,
			})
		}
	})
}
