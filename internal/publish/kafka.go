package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	appconfig "memeflow/config"
	"memeflow/internal/model"
	"memeflow/logger"
)

// Publisher emits each completed pipeline run to a Kafka topic so
// downstream consumers can react to list refreshes without polling the
// HTTP endpoint.
type Publisher struct {
	writer *kafka.Writer
	log    *logger.Log
}

func NewPublisher(cfg appconfig.KafkaConfig) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		log: logger.GetLogger(),
	}
}

// PublishRun sends one run, keyed by run id. The audit-only items are
// left out of the message; the archive carries those.
func (p *Publisher) PublishRun(ctx context.Context, result *model.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(result.RunID),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return err
	}

	logger.IncrementPublishedRun()
	p.log.WithComponent("publisher").WithFields(logger.Fields{
		"run_id": result.RunID,
		"items":  len(result.Items),
	}).Debug("run published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
