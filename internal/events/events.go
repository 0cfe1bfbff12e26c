// Package events announces recorded analyses on a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

const DefaultTopic = "pneumo.analyses"

// AnalysisRecorded is the payload published after an analysis is stored.
type AnalysisRecorded struct {
	ID          int64                 `json:"id"`
	UserID      int64                 `json:"user_id"`
	PatientID   int64                 `json:"patient_id"`
	Verdict     domain.Verdict        `json:"verdict"`
	Probability float64               `json:"probability"`
	Confidence  domain.ConfidenceBand `json:"confidence"`
	HeatmapURL  string                `json:"heatmap_url,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

type Publisher interface {
	AnalysisRecorded(ctx context.Context, ev AnalysisRecorded) error
}

func ConnectProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 2

	return sarama.NewSyncProducer(brokers, config)
}

// KafkaPublisher writes events as JSON, keyed by user so one user's events
// stay ordered on a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger.Named("events")}
}

func (p *KafkaPublisher) AnalysisRecorded(ctx context.Context, ev AnalysisRecorded) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(fmt.Sprint(ev.UserID)),
		Value: sarama.ByteEncoder(res),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send analysis %d: %w", ev.ID, err)
	}
	p.logger.Debug("analysis event sent",
		zap.Int64("analysisID", ev.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Nop drops every event.
type Nop struct{}

func (Nop) AnalysisRecorded(context.Context, AnalysisRecorded) error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = Nop{}
)
