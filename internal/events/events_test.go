package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/domain"
)

func TestKafkaPublisher_SendsJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisher(producer, "", zap.NewNop())
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	ev := AnalysisRecorded{
		ID: 4, UserID: 2, PatientID: 9,
		Verdict: domain.VerdictPositive, Probability: 88.12, Confidence: domain.ConfidenceHigh,
		HeatmapURL: "/static/heatmaps/h.png",
		Timestamp:  time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
	}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != DefaultTopic {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "2" {
			return errors.New("unexpected key " + string(key))
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got AnalysisRecorded
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.ID != ev.ID || got.Verdict != ev.Verdict || got.HeatmapURL != ev.HeatmapURL {
			return errors.New("payload mismatch")
		}
		return nil
	})

	require.NoError(t, p.AnalysisRecorded(context.Background(), ev))
}

func TestKafkaPublisher_PropagatesFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisher(producer, "analyses", zap.NewNop())
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := p.AnalysisRecorded(context.Background(), AnalysisRecorded{ID: 1})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewKafkaPublisher(producer, "analyses", zap.NewNop())
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.AnalysisRecorded(ctx, AnalysisRecorded{ID: 1}), context.Canceled)
}
