package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type writerStub struct {
	msgs []kafka.Message
	err  error
}

func (w *writerStub) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *writerStub) Close() error { return nil }

func TestKafkaPublisherWritesKeyedMessage(t *testing.T) {
	w := &writerStub{}
	p := newKafkaPublisher(w, "chores.dispute.resolved", 0, nil)

	err := p.Publish(context.Background(), "dispute.resolved", "d-1", map[string]string{"outcome": "approved"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "d-1", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "dispute.resolved", string(w.msgs[0].Headers[0].Value))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "approved", body["outcome"])
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	p := newKafkaPublisher(&writerStub{err: errors.New("broker down")}, "topic", 0, nil)
	err := p.Publish(context.Background(), "dispute.resolved", "d-1", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)
}
