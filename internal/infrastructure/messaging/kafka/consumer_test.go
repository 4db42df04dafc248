package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/cfpminer/internal/config"
)

// mockKafkaReader serves queued messages and cancels the run once drained.
type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	fetchErrs int
	cancel    context.CancelFunc
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErrs > 0 {
		m.fetchErrs--
		return kafka.Message{}, errors.New("fetch failed")
	}
	if len(m.queue) == 0 {
		m.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, nil
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msgs...)
	return nil
}

func (m *mockKafkaReader) Close() error { return nil }

func envelopeMessage(t *testing.T, topic string, offset int64) kafka.Message {
	t.Helper()
	env, err := NewEventEnvelope(EventTypeIndexMined, IndexMinedPayload{SessionID: "s1"})
	require.NoError(t, err)
	msg, err := env.ToMessage(topic, "s1")
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Offset: offset, Value: msg.Value}
}

func runConsumer(t *testing.T, r *mockKafkaReader, maxRetries int, h EventHandler) *Consumer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.cancel = cancel
	c := newConsumer(r, ConsumerConfig{GroupID: "g", Topics: []string{"m"}, MaxRetries: maxRetries, RetryBackoff: time.Millisecond}, h, nil)
	require.NoError(t, c.Run(ctx))
	return c
}

func TestValidateConsumerConfig(t *testing.T) {
	good := ConsumerConfig{Brokers: []string{"b"}, GroupID: "g", Topics: []string{"t"}}
	assert.NoError(t, ValidateConsumerConfig(good))

	noGroup := good
	noGroup.GroupID = ""
	assert.Error(t, ValidateConsumerConfig(noGroup))

	noTopics := good
	noTopics.Topics = nil
	assert.Error(t, ValidateConsumerConfig(noTopics))
}

func TestConsumerConfigFrom(t *testing.T) {
	cc := ConsumerConfigFrom(config.Default().Kafka)
	assert.Equal(t, config.DefaultKafkaGroupID, cc.GroupID)
	assert.Equal(t, []string{config.DefaultKafkaTopicMined, config.DefaultKafkaTopicFiltered}, cc.Topics)
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{envelopeMessage(t, "m", 1), envelopeMessage(t, "m", 2)}}
	var seen []string
	c := runConsumer(t, r, 0, func(_ context.Context, topic string, env *EventEnvelope) error {
		seen = append(seen, topic+":"+env.EventType)
		return nil
	})

	assert.Equal(t, []string{"m:index.mined", "m:index.mined"}, seen)
	assert.Len(t, r.committed, 2)
	assert.Equal(t, ConsumerStats{Consumed: 2, Handled: 2}, c.Stats())
}

func TestConsumer_RetriesThenSucceeds(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{envelopeMessage(t, "m", 1)}}
	calls := 0
	c := runConsumer(t, r, 2, func(context.Context, string, *EventEnvelope) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	assert.Equal(t, 2, calls)
	assert.Equal(t, ConsumerStats{Consumed: 1, Handled: 1, Retried: 1}, c.Stats())
}

func TestConsumer_PoisonMessageIsCommitted(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{{Topic: "m", Value: []byte("not json")}, envelopeMessage(t, "m", 2)}}
	c := runConsumer(t, r, 1, func(context.Context, string, *EventEnvelope) error { return nil })

	assert.Len(t, r.committed, 2)
	assert.Equal(t, int64(1), c.Stats().Failed)
	assert.Equal(t, int64(1), c.Stats().Handled)
}

func TestConsumer_FetchErrorBacksOff(t *testing.T) {
	r := &mockKafkaReader{fetchErrs: 2, queue: []kafka.Message{envelopeMessage(t, "m", 1)}}
	c := runConsumer(t, r, 0, func(context.Context, string, *EventEnvelope) error { return nil })
	assert.Equal(t, int64(1), c.Stats().Handled)
}

func TestConsumer_AlreadyRunning(t *testing.T) {
	c := newConsumer(&mockKafkaReader{}, ConsumerConfig{}, nil, nil)
	c.running.Store(true)
	assert.ErrorIs(t, c.Run(context.Background()), ErrAlreadyRunning)
}
