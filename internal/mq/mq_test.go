package mq

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shorttrack/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopback struct {
	handlers map[string]Handler
	closed   bool
}

func (l *loopback) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if h, ok := l.handlers[channel]; ok {
		return "1", h(ctx, Message{ID: "1", Data: data, Attributes: attrs})
	}
	return "1", nil
}

func (l *loopback) Subscribe(_ context.Context, channel string, handler Handler) error {
	l.handlers[channel] = handler
	return nil
}

func (l *loopback) Close() error {
	l.closed = true
	return nil
}

func TestMQDelegatesToBackend(t *testing.T) {
	backend := &loopback{handlers: map[string]Handler{}}
	queue := New(backend)

	var got Message
	require.NoError(t, queue.Subscribe(context.Background(), "jobs", func(_ context.Context, msg Message) error {
		got = msg
		return nil
	}))

	id, err := queue.Publish(context.Background(), "jobs", []byte("payload"), map[string]string{"kind": "email"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, "payload", string(got.Data))
	assert.Equal(t, "email", got.Attributes["kind"])

	require.NoError(t, queue.Close())
	assert.True(t, backend.closed)
}

func TestOpen(t *testing.T) {
	queue, err := Open(context.Background(), config.MQConfig{})
	require.NoError(t, err)
	assert.Nil(t, queue)

	_, err = Open(context.Background(), config.MQConfig{Backend: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: "rabbitmq"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.MQConfig{Backend: "pubsub"})
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"kind":  "sms",
		"raw":   []byte("bytes"),
		"count": int32(3),
	})
	assert.Equal(t, map[string]string{"kind": "sms", "raw": "bytes", "count": "3"}, attrs)
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "jobs-sub", (&PubSubClient{subscriptionSuffix: "-sub"}).subscriptionName("jobs"))
	assert.Equal(t, "jobs", (&PubSubClient{}).subscriptionName("jobs"))
}
