package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/pkg/mq/mqtest"
	"mailtriage/pkg/trace"
)

const (
	testQueue      = "mq.test.q"
	testRoutingKey = "mq.test"
)

type testPayload struct {
	ID string `json:"id"`
}

func TestPublishBeforeConsumerIsRetained(t *testing.T) {
	url := mqtest.StartRabbitMQ(t)

	p, err := NewPublisher(url)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.DeclareQueue(testQueue, testRoutingKey))
	assert.True(t, p.IsConnected())

	ctx := trace.WithContext(context.Background(), "trace-1")
	require.NoError(t, p.Publish(ctx, testRoutingKey, testPayload{ID: "a"}))

	require.Eventually(t, func() bool {
		return mqtest.QueueDepth(t, url, testQueue) == 1
	}, 5*time.Second, 50*time.Millisecond)

	msg, ok := mqtest.Get(t, url, testQueue)
	require.True(t, ok)
	assert.Equal(t, "trace-1", msg.Headers[trace.HeaderName])

	var got testPayload
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "a", got.ID)
}

func TestConsumerDeadLettersFailedMessages(t *testing.T) {
	url := mqtest.StartRabbitMQ(t)

	p, err := NewPublisher(url)
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.DeclareQueue(testQueue, testRoutingKey))

	c, err := NewConsumer(url, testQueue, testRoutingKey, 2, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	handled := make(chan string, 4)
	c.SetHandler(func(ctx context.Context, data json.RawMessage) error {
		var msg testPayload
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		handled <- msg.ID
		switch msg.ID {
		case "bad":
			return errors.New("cannot handle")
		case "panic":
			panic("boom")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.StartConsuming(ctx, 2) }()

	for _, id := range []string{"ok", "bad", "panic"} {
		require.NoError(t, p.Publish(context.Background(), testRoutingKey, testPayload{ID: id}))
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case id := <-handled:
			seen[id] = true
		case <-time.After(10 * time.Second):
			t.Fatal("handler was not called for every message")
		}
	}
	assert.Len(t, seen, 3)

	dlq := testRoutingKey + ".dlq"
	require.Eventually(t, func() bool {
		return mqtest.QueueDepth(t, url, dlq) == 2
	}, 5*time.Second, 50*time.Millisecond)

	errs := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg, ok := mqtest.Get(t, url, dlq)
		require.True(t, ok)
		assert.Equal(t, "mailtriage-worker", msg.Headers["x-failed-at"])
		reason, _ := msg.Headers["x-original-error"].(string)
		errs[reason] = true
	}
	assert.True(t, errs["cannot handle"])
	assert.True(t, errs["panic: boom"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
	c.Close()

	// 失败的消息已 ack，不会回到工作队列
	assert.Equal(t, 0, mqtest.QueueDepth(t, url, testQueue))
}
