package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mailtriage/pkg/metrics"
	"mailtriage/pkg/otel"
	"mailtriage/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

const consumerTag = "mailtriage-worker"

type Consumer struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	logger     *zap.Logger
	dlqMu      sync.Mutex
}

// NewConsumer creates a consumer for a specific routing key. prefetch 限制未确认消息数，
// 与 worker 数一致时每个 worker 同时最多持有一条消息。
func NewConsumer(url, queueName, routingKey string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(format string, err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf(format, err)
	}

	if err := DeclareExchange(ch); err != nil {
		return fail("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		return fail("failed to declare DLQ exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		return fail("%w", err)
	}

	q, err := DeclareWorkQueue(ch, queueName, routingKey)
	if err != nil {
		return fail("%w", err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
		zap.Int("prefetch", prefetch),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// IsConnected checks if the consumer connection is still alive
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// StartConsuming 用 workers 个 goroutine 消费消息，阻塞直到 ctx 取消或 channel 关闭。
// 每条 delivery 只会交给一个 goroutine。
func (c *Consumer) StartConsuming(ctx context.Context, workers int) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}
	if workers <= 0 {
		workers = 1
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		consumerTag,
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
		zap.Int("workers", workers),
	)

	// ctx 取消后停止投递，已在处理的消息会处理完
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := c.channel.Cancel(consumerTag, false); err != nil {
				c.logger.Warn("Failed to cancel consumer", zap.Error(err))
			}
		case <-stop:
		}
	}()
	defer close(stop)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range deliveries {
				c.handle(msg)
			}
		}()
	}
	wg.Wait()

	c.logger.Info("Consumer stopped", zap.String("queue", c.queue.Name))
	return nil
}

// handle 保证每条消息都会被 ack；失败的消息转入死信队列，不重新入队
func (c *Consumer) handle(msg amqp091.Delivery) {
	start := time.Now()
	ctx := context.Background()
	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, c.queue.Name, msg.Headers)
	defer span.End()

	c.logger.Debug("Received message",
		zap.String("queue", c.queue.Name),
		zap.Int("message_size", len(msg.Body)),
		zap.Bool("redelivered", msg.Redelivered),
	)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			c.deadLetter(ctx, msg, fmt.Sprintf("panic: %v", r))
		}
		metrics.RecordMQConsumeLatency(c.queue.Name, time.Since(start))
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		span.RecordError(err)
		c.logger.Error("Handler error, sending to DLQ",
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		c.deadLetter(ctx, msg, err.Error())
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg amqp091.Delivery, reason string) {
	c.dlqMu.Lock()
	err := publishToDLQ(ctx, c.channel, c.routingKey, msg, reason)
	c.dlqMu.Unlock()

	if err != nil {
		c.logger.Error("Failed to publish to DLQ, dropping message",
			zap.String("queue", c.queue.Name),
			zap.Error(err),
		)
		if err := msg.Nack(false, false); err != nil {
			c.logger.Error("Failed to nack message", zap.Error(err))
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack dead-lettered message", zap.Error(err))
	}
}
