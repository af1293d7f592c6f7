package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"mailtriage/pkg/config"
	"mailtriage/pkg/mq"
)

const defaultQueueName = "email.classify.q"

// RabbitBroker 基于 RabbitMQ 的 broker，连接按需建立：api 进程只发布，worker 进程只消费
type RabbitBroker struct {
	cfg    config.MQConfig
	logger *zap.Logger

	mu        sync.Mutex
	publisher *mq.Publisher
	consumer  *mq.Consumer
}

func NewRabbitBroker(cfg config.MQConfig, logger *zap.Logger) *RabbitBroker {
	if cfg.Queue == "" {
		cfg.Queue = defaultQueueName
	}
	return &RabbitBroker{cfg: cfg, logger: logger}
}

func (b *RabbitBroker) Name() string { return "rabbitmq" }

func (b *RabbitBroker) getPublisher() (*mq.Publisher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publisher != nil && b.publisher.IsConnected() {
		return b.publisher, nil
	}
	if b.publisher != nil {
		b.publisher.Close()
	}
	p, err := mq.NewPublisher(b.cfg.URL)
	if err != nil {
		return nil, err
	}
	// api 独立部署时 worker 可能还没绑定队列
	if err := p.DeclareQueue(b.cfg.Queue, RoutingKey); err != nil {
		p.Close()
		return nil, err
	}
	b.publisher = p
	return p, nil
}

func (b *RabbitBroker) Publish(ctx context.Context, msg Message) error {
	p, err := b.getPublisher()
	if err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKey, msg)
}

func (b *RabbitBroker) Consume(ctx context.Context, workers int, handle Handler) error {
	prefetch := b.cfg.Prefetch
	if prefetch < workers {
		prefetch = workers
	}
	consumer, err := mq.NewConsumer(b.cfg.URL, b.cfg.Queue, RoutingKey, prefetch, b.logger)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.consumer = consumer
	b.mu.Unlock()

	consumer.SetHandler(func(ctx context.Context, data json.RawMessage) error {
		msg, err := decodeMessage(data)
		if err != nil {
			return err
		}
		return handle(ctx, msg)
	})
	return consumer.StartConsuming(ctx, workers)
}

// decodeMessage 解码失败的消息由 consumer 投递到死信队列
func decodeMessage(data json.RawMessage) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("json_unmarshal_error: %w", err)
	}
	if msg.JobID == "" {
		return Message{}, fmt.Errorf("message has no job_id")
	}
	return msg, nil
}

func (b *RabbitBroker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumer != nil && !b.consumer.IsConnected() {
		return false
	}
	return b.publisher == nil || b.publisher.IsConnected()
}

func (b *RabbitBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publisher != nil {
		b.publisher.Close()
		b.publisher = nil
	}
	if b.consumer != nil {
		b.consumer.Close()
		b.consumer = nil
	}
	return nil
}
