package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
)

// RoutingKey 分类任务在 MQ 上的 routing key
const RoutingKey = mqcontracts.RoutingKeyEmailClassify

// Message 队列中传递的任务
type Message = mqcontracts.EmailClassifyPayload

// Handler 处理一条消息。返回 error 表示基础设施问题，消息不会重新投递
type Handler func(ctx context.Context, msg Message) error

// Broker 消息投递。每条消息只会交给一个 Handler 调用
type Broker interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	// Consume 用 workers 个并发槽消费，阻塞直到 ctx 取消或 broker 关闭
	Consume(ctx context.Context, workers int, handle Handler) error
	Ready() bool
	Close() error
}

// MemoryBroker 基于 channel 的进程内 broker；单个 worker 时按 FIFO 处理
type MemoryBroker struct {
	ch     chan Message
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

func NewMemoryBroker(capacity int, logger *zap.Logger) *MemoryBroker {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBroker{
		ch:     make(chan Message, capacity),
		logger: logger,
	}
}

func (b *MemoryBroker) Name() string { return "memory" }

// Publish 不阻塞：队列满时返回 ErrQueueFull
func (b *MemoryBroker) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrQueueClosed
	}
	select {
	case b.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (b *MemoryBroker) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-b.ch:
					if !ok {
						return
					}
					// 已取出的任务要处理完，不随 ctx 一起取消
					if err := handle(context.WithoutCancel(ctx), msg); err != nil {
						b.logger.Error("Handler error",
							zap.Int("slot", slot),
							zap.String("job_id", msg.JobID),
							zap.Error(err),
						)
					}
				}
			}
		}(i)
	}
	wg.Wait()
	return nil
}

func (b *MemoryBroker) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close 停止接收新任务；已入队的任务仍会被 Consume 取完
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}

// Len 当前排队的任务数
func (b *MemoryBroker) Len() int {
	return len(b.ch)
}
