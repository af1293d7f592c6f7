package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/trace"
	"mailtriage/pkg/util"
)

const workerHandlerName = "classify"

// Categorizer 由 classifier.Classifier 实现
type Categorizer interface {
	Categorize(ctx context.Context, emailContent string) (classifier.Decision, error)
}

// Guard 可选的重复投递过滤，例如 util.Deduper
type Guard interface {
	AcquireOnce(ctx context.Context, handler string, id string) bool
}

// Worker 从 broker 取任务，执行分类并写入终态
type Worker struct {
	broker      Broker
	store       Store
	categorizer Categorizer
	guard       Guard
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

type WorkerOption func(*Worker)

// WithConcurrency 并发槽数量，默认 1
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithGuard(g Guard) WorkerOption {
	return func(w *Worker) { w.guard = g }
}

func NewWorker(broker Broker, store Store, categorizer Categorizer, logger *zap.Logger, opts ...WorkerOption) *Worker {
	w := &Worker{
		broker:      broker,
		store:       store,
		categorizer: categorizer,
		concurrency: 1,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 阻塞直到 ctx 取消或 broker 关闭
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Worker started",
		zap.String("broker", w.broker.Name()),
		zap.Int("concurrency", w.concurrency),
	)
	err := w.broker.Consume(ctx, w.concurrency, w.Process)
	w.logger.Info("Worker stopped")
	return err
}

// Process 处理一条消息。分类失败只会把任务置为 Failed，不返回 error；
// 返回 error 仅表示任务存储不可用。
func (w *Worker) Process(ctx context.Context, msg Message) error {
	// 沿用入队请求的 trace_id
	if msg.TraceID != "" {
		ctx = trace.WithContext(ctx, msg.TraceID)
	} else if trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	}
	log := logger.WithTrace(ctx, w.logger).With(zap.String("job_id", msg.JobID))

	if w.guard != nil && !w.guard.AcquireOnce(ctx, workerHandlerName, msg.JobID) {
		return nil
	}

	if _, err := w.store.Transition(ctx, msg.JobID, Transition{To: model.JobRunning, At: w.now().UTC()}); err != nil {
		if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrInvalidTransition) {
			log.Info("Skipped job not in pending state", zap.Error(err))
			return nil
		}
		if errors.Is(err, ErrJobNotFound) {
			log.Warn("Skipped unknown job")
			return nil
		}
		return &QueueError{Op: "start", JobID: msg.JobID, Err: err}
	}

	start := time.Now()
	decision, err := w.categorizer.Categorize(ctx, msg.EmailBody)
	if err != nil {
		_, errType := util.ClassifyError(err)
		log.Error("Classification failed",
			zap.String("error_type", errType),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return w.settle(ctx, msg.JobID, Transition{
			To:    model.JobFailed,
			At:    w.now().UTC(),
			Error: "classification failed: " + errType,
		}, "")
	}

	log.Info("Job classified",
		zap.String("label", string(decision.Label)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return w.settle(ctx, msg.JobID, Transition{
		To: model.JobCompleted,
		At: w.now().UTC(),
		Result: &model.Result{
			JobID:        msg.JobID,
			Label:        decision.Label,
			RawModelText: decision.RawModelText,
		},
	}, decision.Label)
}

func (w *Worker) settle(ctx context.Context, id string, t Transition, label model.Label) error {
	if _, err := w.store.Transition(ctx, id, t); err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			logger.WithTrace(ctx, w.logger).Warn("Job already settled", zap.String("job_id", id))
			return nil
		}
		return &QueueError{Op: "settle", JobID: id, Err: err}
	}
	metrics.IncrementJobsSettled(string(t.To), string(label))
	return nil
}
