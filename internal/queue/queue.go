package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
	"mailtriage/pkg/trace"
)

// Submission 一封待分类的邮件
type Submission struct {
	From    string
	Subject string
	Body    string
}

// JobQueue 供 HTTP 层使用
type JobQueue interface {
	Enqueue(ctx context.Context, sub Submission) (string, error)
	Job(ctx context.Context, id string) (*model.Job, error)
	Ready() bool
}

// Queue 先写 Pending 任务再投递到 broker，不等待分类结果
type Queue struct {
	store  Store
	broker Broker
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewQueue(store Store, broker Broker, logger *zap.Logger) *Queue {
	return &Queue{
		store:  store,
		broker: broker,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Enqueue 返回任务 id。投递失败时任务直接置为 Failed
func (q *Queue) Enqueue(ctx context.Context, sub Submission) (string, error) {
	log := logger.WithTrace(ctx, q.logger)

	job := &model.Job{
		ID:          q.newID(),
		From:        sub.From,
		Subject:     sub.Subject,
		EmailBody:   sub.Body,
		Status:      model.JobPending,
		SubmittedAt: q.now().UTC(),
	}
	if err := q.store.Create(ctx, job); err != nil {
		log.Error("Failed to create job", zap.String("job_id", job.ID), zap.Error(err))
		return "", &QueueError{Op: "enqueue", JobID: job.ID, Err: err}
	}

	msg := Message{
		JobID:       job.ID,
		EmailBody:   job.EmailBody,
		Subject:     job.Subject,
		From:        job.From,
		SubmittedAt: job.SubmittedAt,
		TraceID:     trace.FromContext(ctx),
	}
	if err := q.broker.Publish(ctx, msg); err != nil {
		log.Error("Failed to publish job",
			zap.String("job_id", job.ID),
			zap.String("broker", q.broker.Name()),
			zap.Error(err),
		)
		_, serr := q.store.Transition(context.WithoutCancel(ctx), job.ID, Transition{
			To:    model.JobFailed,
			At:    q.now().UTC(),
			Error: "enqueue failed",
		})
		if serr != nil {
			log.Warn("Failed to mark unpublished job as failed", zap.String("job_id", job.ID), zap.Error(serr))
		}
		metrics.IncrementJobsSettled(string(model.JobFailed), "")
		return "", &QueueError{Op: "enqueue", JobID: job.ID, Err: err}
	}

	metrics.IncrementJobsEnqueued(q.broker.Name())
	log.Info("Job enqueued",
		zap.String("job_id", job.ID),
		zap.String("broker", q.broker.Name()),
		zap.Int("body_length", len(job.EmailBody)),
	)
	return job.ID, nil
}

// Job 查询任务当前状态
func (q *Queue) Job(ctx context.Context, id string) (*model.Job, error) {
	job, err := q.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, &QueueError{Op: "get", JobID: id, Err: err}
	}
	return job, nil
}

func (q *Queue) Ready() bool {
	return q.broker.Ready()
}
