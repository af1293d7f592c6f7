package queue

import (
	"context"
	"sync"
	"time"

	"mailtriage/internal/model"
)

// Store 保存任务状态。Transition 必须是原子的 compare-and-set，
// 保证同一个任务只会被一个 worker 置为 Running，且只会有一个终态。
type Store interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Transition(ctx context.Context, id string, t Transition) (*model.Job, error)
}

// Transition 一次状态变更
type Transition struct {
	To     model.JobStatus
	At     time.Time
	Result *model.Result // 仅 Completed
	Error  string        // 仅 Failed
}

// allowedFrom 返回可以迁移到 to 的状态
func allowedFrom(to model.JobStatus) []model.JobStatus {
	switch to {
	case model.JobRunning:
		return []model.JobStatus{model.JobPending}
	case model.JobCompleted:
		return []model.JobStatus{model.JobRunning}
	case model.JobFailed:
		return []model.JobStatus{model.JobPending, model.JobRunning}
	default:
		return nil
	}
}

func checkTransition(cur, to model.JobStatus) error {
	if cur.Terminal() {
		return ErrAlreadySettled
	}
	for _, s := range allowedFrom(to) {
		if s == cur {
			return nil
		}
	}
	return ErrInvalidTransition
}

func (t Transition) apply(job *model.Job) {
	job.Status = t.To
	at := t.At
	switch t.To {
	case model.JobRunning:
		job.StartedAt = &at
	case model.JobCompleted:
		job.FinishedAt = &at
		r := *t.Result
		job.Result = &r
	case model.JobFailed:
		job.FinishedAt = &at
		job.Error = t.Error
	}
}

func cloneJob(j *model.Job) *model.Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

// MemoryStore 进程内任务存储，随进程结束消失
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, t Transition) (*model.Job, error) {
	if t.To == model.JobCompleted && t.Result == nil {
		return nil, ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if err := checkTransition(job.Status, t.To); err != nil {
		return nil, err
	}
	t.apply(job)
	return cloneJob(job), nil
}
