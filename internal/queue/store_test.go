package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/internal/model"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func stores(t *testing.T) map[string]Store {
	rs, _ := newTestRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  rs,
	}
}

func pendingJob(id string) *model.Job {
	return &model.Job{
		ID:          id,
		EmailBody:   "hello",
		Status:      model.JobPending,
		SubmittedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestStoreLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, pendingJob("j1")))

			job, err := s.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, model.JobPending, job.Status)
			assert.Nil(t, job.Result)

			job, err = s.Transition(ctx, "j1", Transition{To: model.JobRunning, At: time.Now()})
			require.NoError(t, err)
			assert.Equal(t, model.JobRunning, job.Status)
			assert.NotNil(t, job.StartedAt)
			assert.Nil(t, job.Result)

			job, err = s.Transition(ctx, "j1", Transition{
				To:     model.JobCompleted,
				At:     time.Now(),
				Result: &model.Result{JobID: "j1", Label: model.LabelInterested, RawModelText: "interested"},
			})
			require.NoError(t, err)
			assert.Equal(t, model.JobCompleted, job.Status)
			require.NotNil(t, job.Result)
			assert.Equal(t, model.LabelInterested, job.Result.Label)

			got, err := s.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, model.JobCompleted, got.Status)
			require.NotNil(t, got.Result)
			assert.Equal(t, "interested", got.Result.RawModelText)
			assert.NotNil(t, got.FinishedAt)
		})
	}
}

func TestStoreRejectsResettle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, pendingJob("j1")))
			_, err := s.Transition(ctx, "j1", Transition{To: model.JobRunning})
			require.NoError(t, err)
			_, err = s.Transition(ctx, "j1", Transition{To: model.JobFailed, Error: "boom"})
			require.NoError(t, err)

			_, err = s.Transition(ctx, "j1", Transition{
				To:     model.JobCompleted,
				Result: &model.Result{JobID: "j1", Label: model.LabelInterested},
			})
			assert.ErrorIs(t, err, ErrAlreadySettled)

			_, err = s.Transition(ctx, "j1", Transition{To: model.JobFailed})
			assert.ErrorIs(t, err, ErrAlreadySettled)

			job, err := s.Get(ctx, "j1")
			require.NoError(t, err)
			assert.Equal(t, model.JobFailed, job.Status)
			assert.Equal(t, "boom", job.Error)
			assert.Nil(t, job.Result)
		})
	}
}

func TestStoreInvalidTransitions(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, pendingJob("j1")))

			// Pending 不能直接 Completed
			_, err := s.Transition(ctx, "j1", Transition{
				To:     model.JobCompleted,
				Result: &model.Result{JobID: "j1", Label: model.LabelInterested},
			})
			assert.ErrorIs(t, err, ErrInvalidTransition)

			_, err = s.Transition(ctx, "j1", Transition{To: model.JobRunning})
			require.NoError(t, err)
			_, err = s.Transition(ctx, "j1", Transition{To: model.JobRunning})
			assert.ErrorIs(t, err, ErrInvalidTransition)

			// Completed 必须带结果
			_, err = s.Transition(ctx, "j1", Transition{To: model.JobCompleted})
			assert.ErrorIs(t, err, ErrInvalidTransition)

			_, err = s.Transition(ctx, "missing", Transition{To: model.JobRunning})
			assert.ErrorIs(t, err, ErrJobNotFound)
			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	}
}

func TestStoreConcurrentStartOnlyOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Create(ctx, pendingJob("j1")))

			var (
				wg  sync.WaitGroup
				mu  sync.Mutex
				won int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.Transition(ctx, "j1", Transition{To: model.JobRunning}); err == nil {
						mu.Lock()
						won++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, won)
		})
	}
}

func TestRedisStoreTTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pendingJob("j1")))

	assert.Equal(t, time.Hour, mr.TTL(jobKey("j1")))

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(ctx, "j1")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRedisStoreRejectsStaleWrite(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, pendingJob("j1")))

	// 模拟另一个进程在读写之间改了状态
	mr.HSet(jobKey("j1"), "status", string(model.JobFailed))

	_, err := s.Transition(ctx, "j1", Transition{To: model.JobRunning})
	assert.ErrorIs(t, err, ErrAlreadySettled)
}
