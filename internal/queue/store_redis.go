package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailtriage/internal/model"
)

const (
	redisKeyPrefix  = "mailtriage:job:"
	defaultRedisTTL = 24 * time.Hour
)

// casScript 仅当当前 status 属于 ARGV[3..] 时写入新的 status 和 data。
// 返回 {1, 旧状态} 表示成功，{0, 当前状态} 表示拒绝，{0, ""} 表示不存在。
var casScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'status')
if not cur then
  return {0, ''}
end
for i = 3, #ARGV do
  if cur == ARGV[i] then
    redis.call('HSET', KEYS[1], 'status', ARGV[1], 'data', ARGV[2])
    return {1, cur}
  end
end
return {0, cur}
`)

// RedisStore 让 api 与 worker 进程共享任务状态；数据带 TTL，不做长期保存
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	key := jobKey(job.ID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, "status", string(job.Status), "data", data)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.HGet(ctx, jobKey(id), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) Transition(ctx context.Context, id string, t Transition) (*model.Job, error) {
	if t.To == model.JobCompleted && t.Result == nil {
		return nil, ErrInvalidTransition
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(job.Status, t.To); err != nil {
		return nil, err
	}
	expected := job.Status
	t.apply(job)

	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	// 只接受读取时的状态，期间被其他 worker 改过则拒绝
	res, err := casScript.Run(ctx, s.rdb, []string{jobKey(id)}, string(t.To), data, string(expected)).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected cas reply: %v", res)
	}
	if ok, _ := res[0].(int64); ok == 1 {
		return job, nil
	}
	cur, _ := res[1].(string)
	if cur == "" {
		return nil, ErrJobNotFound
	}
	if err := checkTransition(model.JobStatus(cur), t.To); err != nil {
		return nil, err
	}
	return nil, ErrInvalidTransition
}
