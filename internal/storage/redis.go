package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"delaybot/internal/job"
	logx "delaybot/pkg/logx"
)

// redisStore keeps each job as a JSON string under <prefix>:job:<id> and
// indexes ids in the <prefix>:jobs sorted set scored by run_at (unix ms).
//
// Durability follows the server's persistence settings; run redis with
// appendonly yes and appendfsync always for crash safety.
type redisStore struct {
	rdb    *redis.Client
	log    logx.Logger
	prefix string
}

const redisKeyRoot = "delaybot"

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := redisKeyRoot
	if ns := strings.TrimSpace(cfg.Namespace); ns != "" {
		prefix += ":" + ns
	}
	log.Debug("redis store opened", logx.String("addr", addr), logx.String("prefix", prefix))
	return &redisStore{rdb: rdb, log: log, prefix: prefix}, nil
}

func (s *redisStore) jobKey(id string) string { return s.prefix + ":job:" + id }
func (s *redisStore) indexKey() string        { return s.prefix + ":jobs" }

func (s *redisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *redisStore) Insert(ctx context.Context, j job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	key := s.jobKey(j.ID)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateID
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, 0)
			pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(j.RunAt.UnixMilli()), Member: j.ID})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the key between WATCH and EXEC.
		return ErrDuplicateID
	}
	return err
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.jobKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	return err
}

func (s *redisStore) Get(ctx context.Context, id string) (job.Job, bool, error) {
	b, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return job.Job{}, false, nil
	}
	if err != nil {
		return job.Job{}, false, err
	}
	var j job.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return job.Job{}, false, fmt.Errorf("job %s: decode: %w", id, err)
	}
	return j, true, nil
}

func (s *redisStore) ListPending(ctx context.Context, asOf time.Time) ([]job.Job, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		// Scores are floored milliseconds; an inclusive bound keeps jobs due
		// later in the same millisecond as asOf.
		Min: strconv.FormatInt(asOf.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	out, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	// Sub-millisecond precision is kept in the record, so filter exactly.
	kept := out[:0]
	for _, j := range out {
		if j.RunAt.After(asOf) {
			kept = append(kept, j)
		}
	}
	return kept, nil
}

func (s *redisStore) ListAll(ctx context.Context) ([]job.Job, error) {
	ids, err := s.rdb.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, ids)
}

func (s *redisStore) Count(ctx context.Context) (int, error) {
	n, err := s.rdb.ZCard(ctx, s.indexKey()).Result()
	return int(n), err
}

func (s *redisStore) load(ctx context.Context, ids []string) ([]job.Job, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]job.Job, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			s.log.Warn("job index entry without record", logx.String("job_id", ids[i]))
			continue
		}
		var j job.Job
		if err := json.Unmarshal([]byte(str), &j); err != nil {
			s.log.Warn("skipping unreadable job record", logx.String("job_id", ids[i]), logx.Err(err))
			continue
		}
		out = append(out, j)
	}
	sortByRunAt(out)
	return out, nil
}
