// Package redisbroker implements broker.Broker against Redis, following
// the connection-pool and health-check conventions of the teacher's
// cache service: bounded pool, short dial/read/write timeouts, and an
// explicit Ping on connect.
package redisbroker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/printsplit/splitengine/internal/broker"
)

// Broker is a Redis-backed broker.Broker.
type Broker struct {
	client *redis.Client
}

var _ broker.Broker = (*Broker)(nil)

// Connect dials Redis with the teacher's pool defaults and verifies
// connectivity with a Ping before returning.
func Connect(ctx context.Context, url string) (*Broker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisbroker: parsing %q: %w", url, err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisbroker: connecting to %q: %w", url, err)
	}
	return &Broker{client: client}, nil
}

func queueKey(q broker.QueueName) string    { return fmt.Sprintf("jobs:%s:waiting", q) }
func activeKey(q broker.QueueName) string   { return fmt.Sprintf("jobs:%s:active", q) }
func durationsKey(q broker.QueueName) string { return fmt.Sprintf("jobs:%s:durations", q) }
func progressKey(jobID string) string       { return fmt.Sprintf("job:%s:progress", jobID) }
func cancelKey(jobID string) string         { return fmt.Sprintf("job:%s:cancelled", jobID) }

func (b *Broker) Enqueue(ctx context.Context, queue broker.QueueName, jobID string, payload []byte) error {
	if err := b.client.HSet(ctx, "jobs:"+jobID+":payload", "body", payload).Err(); err != nil {
		return fmt.Errorf("redisbroker: storing payload for %s: %w", jobID, err)
	}
	if err := b.client.RPush(ctx, queueKey(queue), jobID).Err(); err != nil {
		return fmt.Errorf("redisbroker: enqueueing %s: %w", jobID, err)
	}
	return nil
}

func (b *Broker) Dequeue(ctx context.Context, queue broker.QueueName) (string, []byte, bool, error) {
	jobID, err := b.client.LPop(ctx, queueKey(queue)).Result()
	if err == redis.Nil {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("redisbroker: dequeueing from %s: %w", queue, err)
	}

	payload, err := b.client.HGet(ctx, "jobs:"+jobID+":payload", "body").Bytes()
	if err != nil && err != redis.Nil {
		return "", nil, false, fmt.Errorf("redisbroker: reading payload for %s: %w", jobID, err)
	}
	if err := b.client.SAdd(ctx, activeKey(queue), jobID).Err(); err != nil {
		return "", nil, false, fmt.Errorf("redisbroker: marking %s active: %w", jobID, err)
	}
	return jobID, payload, true, nil
}

func (b *Broker) Remove(ctx context.Context, queue broker.QueueName, jobID string) error {
	if err := b.client.LRem(ctx, queueKey(queue), 0, jobID).Err(); err != nil {
		return fmt.Errorf("redisbroker: removing %s from %s: %w", jobID, queue, err)
	}
	b.client.SRem(ctx, activeKey(queue), jobID)
	return nil
}

func (b *Broker) WaitingJobIDs(ctx context.Context, queue broker.QueueName) ([]string, error) {
	ids, err := b.client.LRange(ctx, queueKey(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbroker: listing waiting jobs for %s: %w", queue, err)
	}
	return ids, nil
}

func (b *Broker) SetProgress(ctx context.Context, jobID string, p broker.Progress) error {
	err := b.client.HSet(ctx, progressKey(jobID), map[string]interface{}{
		"percent": p.Percent,
		"message": p.Message,
	}).Err()
	if err != nil {
		return fmt.Errorf("redisbroker: setting progress for %s: %w", jobID, err)
	}
	return nil
}

func (b *Broker) GetProgress(ctx context.Context, jobID string) (broker.Progress, error) {
	res, err := b.client.HGetAll(ctx, progressKey(jobID)).Result()
	if err != nil {
		return broker.Progress{}, fmt.Errorf("redisbroker: reading progress for %s: %w", jobID, err)
	}
	percent, _ := strconv.Atoi(res["percent"])
	return broker.Progress{Percent: percent, Message: res["message"]}, nil
}

func (b *Broker) SetCancelled(ctx context.Context, jobID string) error {
	if err := b.client.Set(ctx, cancelKey(jobID), "1", 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("redisbroker: setting cancellation flag for %s: %w", jobID, err)
	}
	return nil
}

func (b *Broker) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	_, err := b.client.Get(ctx, cancelKey(jobID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisbroker: reading cancellation flag for %s: %w", jobID, err)
	}
	return true, nil
}

const maxTrackedDurations = 20

func (b *Broker) RecordCompletion(ctx context.Context, queue broker.QueueName, durationSeconds float64) error {
	key := durationsKey(queue)
	if err := b.client.LPush(ctx, key, durationSeconds).Err(); err != nil {
		return fmt.Errorf("redisbroker: recording completion for %s: %w", queue, err)
	}
	if err := b.client.LTrim(ctx, key, 0, maxTrackedDurations-1).Err(); err != nil {
		return fmt.Errorf("redisbroker: trimming duration history for %s: %w", queue, err)
	}
	return nil
}

func (b *Broker) RecentDurations(ctx context.Context, queue broker.QueueName, limit int) ([]float64, error) {
	if limit <= 0 || limit > maxTrackedDurations {
		limit = maxTrackedDurations
	}
	raw, err := b.client.LRange(ctx, durationsKey(queue), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbroker: reading duration history for %s: %w", queue, err)
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (b *Broker) ActiveCount(ctx context.Context, queue broker.QueueName) (int, error) {
	n, err := b.client.SCard(ctx, activeKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("redisbroker: counting active jobs for %s: %w", queue, err)
	}
	return int(n), nil
}

func (b *Broker) SignalRestart(ctx context.Context) error {
	if err := b.client.Set(ctx, broker.RestartKey, "1", broker.RestartKeyTTL).Err(); err != nil {
		return fmt.Errorf("redisbroker: signaling restart: %w", err)
	}
	return nil
}

func (b *Broker) RestartRequested(ctx context.Context) (bool, error) {
	_, err := b.client.Get(ctx, broker.RestartKey).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redisbroker: checking restart signal: %w", err)
	}
	return true, nil
}
