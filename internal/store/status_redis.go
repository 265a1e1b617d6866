package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Run states recorded in the status hash.
const (
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusEmpty      = "empty"
	StatusFailed     = "failed"
)

// KeyNamespace prefixes every key this package writes.
const KeyNamespace = "collage"

type Status struct {
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Discovered int                    `json:"discovered"`
	Placed     int                    `json:"placed"`
	Dropped    int                    `json:"dropped"`
	Output     string                 `json:"output,omitempty"`
	Start      *time.Time             `json:"start_time,omitempty"`
	End        *time.Time             `json:"end_time,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// StatusStore persists run status.
type StatusStore interface {
	Set(ctx context.Context, runID string, st Status) error
	Get(ctx context.Context, runID string) (Status, bool, error)
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects to redisURL. Keys expire after ttl; zero keeps them.
func NewRedisStatus(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStatus{client: c, keyNS: KeyNamespace, ttl: ttl}, nil
}

// StatusKey returns the hash key holding a run's status.
func StatusKey(runID string) string { return fmt.Sprintf("%s:%s:status", KeyNamespace, runID) }

func (s *RedisStatus) key(runID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, runID) }

func (s *RedisStatus) Set(ctx context.Context, runID string, st Status) error {
	key := s.key(runID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, statusFields(st))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, runID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(runID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return parseStatus(res), true, nil
}

// Ping checks the connection.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }

func statusFields(st Status) map[string]interface{} {
	m := map[string]interface{}{
		"status":     st.Status,
		"message":    st.Message,
		"discovered": st.Discovered,
		"placed":     st.Placed,
		"dropped":    st.Dropped,
	}
	if st.Output != "" {
		m["output"] = st.Output
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, _ := json.Marshal(st.Metadata)
		m["metadata"] = string(b)
	}
	return m
}

func parseStatus(res map[string]string) Status {
	st := Status{
		Status:  res["status"],
		Message: res["message"],
		Output:  res["output"],
	}
	// unparsable counts read as 0
	st.Discovered, _ = strconv.Atoi(res["discovered"])
	st.Placed, _ = strconv.Atoi(res["placed"])
	st.Dropped, _ = strconv.Atoi(res["dropped"])
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}
