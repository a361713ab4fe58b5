package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stake-plus/groupguard/src/guard"
)

// StreamEvents receives one entry per guard decision.
const StreamEvents = "groupguard.events"

// NewRedis parses url and verifies the server answers.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rdb, nil
}

// StreamSink publishes audit events to a capped Redis stream.
type StreamSink struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(rdb *redis.Client, maxLen int64) *StreamSink {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &StreamSink{rdb: rdb, stream: StreamEvents, maxLen: maxLen}
}

func (s *StreamSink) Publish(ctx context.Context, ev guard.AuditEvent) error {
	return PublishMessage(ctx, s.rdb, s.stream, s.maxLen, EventPayload(ev))
}

// EventPayload flattens an audit event into stream fields.
func EventPayload(ev guard.AuditEvent) map[string]interface{} {
	payload := map[string]interface{}{
		"outcome":  string(ev.Outcome),
		"group_id": strconv.FormatInt(ev.GroupID, 10),
		"user_id":  strconv.FormatInt(ev.UserID, 10),
		"time":     ev.At.Unix(),
	}
	if ev.RuleID != 0 {
		payload["rule_id"] = strconv.FormatInt(ev.RuleID, 10)
	}
	return payload
}

func PublishMessage(ctx context.Context, rdb *redis.Client, stream string, maxLen int64, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: payload,
	}).Result()
	return err
}
