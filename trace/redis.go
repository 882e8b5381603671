package trace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
)

// RedisStreamOptions configures NewRedisStreamSink.
type RedisStreamOptions struct {
	// Stream is the key events are appended to. Defaults to "agentflow:trace".
	Stream string
	// MaxLen approximately caps the stream length. 0 keeps every entry.
	MaxLen int64
	// Timeout bounds each XADD. Defaults to one second.
	Timeout time.Duration
	// Logger receives write failures.
	Logger logging.Logger
}

// RedisStreamSink appends every event to a Redis stream. Each entry carries
// the run id, event type and node as plain fields plus the full event as JSON.
// Write failures are logged and never affect the run.
type RedisStreamSink struct {
	client  redis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  logging.Logger
}

// NewRedisStreamSink creates a sink on top of an existing client.
func NewRedisStreamSink(client redis.UniversalClient, optFns ...func(o *RedisStreamOptions)) (*RedisStreamSink, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}

	opts := RedisStreamOptions{
		Stream:  "agentflow:trace",
		Timeout: time.Second,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Stream == "" {
		return nil, errors.New("redis stream name is required")
	}

	return &RedisStreamSink{
		client:  client,
		stream:  opts.Stream,
		maxLen:  opts.MaxLen,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}, nil
}

// DialRedisStream connects to addr, verifies the connection and returns a sink.
func DialRedisStream(ctx context.Context, addr, password string, db int, optFns ...func(o *RedisStreamOptions)) (*RedisStreamSink, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return NewRedisStreamSink(client, optFns...)
}

// Stream returns the stream key.
func (s *RedisStreamSink) Stream() string { return s.stream }

// Emit implements core.Tracer.
func (s *RedisStreamSink) Emit(ev core.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.Append(ctx, ev); err != nil {
		s.logger.Warn("trace.redis.error", "stream", s.stream, "event", string(ev.Type), "error", err.Error())
	}
}

// Append writes ev to the stream.
func (s *RedisStreamSink) Append(ctx context.Context, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"run_id": ev.RunID,
			"type":   string(ev.Type),
			"node":   ev.Node,
			"event":  string(payload),
		},
	}

	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}

	return nil
}

// ReadRun returns the events of runID currently held in the stream, oldest first.
func (s *RedisStreamSink) ReadRun(ctx context.Context, runID string) ([]core.Event, error) {
	msgs, err := s.client.XRange(ctx, s.stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.stream, err)
	}

	var events []core.Event

	for _, m := range msgs {
		if id, _ := m.Values["run_id"].(string); id != runID {
			continue
		}

		raw, _ := m.Values["event"].(string)

		var ev core.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", m.ID, err)
		}

		events = append(events, ev)
	}

	return events, nil
}

// Close closes the underlying client.
func (s *RedisStreamSink) Close() error {
	return s.client.Close()
}
