package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/grantmesh/core"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "grantmesh.events"

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisSink publishes events as JSON on a Redis channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects a sink. The connection is lazy; use Ping to verify it.
func NewRedisSink(optFns ...func(o *RedisOptions)) *RedisSink {
	opts := RedisOptions{Addr: "localhost:6379", Channel: DefaultChannel}
	for _, fn := range optFns {
		fn(&opts)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisSink{client: rdb, channel: opts.Channel}
}

// Ping checks connectivity.
func (s *RedisSink) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", core.ErrTransport, err)
	}
	return nil
}

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if err := s.client.Publish(ctx, s.channel, b).Err(); err != nil {
		return fmt.Errorf("%w: redis publish: %v", core.ErrTransport, err)
	}
	return nil
}

// Subscribe streams decoded events from the channel until ctx is done.
// Undecodable messages are skipped.
func (s *RedisSink) Subscribe(ctx context.Context) (<-chan Event, error) {
	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: redis subscribe: %v", core.ErrTransport, err)
	}
	out := make(chan Event)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the connection pool.
func (s *RedisSink) Close() error { return s.client.Close() }
