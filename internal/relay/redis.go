package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker shares sessions between relay instances through Redis
// pub/sub. Revisions are kept in Redis counters so every instance stamps
// from the same sequence.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(ctx context.Context, cfg RedisConfig) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "coedit"
	}
	return &RedisBroker{client: client, prefix: prefix}, nil
}

func (b *RedisBroker) channel(sessionID string) string {
	return b.prefix + ":session:" + sessionID
}

func (b *RedisBroker) revisionKey(sessionID string) string {
	return b.prefix + ":revision:" + sessionID
}

// Publish sends data to every instance subscribed to the session.
func (b *RedisBroker) Publish(ctx context.Context, sessionID string, data []byte) error {
	if err := b.client.Publish(ctx, b.channel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", sessionID, err)
	}
	return nil
}

// Subscribe opens a feed on the session. It returns once Redis has
// confirmed the subscription, so no message published afterwards is
// missed.
func (b *RedisBroker) Subscribe(ctx context.Context, sessionID string) (Feed, error) {
	ps := b.client.Subscribe(ctx, b.channel(sessionID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", sessionID, err)
	}
	f := &redisFeed{ps: ps, ch: make(chan []byte, feedBuffer)}
	go f.pump()
	return f, nil
}

// NextRevision increments and returns the shared session revision.
func (b *RedisBroker) NextRevision(ctx context.Context, sessionID string) (int64, error) {
	rev, err := b.client.Incr(ctx, b.revisionKey(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("next revision for %s: %w", sessionID, err)
	}
	return rev, nil
}

// Revision returns the shared session revision, or 0 when unset.
func (b *RedisBroker) Revision(ctx context.Context, sessionID string) (int64, error) {
	rev, err := b.client.Get(ctx, b.revisionKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("revision for %s: %w", sessionID, err)
	}
	return rev, nil
}

// Close closes the Redis client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisFeed struct {
	ps   *redis.PubSub
	ch   chan []byte
	once sync.Once
}

// pump copies pub/sub messages into the feed. A subscriber a full buffer
// behind loses the feed.
func (f *redisFeed) pump() {
	defer close(f.ch)
	for msg := range f.ps.Channel() {
		select {
		case f.ch <- []byte(msg.Payload):
		default:
			_ = f.Close()
			return
		}
	}
}

func (f *redisFeed) C() <-chan []byte {
	return f.ch
}

func (f *redisFeed) Close() error {
	var err error
	f.once.Do(func() {
		err = f.ps.Close()
	})
	return err
}
