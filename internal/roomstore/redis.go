package roomstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisPair is the Pair implementation backed by two Redis connections:
// cmd issues HSET/HGETALL/LPUSH/LTRIM/LRANGE/DEL/PUBLISH/SCAN, sub issues
// only SUBSCRIBE/PSUBSCRIBE. Splitting the two mirrors the Redis protocol
// rule that a connection in subscriber mode cannot run arbitrary commands.
type RedisPair struct {
	cmd    *redis.Client
	sub    *redis.Client
	logger *slog.Logger
}

// NewRedisPair builds both connections from the same connection URL.
// url is in the form redis://host:port or redis://:password@host:port.
func NewRedisPair(url string, logger *slog.Logger) (*RedisPair, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPair{
		cmd:    redis.NewClient(opts),
		sub:    redis.NewClient(opts),
		logger: logger.With("component", "roomstore"),
	}, nil
}

// Start verifies both connections are reachable.
func (p *RedisPair) Start(ctx context.Context) error {
	if err := p.cmd.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping command client: %w", err)
	}
	if err := p.sub.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping subscribe client: %w", err)
	}
	p.logger.Info("connected to redis")
	return nil
}

// Stop closes both connections. Errors are logged, not returned, matching
// the best-effort teardown contract of the Room Manager's Stop.
func (p *RedisPair) Stop() {
	if err := p.cmd.Close(); err != nil {
		p.logger.Error("closing command client", "error", err)
	}
	if err := p.sub.Close(); err != nil {
		p.logger.Error("closing subscribe client", "error", err)
	}
}

func (p *RedisPair) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return p.cmd.HGetAll(ctx, key).Result()
}

func (p *RedisPair) HSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	values := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		values = append(values, k, v)
	}
	return p.cmd.HSet(ctx, key, values...).Err()
}

func (p *RedisPair) LPush(ctx context.Context, key string, value string) error {
	return p.cmd.LPush(ctx, key, value).Err()
}

func (p *RedisPair) LTrim(ctx context.Context, key string, start, stop int64) error {
	return p.cmd.LTrim(ctx, key, start, stop).Err()
}

func (p *RedisPair) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return p.cmd.LRange(ctx, key, start, stop).Result()
}

func (p *RedisPair) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return p.cmd.Del(ctx, keys...).Err()
}

func (p *RedisPair) Publish(ctx context.Context, channel string, payload string) (int64, error) {
	return p.cmd.Publish(ctx, channel, payload).Result()
}

// Scan walks the keyspace with a cursor, accumulating matches in batches
// of batchSize, per spec.md's "batch size 100, accumulate results".
func (p *RedisPair) Scan(ctx context.Context, pattern string, batchSize int64) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := p.cmd.Scan(ctx, cursor, pattern, batchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (p *RedisPair) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	rps := p.sub.Subscribe(ctx, channel)
	if _, err := rps.Receive(ctx); err != nil {
		rps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return p.wrap(rps, channel, "")
}

func (p *RedisPair) PSubscribe(ctx context.Context, pattern string) (Subscription, error) {
	rps := p.sub.PSubscribe(ctx, pattern)
	if _, err := rps.Receive(ctx); err != nil {
		rps.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", pattern, err)
	}
	return p.wrap(rps, "", pattern)
}

func (p *RedisPair) wrap(rps *redis.PubSub, channel, pattern string) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		pubsub:   rps,
		cancel:   cancel,
		messages: make(chan *Message, 64),
	}
	go sub.pump(ctx, channel, pattern, p.logger)
	return sub, nil
}

type redisSubscription struct {
	pubsub   *redis.PubSub
	cancel   context.CancelFunc
	messages chan *Message
	once     sync.Once
}

func (s *redisSubscription) Messages() <-chan *Message {
	return s.messages
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisSubscription) pump(ctx context.Context, channel, pattern string, logger *slog.Logger) {
	defer close(s.messages)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case rm, ok := <-ch:
			if !ok {
				return
			}
			msg := &Message{Channel: rm.Channel, Pattern: pattern, Payload: rm.Payload}
			if channel != "" {
				msg.Channel = channel
			}
			select {
			case s.messages <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}
