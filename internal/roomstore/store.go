// Package roomstore is the store client pair: a command client for
// hash/list/scan/publish operations and a subscribe client for
// channel/pattern subscriptions. The split mirrors the Redis protocol
// constraint that a connection in subscriber mode cannot issue arbitrary
// commands.
package roomstore

import "context"

// Message is a pub/sub delivery from either an exact-channel subscription
// or a pattern subscription.
type Message struct {
	Channel string // the concrete channel the message arrived on
	Pattern string // non-empty only for pattern subscriptions
	Payload string
}

// Subscription is an active channel or pattern subscription.
type Subscription interface {
	// Messages delivers incoming messages until the subscription is closed.
	Messages() <-chan *Message
	// Close releases the subscription (UNSUBSCRIBE/PUNSUBSCRIBE).
	Close() error
}

// CommandClient is the read/write half of the store client pair.
type CommandClient interface {
	// HGetAll returns the snapshot hash fields, or an empty map if absent.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HSet writes fields into a snapshot hash. Callers must not call this
	// with an empty fields map.
	HSet(ctx context.Context, key string, fields map[string]string) error
	// LPush prepends value to a history list.
	LPush(ctx context.Context, key string, value string) error
	// LTrim caps a history list to the inclusive [start, stop] range.
	LTrim(ctx context.Context, key string, start, stop int64) error
	// LRange returns history items in the inclusive [start, stop] range.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// Del deletes zero or more keys; a missing key is not an error.
	Del(ctx context.Context, keys ...string) error
	// Publish fans a payload out to channel subscribers, returning the
	// number of local-to-the-store subscribers that received it.
	Publish(ctx context.Context, channel string, payload string) (int64, error)
	// Scan enumerates all keys matching pattern, batching the cursor walk
	// in groups of batchSize.
	Scan(ctx context.Context, pattern string, batchSize int64) ([]string, error)
}

// SubscribeClient is the subscribe-only half of the store client pair.
type SubscribeClient interface {
	// Subscribe opens an exact-channel subscription.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	// PSubscribe opens a glob-pattern subscription.
	PSubscribe(ctx context.Context, pattern string) (Subscription, error)
}

// Pair is the full store client pair a Room or Manager depends on.
type Pair interface {
	CommandClient
	SubscribeClient
}
