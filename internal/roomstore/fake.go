package roomstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory Pair used by unit tests in place of a live Redis.
// It mirrors the teacher's MemoryPubSub/RedisPubSub split: same interface,
// no network, deterministic enough to assert against.
type Fake struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	lists   map[string][]string
	subs    map[string][]*fakeSubscription // exact channel -> subs
	psubs   []*fakeSubscription             // pattern subs
	closed  bool
	calls   callCounts
}

type callCounts struct {
	HGetAll, HSet, LPush, LTrim, LRange, Del, Publish, Scan, Subscribe, PSubscribe int
}

// NewFake creates an empty Fake store.
func NewFake() *Fake {
	return &Fake{
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
		subs:   make(map[string][]*fakeSubscription),
	}
}

// Calls exposes invocation counters so tests can assert single-flight
// behavior (e.g. exactly one HGetAll per concurrent-join scenario).
func (f *Fake) Calls() callCounts {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *Fake) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.HGetAll++
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) HSet(ctx context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.HSet++
	if len(fields) == 0 {
		return nil
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (f *Fake) LPush(ctx context.Context, key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.LPush++
	f.lists[key] = append([]string{value}, f.lists[key]...)
	return nil
}

func (f *Fake) LTrim(ctx context.Context, key string, start, stop int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.LTrim++
	l := f.lists[key]
	if stop < 0 || int(stop) >= len(l)-1 {
		return nil
	}
	f.lists[key] = append([]string{}, l[start:stop+1]...)
	return nil
}

func (f *Fake) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.LRange++
	l := f.lists[key]
	if len(l) == 0 {
		return nil, nil
	}
	end := stop
	if end < 0 || int(end) >= len(l) {
		end = int64(len(l) - 1)
	}
	if start > end {
		return nil, nil
	}
	out := make([]string, end-start+1)
	copy(out, l[start:end+1])
	return out, nil
}

func (f *Fake) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Del++
	for _, k := range keys {
		delete(f.hashes, k)
		delete(f.lists, k)
	}
	return nil
}

func (f *Fake) Publish(ctx context.Context, channel string, payload string) (int64, error) {
	f.mu.Lock()
	var targets []*fakeSubscription
	targets = append(targets, f.subs[channel]...)
	for _, ps := range f.psubs {
		if matchGlob(ps.pattern, channel) {
			targets = append(targets, ps)
		}
	}
	f.calls.Publish++
	f.mu.Unlock()

	for _, sub := range targets {
		msg := &Message{Channel: channel, Payload: payload}
		if sub.pattern != "" {
			msg.Pattern = sub.pattern
		}
		select {
		case sub.messages <- msg:
		default:
			// Slow or abandoned subscriber; drop rather than block the
			// publisher, matching the store's fan-out-and-forget delivery.
		}
	}
	return int64(len(targets)), nil
}

func (f *Fake) Scan(ctx context.Context, pattern string, batchSize int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Scan++
	seen := make(map[string]bool)
	for k := range f.hashes {
		if matchGlob(pattern, k) {
			seen[k] = true
		}
	}
	for k := range f.lists {
		if matchGlob(pattern, k) {
			seen[k] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Subscribe++
	sub := newFakeSubscription(f, channel, "")
	f.subs[channel] = append(f.subs[channel], sub)
	return sub, nil
}

func (f *Fake) PSubscribe(ctx context.Context, pattern string) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.PSubscribe++
	sub := newFakeSubscription(f, "", pattern)
	f.psubs = append(f.psubs, sub)
	return sub, nil
}

func (f *Fake) removeSub(sub *fakeSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub.channel != "" {
		list := f.subs[sub.channel]
		for i, s := range list {
			if s == sub {
				f.subs[sub.channel] = append(list[:i], list[i+1:]...)
				break
			}
		}
		return
	}
	for i, s := range f.psubs {
		if s == sub {
			f.psubs = append(f.psubs[:i], f.psubs[i+1:]...)
			break
		}
	}
}

type fakeSubscription struct {
	store    *Fake
	channel  string
	pattern  string
	messages chan *Message
	closeMu  sync.Mutex
	closed   bool
}

func newFakeSubscription(store *Fake, channel, pattern string) *fakeSubscription {
	return &fakeSubscription{
		store:    store,
		channel:  channel,
		pattern:  pattern,
		messages: make(chan *Message, 64),
	}
}

func (s *fakeSubscription) Messages() <-chan *Message {
	return s.messages
}

// Close detaches the subscription from the store so future publishes no
// longer target it. The channel itself is left open: callers drive their
// receive loop from their own lifecycle signal, not channel closure, so
// there is no writer/closer race to guard against.
func (s *fakeSubscription) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.store.removeSub(s)
	return nil
}

// matchGlob supports the single "*" wildcard semantics roomkey.Build
// produces: at most one "*", matching any run of characters.
func matchGlob(pattern, value string) bool {
	idx := strings.Index(pattern, "*")
	if idx < 0 {
		return pattern == value
	}
	prefix, suffix := pattern[:idx], pattern[idx+1:]
	return strings.HasPrefix(value, prefix) && strings.HasSuffix(value, suffix) && len(value) >= len(prefix)+len(suffix)
}
