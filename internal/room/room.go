// Package room implements the per-room state machine: a lazily
// initialized snapshot cache and history buffer, a local callback
// registry, and merge+dispatch of incoming pub/sub messages. This is the
// concurrency-sensitive core the rest of the system builds on.
package room

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roomsync/roomsync/internal/ratelimit"
	"github.com/roomsync/roomsync/internal/roomkey"
	"github.com/roomsync/roomsync/internal/roomstore"
)

// lifecycle mirrors spec.md §3's "uninitialized -> initializing ->
// initialized -> destroyed" state machine.
type lifecycle int

const (
	uninitialized lifecycle = iota
	initializing
	initialized
	destroyed
)

// Callback is the contract exposed to hosting code: newData is nil for
// the synthetic dispatch that follows Join, and the most recent publish
// payload otherwise.
type Callback func(fullData, newData map[string]any, extraData any)

type registration struct {
	onData    Callback
	extraData any
}

// Room owns the local cache and subscription for a single room name and
// fans out updates to locally registered callbacks. A Room is safe for
// concurrent use.
type Room struct {
	name    string
	pattern bool
	keys    roomkey.Triple
	store   roomstore.Pair
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	mu          sync.Mutex
	opts        Options
	state       lifecycle
	fullData    map[string]any
	historyData []map[string]any
	callbacks   map[any]registration
	idleSince   *time.Time
	cleaned     bool

	initWait chan struct{}
	initErr  error

	sub    roomstore.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Room. It performs no I/O; initialization is lazy and
// happens on first Join/GetFullData/GetHistoryData (Publish writes through
// the stateless path and does not initialize the Room). limiter may be
// nil, in which case Publish enforces no rate limit for this Room.
func New(name, prefix string, store roomstore.Pair, opts Options, limiter *ratelimit.Limiter, logger *slog.Logger) *Room {
	if logger == nil {
		logger = slog.Default()
	}
	return &Room{
		name:      name,
		pattern:   roomkey.IsPattern(name),
		keys:      roomkey.Build(prefix, name),
		store:     store,
		limiter:   limiter,
		opts:      opts,
		logger:    logger.With("room", name),
		callbacks: make(map[any]registration),
		fullData:  make(map[string]any),
	}
}

// Name returns the room name this instance was constructed with.
func (r *Room) Name() string { return r.name }

// IsPattern reports whether this room aggregates across matching literal
// rooms rather than owning a single snapshot.
func (r *Room) IsPattern() bool { return r.pattern }

// IsProducer reports whether this room may publish and is therefore
// exempt from idle reaping (invariant 2).
func (r *Room) IsProducer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opts.EnablePublish
}

// SetEnablePublish upgrades a room from consumer to producer. This is the
// one option spec.md allows to change after first use: "the producer
// acquired after a consumer" case in Manager.CreateRoom.
func (r *Room) SetEnablePublish(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v {
		r.opts.EnablePublish = v
	}
}

// IsInitialized reports whether the room has completed its lazy fetch +
// subscribe.
func (r *Room) IsInitialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == initialized
}

// HasCallbacks reports whether any userId is currently registered.
func (r *Room) HasCallbacks() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks) > 0
}

// IdleSince returns the time the room became idle, or nil if it is not
// idle. Non-nil iff the room is initialized and has zero callbacks
// (invariant 4).
func (r *Room) IdleSince() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idleSince
}

// Publish delegates to the Room Manager's stateless publish path after
// enforcing the producer role, waiting on the shared per-room rate
// limiter (if one was supplied at construction), and, on this producer's
// first call, the clean-on-startup option.
func (r *Room) Publish(ctx context.Context, data map[string]any, override *OptionsInput) error {
	r.mu.Lock()
	if r.state == destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if !r.opts.EnablePublish {
		r.mu.Unlock()
		return ErrNotAProducer
	}
	if r.pattern {
		r.mu.Unlock()
		return ErrPatternRoom
	}

	effective := r.opts
	if override != nil {
		effective = mergeOptions(r.opts, *override)
	}

	needClean := effective.CleanOnStartUp && !r.cleaned
	if needClean {
		r.cleaned = true
	}
	keys := r.keys
	store := r.store
	limiter := r.limiter
	name := r.name
	r.mu.Unlock()

	if limiter != nil {
		if err := limiter.Wait(ctx, name); err != nil {
			return fmt.Errorf("rate limit wait for %s: %w", name, err)
		}
	}

	if needClean {
		if err := store.Del(ctx, keys.Hash, keys.List); err != nil {
			r.logger.Error("clean on startup failed", "error", err)
		}
	}

	return PublishData(ctx, store, keys, data, effective)
}

// Join registers a callback for userId, ensures the room is initialized,
// and synchronously delivers one initial dispatch carrying the current
// snapshot with a nil newData marker.
//
// If initialization fails, the error propagates to the caller and the
// callback remains registered — spec.md §4.3 leaves it to the next
// caller (of any operation) to retry, since a fresh ensureInitialized
// attempt always follows a failed one.
func (r *Room) Join(ctx context.Context, userID any, onData Callback, extraData any) error {
	r.mu.Lock()
	if r.state == destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	r.idleSince = nil
	r.callbacks[userID] = registration{onData: onData, extraData: extraData}
	r.mu.Unlock()

	if err := r.ensureInitialized(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	snapshot := deepCopyMap(r.fullData)
	r.mu.Unlock()

	dispatch(r.logger, registration{onData: onData, extraData: extraData}, snapshot, nil)
	return nil
}

// Leave removes userId's registration. If the registry becomes empty and
// the room is initialized, idleSince is set so the reaper can pick it up.
func (r *Room) Leave(userID any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.callbacks, userID)
	if len(r.callbacks) == 0 && r.state == initialized {
		now := time.Now()
		r.idleSince = &now
	}
}

// GetFullData ensures the room is initialized and returns a defensive
// deep copy of the current snapshot.
func (r *Room) GetFullData(ctx context.Context) (map[string]any, error) {
	if err := r.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return deepCopyMap(r.fullData), nil
}

// GetHistoryData ensures the room is initialized and returns a defensive
// deep copy of the current history buffer, newest first.
func (r *Room) GetHistoryData(ctx context.Context) ([]map[string]any, error) {
	if err := r.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return deepCopyHistory(r.historyData), nil
}

// Destroy releases the subscription (if any), clears callbacks, and
// resets the room to destroyed. Idempotent.
func (r *Room) Destroy() {
	r.mu.Lock()
	if r.state == destroyed {
		r.mu.Unlock()
		return
	}
	sub := r.sub
	stop := r.stopCh
	r.sub = nil
	r.stopCh = nil
	r.callbacks = make(map[any]registration)
	r.initWait = nil
	r.state = destroyed
	r.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			r.logger.Error("unsubscribe failed", "error", err)
		}
	}
	if stop != nil {
		close(stop)
	}
	r.wg.Wait()
}

// ensureInitialized is the single-flight lazy-init guard: concurrent
// callers on a fresh room share one fetch+subscribe pair (spec.md §4.3,
// testable property S7). On failure the guard clears and state resets to
// uninitialized so the next caller retries from scratch (S6).
func (r *Room) ensureInitialized(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case initialized:
		r.mu.Unlock()
		return nil
	case destroyed:
		r.mu.Unlock()
		return ErrDestroyed
	}
	if r.initWait != nil {
		wait := r.initWait
		r.mu.Unlock()
		<-wait
		r.mu.Lock()
		err := r.initErr
		r.mu.Unlock()
		return err
	}

	wait := make(chan struct{})
	r.initWait = wait
	r.state = initializing
	r.mu.Unlock()

	err := r.doInitialize(ctx)

	r.mu.Lock()
	r.initErr = err
	if err != nil {
		r.state = uninitialized
	} else {
		r.state = initialized
		if len(r.callbacks) == 0 {
			now := time.Now()
			r.idleSince = &now
		}
	}
	r.initWait = nil
	r.mu.Unlock()
	close(wait)
	return err
}

func (r *Room) doInitialize(ctx context.Context) error {
	fullData, history, err := r.fetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshot for %s: %w", r.name, err)
	}

	sub, err := r.subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.name, err)
	}

	stop := make(chan struct{})
	r.mu.Lock()
	r.fullData = fullData
	r.historyData = history
	r.sub = sub
	r.stopCh = stop
	r.mu.Unlock()

	r.wg.Add(1)
	go r.receiveLoop(sub, stop)
	return nil
}

func (r *Room) subscribe(ctx context.Context) (roomstore.Subscription, error) {
	if r.pattern {
		return r.store.PSubscribe(ctx, r.keys.Channel)
	}
	return r.store.Subscribe(ctx, r.keys.Channel)
}

func (r *Room) receiveLoop(sub roomstore.Subscription, stop chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			r.handleMessage(msg)
		}
	}
}

// handleMessage is the merge+dispatch operation from spec.md §4.3: merge
// the payload into the cached snapshot/history, then invoke every
// registered callback exactly once, isolating callback panics so one
// misbehaving callback never blocks delivery to the rest.
func (r *Room) handleMessage(msg *roomstore.Message) {
	payload, err := decodeJSONObject(msg.Payload)
	if err != nil {
		r.logger.Error("malformed pub/sub message", "error", err)
		return
	}

	r.mu.Lock()
	// Gate on the subscription, not on r.state == initialized: the
	// receive loop starts reading sub.Messages() as soon as SUBSCRIBE
	// succeeds, which is before ensureInitialized flips state to
	// initialized. A message landing in that window is still a message
	// this room's own subscription captured and must merge/dispatch, not
	// an unrelated one to drop. r.sub is nil exactly when there is no
	// live subscription (not yet subscribed, or destroyed).
	if r.sub == nil {
		r.mu.Unlock()
		return
	}
	if r.opts.EnableFullData {
		for k, v := range payload {
			if v != nil {
				r.fullData[k] = v
			}
		}
	}
	if r.opts.HistoryLength > 0 {
		r.historyData = append([]map[string]any{payload}, r.historyData...)
		if len(r.historyData) > r.opts.HistoryLength {
			r.historyData = r.historyData[:r.opts.HistoryLength]
		}
	}
	snapshot := deepCopyMap(r.fullData)
	regs := make([]registration, 0, len(r.callbacks))
	for _, reg := range r.callbacks {
		regs = append(regs, reg)
	}
	r.mu.Unlock()

	for _, reg := range regs {
		dispatch(r.logger, reg, snapshot, payload)
	}
}

// dispatch invokes a single callback, recovering and logging a panic
// rather than letting it propagate to the caller of handleMessage/Join —
// spec.md's CallbackException error kind.
func dispatch(logger *slog.Logger, reg registration, fullData, newData map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("callback panicked", "panic", rec)
		}
	}()
	reg.onData(fullData, newData, reg.extraData)
}

// fetchSnapshot is the initialization-time read described in spec.md
// §4.3: a direct hash+list read for a literal room, or a SCAN-driven
// aggregation across all matching literal rooms for a pattern room.
func (r *Room) fetchSnapshot(ctx context.Context) (map[string]any, []map[string]any, error) {
	if r.pattern {
		return r.fetchPatternSnapshot(ctx)
	}
	return r.fetchLiteralSnapshot(ctx)
}

func (r *Room) fetchLiteralSnapshot(ctx context.Context) (map[string]any, []map[string]any, error) {
	var (
		wg         sync.WaitGroup
		hashRaw    map[string]string
		historyRaw []string
		hashErr    error
		listErr    error
	)

	if r.opts.EnableFullData {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hashRaw, hashErr = r.store.HGetAll(ctx, r.keys.Hash)
		}()
	}
	if r.opts.HistoryLength > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			historyRaw, listErr = r.store.LRange(ctx, r.keys.List, 0, -1)
		}()
	}
	wg.Wait()

	if hashErr != nil {
		return nil, nil, hashErr
	}
	if listErr != nil {
		return nil, nil, listErr
	}

	fullData := make(map[string]any, len(hashRaw))
	for k, v := range hashRaw {
		fullData[k] = decodeHashValue(v)
	}

	history := decodeHistoryItems(historyRaw, r.logger)
	history = capHistory(history, r.opts.HistoryLength)

	return fullData, history, nil
}

// fetchPatternSnapshot aggregates state across every literal room whose
// keys match this pattern's hash/list key, per spec.md's "Pattern-mode"
// initialization: SCAN both key families, HGETALL/LRANGE each match, and
// merge with last-write-wins on field collisions (order undefined).
func (r *Room) fetchPatternSnapshot(ctx context.Context) (map[string]any, []map[string]any, error) {
	fullData := make(map[string]any)
	var history []map[string]any

	if r.opts.EnableFullData {
		hashKeys, err := r.store.Scan(ctx, r.keys.Hash, 100)
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", r.keys.Hash, err)
		}
		for _, hk := range hashKeys {
			h, err := r.store.HGetAll(ctx, hk)
			if err != nil {
				r.logger.Error("scan fetch failed, skipping key", "key", hk, "error", err)
				continue
			}
			for k, v := range h {
				fullData[k] = decodeHashValue(v)
			}
		}
	}

	if r.opts.HistoryLength > 0 {
		listKeys, err := r.store.Scan(ctx, r.keys.List, 100)
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", r.keys.List, err)
		}
		for _, lk := range listKeys {
			items, err := r.store.LRange(ctx, lk, 0, -1)
			if err != nil {
				r.logger.Error("scan fetch failed, skipping key", "key", lk, "error", err)
				continue
			}
			history = append(history, decodeHistoryItems(items, r.logger)...)
		}
		history = sortHistoryByTimestampIfPresent(history)
		history = capHistory(history, r.opts.HistoryLength)
	}

	return fullData, history, nil
}

func decodeHistoryItems(raw []string, logger *slog.Logger) []map[string]any {
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		decoded, err := decodeJSONObject(item)
		if err != nil {
			logger.Error("malformed history item, dropping", "error", err)
			continue
		}
		out = append(out, decoded)
	}
	return out
}

func capHistory(h []map[string]any, limit int) []map[string]any {
	if limit <= 0 {
		return nil
	}
	if len(h) > limit {
		return h[:limit]
	}
	return h
}

// sortHistoryByTimestampIfPresent sorts descending by a "timestamp"
// field, but only triggers if the *first* element carries one —
// preserving the heuristic (possibly a bug) spec.md §9 flags rather than
// re-examining every element.
func sortHistoryByTimestampIfPresent(h []map[string]any) []map[string]any {
	if len(h) == 0 {
		return h
	}
	if _, ok := h[0]["timestamp"]; !ok {
		return h
	}
	sort.SliceStable(h, func(i, j int) bool {
		return timestampOf(h[i]) > timestampOf(h[j])
	})
	return h
}

func timestampOf(m map[string]any) float64 {
	switch v := m["timestamp"].(type) {
	case float64:
		return v
	default:
		return 0
	}
}
