// Package roommanager creates and looks up Room instances (singleton per
// name per process), hosts the stateless Publish path, and runs the
// periodic idle reaper. It owns the store client pair's lifecycle.
package roommanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roomsync/roomsync/internal/ratelimit"
	"github.com/roomsync/roomsync/internal/room"
	"github.com/roomsync/roomsync/internal/roomkey"
	"github.com/roomsync/roomsync/internal/roomstore"
)

// starter and stopper are satisfied by roomstore.RedisPair but not by the
// test double roomstore.Fake; Manager type-asserts for them so it can
// orchestrate connect/disconnect without forcing every store
// implementation to carry connection lifecycle methods.
type starter interface {
	Start(ctx context.Context) error
}

type stopper interface {
	Stop()
}

// Config configures a Manager. Zero values fall back to spec.md's
// documented defaults.
type Config struct {
	Prefix           string        // default "room"
	CheckInterval    time.Duration // default 60s
	IdleTimeout      time.Duration // default 300s
	PublishRateLimit float64       // publishes/sec per room, default 50
	PublishRateBurst int           // default 10
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = roomkey.DefaultPrefix
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 60 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Second
	}
	if c.PublishRateLimit <= 0 {
		c.PublishRateLimit = 50
	}
	if c.PublishRateBurst <= 0 {
		c.PublishRateBurst = 10
	}
	return c
}

// Manager is the Room Manager: C4 in the design. One Manager per process
// owns the room table and the store client pair.
type Manager struct {
	cfg    Config
	store  roomstore.Pair
	logger *slog.Logger
	limits *ratelimit.Limiter

	mu    sync.RWMutex
	rooms map[string]*room.Room

	reaperCancel context.CancelFunc
	wg           sync.WaitGroup
}

// New constructs a Manager bound to store. It performs no I/O; call
// Start to connect.
func New(store roomstore.Pair, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "roommanager"),
		limits: ratelimit.New(cfg.PublishRateLimit, cfg.PublishRateBurst),
		rooms:  make(map[string]*room.Room),
	}
}

// Start connects the store client pair (if it has connection lifecycle)
// and schedules the idle reaper.
func (m *Manager) Start(ctx context.Context) error {
	if s, ok := m.store.(starter); ok {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start store: %w", err)
		}
	}

	reaperCtx, cancel := context.WithCancel(context.Background())
	m.reaperCancel = cancel
	m.wg.Add(1)
	go m.runReaper(reaperCtx)
	return nil
}

// Stop cancels the reaper, destroys every Room (releasing subscriptions),
// and disconnects the store client pair. Best-effort: teardown errors are
// logged, not returned.
func (m *Manager) Stop(ctx context.Context) {
	if m.reaperCancel != nil {
		m.reaperCancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	rooms := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*room.Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Destroy()
	}

	if s, ok := m.store.(stopper); ok {
		s.Stop()
	}
}

// CreateRoom is the producer-intent acquisition path. It rejects a
// pattern name requesting EnablePublish, upgrades an existing consumer
// Room to producer if asked, and otherwise creates and stores a new
// singleton Room.
func (m *Manager) CreateRoom(name string, in room.OptionsInput) (*room.Room, error) {
	resolved := room.ResolveOptions(in)
	if roomkey.IsPattern(name) && resolved.EnablePublish {
		return nil, ErrPatternNotAllowedForProducer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.rooms[name]; ok {
		if resolved.EnablePublish {
			existing.SetEnablePublish(true)
		}
		return existing, nil
	}

	r := room.New(name, m.cfg.Prefix, m.store, resolved, m.limits, m.logger)
	m.rooms[name] = r
	return r, nil
}

// GetRoom is the consumer-intent acquisition path: return the existing
// singleton Room, or create one without forcing EnablePublish.
func (m *Manager) GetRoom(name string, in room.OptionsInput) (*room.Room, error) {
	m.mu.RLock()
	existing, ok := m.rooms[name]
	m.mu.RUnlock()
	if ok {
		return existing, nil
	}
	return m.CreateRoom(name, in)
}

// Publish is the stateless producer path: it does not require a Room
// instance at all, matching spec.md's description of Manager.publish as
// usable directly by the Service Facade.
func (m *Manager) Publish(ctx context.Context, name string, data map[string]any, in room.OptionsInput) error {
	if data == nil {
		m.logger.Warn("invalid publish payload: nil data", "room", name)
		return nil
	}

	if err := m.limits.Wait(ctx, name); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", name, err)
	}

	resolved := room.ResolveOptions(in)
	keys := roomkey.Build(m.cfg.Prefix, name)
	return room.PublishData(ctx, m.store, keys, data, resolved)
}

// roomCount reports the current room table size, for tests and metrics.
func (m *Manager) roomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
