package roommanager

import (
	"context"
	"time"

	"github.com/roomsync/roomsync/internal/room"
)

// runReaper periodically destroys idle, callback-less consumer rooms.
// Producers and rooms with active callbacks are exempt regardless of how
// long they've been idle — mirroring the teacher's connection-hub
// sweep, but keyed on room idle state instead of socket liveness.
func (m *Manager) runReaper(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

// reapOnce is two phases, so that a reaped room's teardown I/O (unsubscribe
// round-trip, waiting on the receive-loop goroutine to exit) never
// serializes with concurrent CreateRoom/GetRoom callers holding m.mu: first
// collect candidates under the lock, then destroy them outside it, then
// briefly reacquire the lock to remove them from the table.
func (m *Manager) reapOnce() {
	now := time.Now()

	type candidate struct {
		name      string
		room      *room.Room
		idleSince time.Time
	}

	m.mu.RLock()
	var candidates []candidate
	for name, r := range m.rooms {
		if r.IsProducer() {
			continue
		}
		if !r.IsInitialized() {
			continue
		}
		if r.HasCallbacks() {
			continue
		}
		idleSince := r.IdleSince()
		if idleSince == nil {
			continue
		}
		if now.Sub(*idleSince) < m.cfg.IdleTimeout {
			continue
		}
		candidates = append(candidates, candidate{name: name, room: r, idleSince: *idleSince})
	}
	m.mu.RUnlock()

	for _, c := range candidates {
		c.room.Destroy()
		m.logger.Info("reaped idle room", "room", c.name, "idle_for", now.Sub(c.idleSince))
	}

	m.mu.Lock()
	for _, c := range candidates {
		delete(m.rooms, c.name)
	}
	m.mu.Unlock()
}
