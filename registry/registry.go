/*
Package registry is the connection registry.

Thread-safe map from ConnectionId to *connection.Connection, plus
per-kind/total counters and a periodic cleanup timer. It uses
an explicit sync.RWMutex map with a separately-guarded stats block
rather than a sync.Map, since the cleanup timer's periodic aggregate-
stats refresh needs a consistent snapshot of live connections that a
sync.Map cannot give without its own extra bookkeeping.
*/
package registry

import (
	"sync"
	"time"

	"github.com/nightfall-labs/imgw/connection"
	"github.com/nightfall-labs/imgw/protocol"
)

// Limits is the registry's configurable capacity.
type Limits struct {
	MaxConnections int
	IdleTimeout    time.Duration
	StatsEnabled   bool
}

// EventObserver is notified of registry-level lifecycle events,
// distinct from a single Connection's own on-state-change observer.
type EventObserver func(event string, conn *connection.Connection)

// ErrAtCapacity is returned by Add when the registry is full.
type ErrAtCapacity struct{}

func (ErrAtCapacity) Error() string { return "registry: at max connection capacity" }

// ErrDuplicateID is returned by Add when the id is already registered.
type ErrDuplicateID struct{}

func (ErrDuplicateID) Error() string { return "registry: connection id already registered" }

// Registry is the thread-safe connection table.
type Registry struct {
	limits   Limits
	observer EventObserver

	mu    sync.RWMutex
	conns map[uint64]*connection.Connection

	countsMu sync.Mutex
	byKind   map[protocol.ConnectionKind]int64
	total    int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Registry with the given limits. observer may be nil.
func New(limits Limits, observer EventObserver) *Registry {
	return &Registry{
		limits:   limits,
		observer: observer,
		conns:    make(map[uint64]*connection.Connection),
		byKind:   make(map[protocol.ConnectionKind]int64),
		stopCh:   make(chan struct{}),
	}
}

// Add registers conn. Fails with ErrAtCapacity if the registry is
// full, or ErrDuplicateID if the id already exists.
func (r *Registry) Add(conn *connection.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limits.MaxConnections > 0 && len(r.conns) >= r.limits.MaxConnections {
		return ErrAtCapacity{}
	}
	if _, exists := r.conns[conn.ID()]; exists {
		return ErrDuplicateID{}
	}
	r.conns[conn.ID()] = conn

	r.countsMu.Lock()
	r.byKind[conn.Kind()]++
	r.total++
	r.countsMu.Unlock()

	if r.observer != nil {
		r.observer("connected", conn)
	}
	return nil
}

// Remove is idempotent: removing an id not present is a no-op.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.countsMu.Lock()
	r.byKind[conn.Kind()]--
	r.total--
	r.countsMu.Unlock()

	if r.observer != nil {
		r.observer("removed", conn)
	}
}

// Get returns the live connection for id, or (nil, false).
func (r *Registry) Get(id uint64) (*connection.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// ByKind returns a snapshot of every live connection of the given kind.
func (r *Registry) ByKind(kind protocol.ConnectionKind) []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connection.Connection, 0)
	for _, c := range r.conns {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

// ByState returns a snapshot of every live connection in the given
// state.
func (r *Registry) ByState(state connection.State) []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connection.Connection, 0)
	for _, c := range r.conns {
		if c.State() == state {
			out = append(out, c)
		}
	}
	return out
}

// snapshot returns every live connection without holding the lock
// during Close (which itself may block on I/O).
func (r *Registry) snapshot() []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connection.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// CloseAll closes every live connection. Once this returns and any
// pending async operations complete, Count() == 0 - each Connection's
// on-close observer is expected to call Remove.
func (r *Registry) CloseAll() {
	for _, c := range r.snapshot() {
		c.Close()
	}
}

// CloseByKind closes every live connection of the given kind.
func (r *Registry) CloseByKind(kind protocol.ConnectionKind) {
	for _, c := range r.ByKind(kind) {
		c.Close()
	}
}

// CloseIdle closes connections whose last activity is at least timeout
// in the past.
func (r *Registry) CloseIdle(timeout time.Duration) {
	now := time.Now()
	for _, c := range r.snapshot() {
		if now.Sub(c.Stats().LastActivityAt) >= timeout {
			c.Close()
		}
	}
}

// Count returns the total number of live connections. It always
// equals the sum of CountByKind over all kinds, since both are updated
// together under countsMu.
func (r *Registry) Count() int {
	r.countsMu.Lock()
	defer r.countsMu.Unlock()
	return int(r.total)
}

// CountByKind returns the number of live connections of the given
// kind.
func (r *Registry) CountByKind(kind protocol.ConnectionKind) int {
	r.countsMu.Lock()
	defer r.countsMu.Unlock()
	return int(r.byKind[kind])
}

// StartCleanup launches the periodic cleanup timer: drop dead
// sockets, evict idle connections, refresh aggregate stats. interval
// defaults to 30s if zero.
func (r *Registry) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.runCleanupPass()
			}
		}
	}()
}

func (r *Registry) runCleanupPass() {
	// Pass (a): drop entries whose underlying socket already reports
	// disconnected.
	for _, c := range r.snapshot() {
		if c.State() == connection.StateDisconnected {
			r.Remove(c.ID())
		}
	}
	// Pass (b): evict idle connections.
	if r.limits.IdleTimeout > 0 {
		r.CloseIdle(r.limits.IdleTimeout)
	}
	// Pass (c): aggregate stats refresh is implicit - Count/CountByKind
	// are always read from the live counters under countsMu, so there is no
	// separate stats cache to reconcile here when StatsEnabled is set.
}

// StopCleanup stops the cleanup timer and waits for it to exit.
func (r *Registry) StopCleanup() {
	close(r.stopCh)
	r.wg.Wait()
}
