/*
Package connection holds the session object shared by every wire
format the gateway accepts.

Connection is a single envelope type carrying a ConnectionKind
discriminator, common fields (id, kind, state, stats, context map,
observers), and a small fixed method set (Start, Send, Close,
ForceClose, IsConnected). There is no TCPConnection/WebSocketConnection/
HTTPConnection subclass anywhere in this package - every acceptor
constructs the same Connection, and the protocol manager in the gateway
package is what varies parsing behaviour by Kind.

The read/write split uses a buffered write channel drained by its own
goroutine, a sync.Once-guarded close, and a plain net.Conn underneath.
*/
package connection

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nightfall-labs/imgw/protocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Stats holds the per-connection byte/message counters and timestamps.
type Stats struct {
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	ConnectedAt      time.Time
	LastActivityAt   time.Time
}

// OnMessage is invoked once per Message the connection's parser emits.
type OnMessage func(*Connection, *protocol.Message)

// OnStateChange is invoked on every state transition, carrying the old
// and new state.
type OnStateChange func(*Connection, State, State)

// OnClose is invoked exactly once, after the underlying socket is shut
// down and the connection has transitioned to StateDisconnected.
type OnClose func(*Connection)

// Connection is the tagged-variant session envelope. The zero value is
// not usable; construct with New.
type Connection struct {
	id   uint64
	kind protocol.ConnectionKind

	conn net.Conn

	writeChan chan []byte
	closeChan chan struct{} // closed by ForceClose: drop pending writes immediately
	drainChan chan struct{} // closed by Close: flush pending writes, then stop
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu    sync.RWMutex
	state State
	stats Stats
	ctx   map[string]interface{}

	onMessage     OnMessage
	onStateChange OnStateChange
	onClose       OnClose

	closing int32
}

// Options configures the observers installed on a new Connection
// before Start is called: the gateway's on-message, on-state-change,
// and on-close hooks.
type Options struct {
	OnMessage     OnMessage
	OnStateChange OnStateChange
	OnClose       OnClose
}

// New wraps conn as a Connection of the given kind and id. The
// connection starts in StateConnecting; call Start to begin reading
// and move it to StateConnected.
func New(id uint64, kind protocol.ConnectionKind, conn net.Conn, opts Options) *Connection {
	now := time.Now()
	return &Connection{
		id:        id,
		kind:      kind,
		conn:      conn,
		writeChan: make(chan []byte, 256),
		closeChan: make(chan struct{}),
		drainChan: make(chan struct{}),
		state:     StateConnecting,
		stats: Stats{
			ConnectedAt:    now,
			LastActivityAt: now,
		},
		ctx:           map[string]interface{}{},
		onMessage:     opts.OnMessage,
		onStateChange: opts.OnStateChange,
		onClose:       opts.OnClose,
	}
}

// ID returns the connection's ConnectionId.
func (c *Connection) ID() uint64 { return c.id }

// Kind returns which wire format this connection speaks.
func (c *Connection) Kind() protocol.ConnectionKind { return c.kind }

// RemoteAddr returns the underlying socket's remote address.
func (c *Connection) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// State returns the current ConnectionState.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is currently usable for
// sends.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Stats returns a snapshot of the connection's counters.
func (c *Connection) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// SetContext stores an opaque value under key in the connection's
// payload-context map.
func (c *Connection) SetContext(key string, value interface{}) {
	c.mu.Lock()
	c.ctx[key] = value
	c.mu.Unlock()
}

// Context retrieves a previously stored value.
func (c *Connection) Context(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.ctx[key]
	return v, ok
}

func (c *Connection) setState(next State) {
	c.mu.Lock()
	prev := c.state
	c.state = next
	c.mu.Unlock()
	if prev != next && c.onStateChange != nil {
		c.onStateChange(c, prev, next)
	}
}

// Start transitions the connection to Connected and begins the
// asynchronous write loop. Reading is driven externally by the
// acceptor/protocol manager pair, which owns the loop that calls
// RecordRead/RecordMessage - Connection itself never runs a read loop.
func (c *Connection) Start() {
	c.setState(StateConnected)
	c.wg.Add(1)
	go c.writeLoop()
}

func (c *Connection) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.closeChan:
			return
		case <-c.drainChan:
			c.flushPending()
			return
		case data := <-c.writeChan:
			if !c.writeOne(data) {
				return
			}
		}
	}
}

// flushPending writes out everything already sitting in writeChan
// without waiting for more to arrive, then returns. It is only called
// once drainChan has been closed, so no new sends can land behind it.
func (c *Connection) flushPending() {
	for {
		select {
		case data := <-c.writeChan:
			if !c.writeOne(data) {
				return
			}
		default:
			return
		}
	}
}

// writeOne writes data to the socket and updates send-side stats,
// reporting false if the write failed (and the connection has already
// been torn down as a result).
func (c *Connection) writeOne(data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	n, err := c.conn.Write(data)
	if err != nil {
		c.transitionOnError()
		return false
	}
	c.mu.Lock()
	c.stats.BytesSent += uint64(n)
	c.stats.MessagesSent++
	c.mu.Unlock()
	return true
}

// Send enqueues data for asynchronous writing, preserving FIFO
// delivery order for a single producer. If the send queue is full the
// write is dropped rather than blocking the caller.
func (c *Connection) Send(data []byte) error {
	if atomic.LoadInt32(&c.closing) == 1 {
		return net.ErrClosed
	}
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return net.ErrClosed
	case <-c.drainChan:
		return net.ErrClosed
	default:
		return nil
	}
}

// RecordRead updates receive-side statistics; called by the protocol
// manager once per completed socket read.
func (c *Connection) RecordRead(n int) {
	c.mu.Lock()
	c.stats.BytesReceived += uint64(n)
	c.stats.LastActivityAt = time.Now()
	c.mu.Unlock()
}

// RecordMessage updates message-received statistics and invokes the
// on-message observer; called by the protocol manager once per emitted
// Message.
func (c *Connection) RecordMessage(msg *protocol.Message) {
	c.mu.Lock()
	c.stats.MessagesReceived++
	c.mu.Unlock()
	if c.onMessage != nil {
		c.onMessage(c, msg)
	}
}

// transitionOnError reacts to a read or write failure. It runs the
// close on a separate goroutine: it is always called from inside
// writeLoop itself, and ForceClose's closeOnce body blocks on
// c.wg.Wait() for writeLoop to return - calling it inline here would
// deadlock the goroutine waiting on itself.
func (c *Connection) transitionOnError() {
	c.setState(StateError)
	go c.ForceClose()
}

// Close performs a graceful shutdown: stop accepting new sends, flush
// whatever is already queued in writeChan out to the socket, then shut
// it down and transition through Disconnecting to Disconnected,
// invoking the on-close observer exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closing, 1)
		c.setState(StateDisconnecting)
		close(c.drainChan)
		c.wg.Wait()
		c.conn.Close()
		c.setState(StateDisconnected)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// ForceClose shuts the connection down immediately: pending writes
// still sitting in writeChan are dropped rather than flushed. Use Close
// for an orderly shutdown that lets queued sends land first.
func (c *Connection) ForceClose() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.closing, 1)
		c.setState(StateDisconnecting)
		close(c.closeChan)
		c.conn.Close()
		c.wg.Wait()
		c.setState(StateDisconnected)
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}
