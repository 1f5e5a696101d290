/*
Package idgen - identifier source

Every connection and every message needs a process-unique, monotonically
increasing id. A single atomic counter field works as long as there is
exactly one id space in the whole process; once a second acceptor kind
(WebSocket, HTTP) and a second id space (message ids, independent from
connection ids) show up, the single field doesn't scale - this package
wraps the same atomic-counter idiom in a small reusable allocator, one
per id space, plus a diagnostic short-id helper for logging.
*/
package idgen

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Counter is a single monotonic uint64 allocator. The zero value starts
// at 1 on first Next(), reserving 0 as "no id".
type Counter struct {
	value uint64
}

// NewCounter returns a Counter whose next allocation is 1.
func NewCounter() *Counter {
	return &Counter{}
}

// Next returns the next value in the sequence. Safe for concurrent use.
func (c *Counter) Next() uint64 {
	return atomic.AddUint64(&c.value, 1)
}

// Source bundles the independent counters the gateway needs: one for
// ConnectionId, one for MessageId. They must not share a counter or the
// diagnostic key `<id>_<kind>_<connId>` would be ambiguous between a
// connection id and a message id that happen to collide numerically.
type Source struct {
	connections *Counter
	messages    *Counter
}

// NewSource constructs a fresh identifier source. The gateway façade
// owns exactly one of these and hands it to every component that needs
// to mint ids - no package-level counter exists anywhere in this repo.
func NewSource() *Source {
	return &Source{
		connections: NewCounter(),
		messages:    NewCounter(),
	}
}

// NextConnectionID allocates the next ConnectionId.
func (s *Source) NextConnectionID() uint64 {
	return s.connections.Next()
}

// NextMessageID allocates the next MessageId.
func (s *Source) NextMessageID() uint64 {
	return s.messages.Next()
}

// ShortID returns a compact random identifier suitable for diagnostic
// tagging (service instance ids, request-correlation logging) where a
// full connection/message counter would be the wrong tool - these need
// to be unique across processes, not just within one.
func ShortID() string {
	return uuid.New().String()
}
