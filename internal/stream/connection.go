package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Transport is the write side of one subscriber's underlying connection.
// Write delivers a single encoded frame; Close tears the connection down.
type Transport interface {
	Write(frame []byte) error
	Close() error
}

// connection is one registered subscriber. Events are queued on a bounded
// channel drained by a dedicated writer goroutine, so a slow transport
// never blocks the broadcaster.
type connection struct {
	id          string
	sessionID   string
	transport   Transport
	send        chan Event
	done        chan struct{}
	connectedAt time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
}

func newConnection(sessionID string, transport Transport, bufferSize int) *connection {
	return &connection{
		id:          uuid.NewString(),
		sessionID:   sessionID,
		transport:   transport,
		send:        make(chan Event, bufferSize),
		done:        make(chan struct{}),
		connectedAt: time.Now().UTC(),
	}
}

// enqueue queues an event for delivery. Returns false when the connection
// is closed or its buffer is full (slow subscriber).
func (c *connection) enqueue(event Event) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

// pump drains the send queue onto the transport. A write failure invokes
// onError exactly once and stops the pump; remaining queued events are
// dropped with the connection.
func (c *connection) pump(onError func(*connection)) {
	for {
		select {
		case event := <-c.send:
			frame, err := event.Frame()
			if err == nil {
				err = c.transport.Write(frame)
			}
			if err != nil {
				onError(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// close stops the pump and closes the transport. Safe to call from racing
// removal paths; only the first call has any effect.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.transport.Close()
	})
}
