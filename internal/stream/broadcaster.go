package stream

import (
	"sync"

	"github.com/callsight/callsight/internal/logger"
)

// DefaultConnectionBuffer is the per-connection event queue size.
const DefaultConnectionBuffer = 64

// Stats receives delivery counters from the broadcaster. Implemented by the
// metrics package; a nil Stats disables reporting.
type Stats interface {
	ConnectionOpened()
	ConnectionClosed()
	EventDelivered(eventType string)
	EventDropped(eventType string)
}

// session is the connection set for one call. Guarded by its own mutex so
// delivery for one call never contends with another call's registrations.
type session struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

// Broadcaster registers subscriber connections per session and delivers
// every broadcast event to all of them. Delivery is at-most-once and
// best-effort: events sent while a session has no connections are dropped,
// and late joiners never see earlier events.
type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]*session
	log      logger.Logger
	stats    Stats
	buffer   int
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithConnectionBuffer sets the per-connection event queue size.
func WithConnectionBuffer(n int) BroadcasterOption {
	return func(b *Broadcaster) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithStats attaches a delivery stats sink.
func WithStats(stats Stats) BroadcasterOption {
	return func(b *Broadcaster) {
		b.stats = stats
	}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(log logger.Logger, opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{
		sessions: make(map[string]*session),
		log:      log,
		buffer:   DefaultConnectionBuffer,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a subscriber connection to the session and immediately
// queues a connection-established event for that connection only. The
// returned function unsubscribes the connection and closes its transport.
func (b *Broadcaster) Register(sessionID string, transport Transport) func() {
	conn := newConnection(sessionID, transport, b.buffer)

	// The insert happens under b.mu so a concurrent remove of the session's
	// last peer cannot delete the session entry between the lookup and the
	// insert, which would strand this connection outside the registry.
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		sess = &session{conns: make(map[string]*connection)}
		b.sessions[sessionID] = sess
	}
	sess.mu.Lock()
	sess.conns[conn.id] = conn
	total := len(sess.conns)
	sess.mu.Unlock()
	b.mu.Unlock()

	go conn.pump(b.dropConnection)
	conn.enqueue(newConnectionEvent(sessionID))

	if b.stats != nil {
		b.stats.ConnectionOpened()
	}
	b.log.Debug("subscriber registered",
		logger.String("session_id", sessionID),
		logger.String("connection_id", conn.id),
		logger.Int("session_connections", total),
	)

	return func() {
		b.remove(conn)
	}
}

// Broadcast delivers the event to every connection currently registered for
// the session. A failed or slow connection is dropped without affecting
// delivery to the rest; broadcasting to an empty session is a no-op.
func (b *Broadcaster) Broadcast(sessionID string, event Event) {
	b.mu.RLock()
	sess, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		b.log.Debug("broadcast with no subscribers",
			logger.String("session_id", sessionID),
			logger.String("event_type", string(event.Type)),
		)
		return
	}

	sess.mu.RLock()
	conns := make([]*connection, 0, len(sess.conns))
	for _, conn := range sess.conns {
		conns = append(conns, conn)
	}
	sess.mu.RUnlock()

	for _, conn := range conns {
		if conn.enqueue(event) {
			if b.stats != nil {
				b.stats.EventDelivered(string(event.Type))
			}
			continue
		}
		if b.stats != nil {
			b.stats.EventDropped(string(event.Type))
		}
		b.log.Warn("subscriber queue full, dropping connection",
			logger.String("session_id", sessionID),
			logger.String("connection_id", conn.id),
			logger.String("event_type", string(event.Type)),
		)
		b.remove(conn)
	}
}

// CloseSession forcibly terminates every connection's transport for the
// session and removes the session entry. Used when the call ends.
func (b *Broadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	sess, ok := b.sessions[sessionID]
	if ok {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	conns := make([]*connection, 0, len(sess.conns))
	for _, conn := range sess.conns {
		conns = append(conns, conn)
	}
	sess.conns = make(map[string]*connection)
	sess.mu.Unlock()

	for _, conn := range conns {
		conn.close()
		if b.stats != nil {
			b.stats.ConnectionClosed()
		}
	}

	b.log.Info("session closed",
		logger.String("session_id", sessionID),
		logger.Int("connections", len(conns)),
	)
}

// ConnectionCount returns the number of live connections for the session.
func (b *Broadcaster) ConnectionCount(sessionID string) int {
	b.mu.RLock()
	sess, ok := b.sessions[sessionID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return len(sess.conns)
}

// ActiveSessions returns the IDs of sessions with at least one connection.
func (b *Broadcaster) ActiveSessions() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	return ids
}

// dropConnection is the pump's write-failure callback.
func (b *Broadcaster) dropConnection(conn *connection) {
	b.log.Debug("subscriber write failed, dropping connection",
		logger.String("session_id", conn.sessionID),
		logger.String("connection_id", conn.id),
	)
	b.remove(conn)
}

// remove detaches a connection from its session and closes it. Removal from
// a broadcast failure, a pump write error, and an explicit unsubscribe all
// converge here; racing calls are safe and leave the connection absent.
func (b *Broadcaster) remove(conn *connection) {
	b.mu.Lock()
	sess, ok := b.sessions[conn.sessionID]
	if ok {
		sess.mu.Lock()
		if _, present := sess.conns[conn.id]; present {
			delete(sess.conns, conn.id)
			if b.stats != nil {
				b.stats.ConnectionClosed()
			}
		}
		empty := len(sess.conns) == 0
		sess.mu.Unlock()
		if empty {
			delete(b.sessions, conn.sessionID)
		}
	}
	b.mu.Unlock()

	conn.close()
}
