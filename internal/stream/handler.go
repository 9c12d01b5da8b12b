package stream

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/callsight/callsight/internal/logger"
)

// Stream header constants.
const (
	headerContentType     = "Content-Type"
	headerCacheControl    = "Cache-Control"
	headerConnection      = "Connection"
	headerXAccelBuffering = "X-Accel-Buffering"

	streamContentType = "text/event-stream"
)

var errTransportClosed = errors.New("stream: transport closed")

// Handler creates a Gin handler for a session's live event stream. The
// session ID is taken from the call_id route parameter. The first frame on
// every connection is connection-established.
func Handler(b *Broadcaster, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("call_id")

		setStreamHeaders(c.Writer)
		c.Writer.Flush()

		transport := newGinTransport(c.Writer)
		unsubscribe := b.Register(sessionID, transport)
		defer unsubscribe()

		log.Debug("live stream connected",
			logger.String("session_id", sessionID),
			logger.String("remote_addr", c.ClientIP()),
		)

		// Block until the client goes away or the session is closed.
		select {
		case <-c.Request.Context().Done():
		case <-transport.done:
		}
	}
}

func setStreamHeaders(w gin.ResponseWriter) {
	w.Header().Set(headerContentType, streamContentType)
	w.Header().Set(headerCacheControl, "no-cache")
	w.Header().Set(headerConnection, "keep-alive")
	w.Header().Set(headerXAccelBuffering, "no")
}

// ginTransport adapts a Gin response writer to the Transport interface.
// The writer pump is the only writer after the headers are flushed.
type ginTransport struct {
	mu     sync.Mutex
	w      gin.ResponseWriter
	done   chan struct{}
	closed bool
}

func newGinTransport(w gin.ResponseWriter) *ginTransport {
	return &ginTransport{
		w:    w,
		done: make(chan struct{}),
	}
}

func (t *ginTransport) Write(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errTransportClosed
	}
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	t.w.Flush()
	return nil
}

// Close releases the handler goroutine, which ends the HTTP response.
func (t *ginTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}
