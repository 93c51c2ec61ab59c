// Package sse is the unidirectional push transport: subscribers that only
// listen get the same event feed over a server-sent event stream.
package sse

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/app/hub"
	"github.com/dkeye/Mirage/internal/core"
)

type Controller struct {
	Hub *hub.Hub
}

func NewController(h *hub.Hub) *Controller {
	return &Controller{Hub: h}
}

// sseConn implements core.Transport over a buffered channel drained by the
// handler goroutine.
type sseConn struct {
	ch   chan core.Payload
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newSSEConn() *sseConn {
	return &sseConn{
		ch:   make(chan core.Payload, 64),
		done: make(chan struct{}),
	}
}

func (c *sseConn) TrySend(p core.Payload) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrTransportClosed
	}
	select {
	case c.ch <- p:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *sseConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *sseConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
}

// HandleStream registers the request as a subscriber and streams events
// until the client goes away.
func (ctl *Controller) HandleStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	conn := newSSEConn()
	sub := ctl.Hub.Register(conn)
	log.Info().Str("module", "sse").Str("sub", string(sub)).Msg("new SSE subscriber")
	defer ctl.Hub.Remove(sub)

	for {
		select {
		case <-c.Request.Context().Done():
			log.Info().Str("module", "sse").Str("sub", string(sub)).Msg("client gone")
			return
		case <-conn.done:
			return
		case data := <-conn.ch:
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
				log.Warn().Err(err).Str("module", "sse").Str("sub", string(sub)).Msg("write failed")
				return
			}
			flusher.Flush()
		}
	}
}
