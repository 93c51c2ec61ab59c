// Package ws is the duplex subscriber transport: a gorilla WebSocket behind
// the hub's Transport contract plus the inbound client-message dispatch.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/app/hub"
	"github.com/dkeye/Mirage/internal/app/orch"
	"github.com/dkeye/Mirage/internal/core"
)

type Controller struct {
	Hub  *hub.Hub
	Orch *orch.Orchestrator
}

func NewController(h *hub.Hub, o *orch.Orchestrator) *Controller {
	return &Controller{Hub: h, Orch: o}
}

// wsConn implements core.Transport over a gorilla connection with a
// buffered send channel; TrySend never blocks the hub.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Payload

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(p core.Payload) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrTransportClosed
	}
	select {
	case c.send <- p:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsConn) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleStream upgrades the request and registers the connection as a
// subscriber.
func (ctl *Controller) HandleStream(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Payload, 64),
	}

	sub := ctl.Hub.Register(conn)
	log.Info().Str("module", "ws").Str("sub", string(sub)).Msg("new WS subscriber")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sub, conn)
}
