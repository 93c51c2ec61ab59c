package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "ws").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "ws").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sub core.SubscriberID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("sub", string(sub)).Msg("readPump closing")
		cancel()
		ctl.Hub.Remove(sub)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "ws").Str("sub", string(sub)).Msg("readPump read ended")
				return
			}
			ctl.handleMessage(sub, data)
		}
	}
}

// handleMessage dispatches a client message. Unknown types are ignored with
// a warning, never answered as errors.
func (ctl *Controller) handleMessage(sub core.SubscriberID, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad json")
		return
	}

	switch env.Type {
	case "start_generation":
		ctl.handleStart(sub, data)
	case "stop_generation":
		log.Info().Str("module", "ws").Str("sub", string(sub)).Msg("stop requested")
		ctl.Orch.StopCurrentGeneration()
	case "get_status":
		ctl.Orch.CheckStatus(sub)
	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown message type")
	}
}

func (ctl *Controller) handleStart(sub core.SubscriberID, data []byte) {
	var p struct {
		Type   string `json:"type"`
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad start payload")
		return
	}
	if p.Prompt == "" {
		log.Warn().Str("module", "ws").Str("sub", string(sub)).Msg("start without prompt, ignoring")
		return
	}
	log.Info().Str("module", "ws").Str("sub", string(sub)).Str("prompt", p.Prompt).Msg("generation requested")
	ctl.Orch.RequestGeneration(p.Prompt)
}
