package orch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

// State reports the session state and whether a session is active. Used by
// the hub for subscriber snapshots and by the status endpoint.
func (o *Orchestrator) State() (domain.SessionState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return domain.StateIdle, false
	}
	return o.session.State, o.session.State == domain.StateActive
}

// Snapshot returns the current stream id and start time for diagnostics.
func (o *Orchestrator) Snapshot() (streamID string, startedAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return "", time.Time{}
	}
	return o.session.ID, o.session.StartedAt
}

// CheckStatus polls the external status API for the current session and
// answers the requesting subscriber. Advisory only: failures are logged and
// reported as unavailable, never turned into state transitions.
func (o *Orchestrator) CheckStatus(sub core.SubscriberID) {
	o.mu.Lock()
	var streamID string
	if o.session != nil {
		streamID = o.session.ID
	}
	o.mu.Unlock()

	if streamID == "" {
		o.hub.SendTo(sub, core.NewEvent(core.EventStatusResponse, map[string]any{
			"available": false,
		}))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := o.api.StreamStatus(ctx, streamID)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("stream", streamID).Msg("status poll failed")
			o.hub.SendTo(sub, core.NewEvent(core.EventStatusResponse, map[string]any{
				"available": false,
				"stream_id": streamID,
			}))
			return
		}
		o.hub.SendTo(sub, core.NewEvent(core.EventStatusResponse, map[string]any{
			"available": true,
			"stream_id": streamID,
			"status":    status,
		}))
	}()
}
