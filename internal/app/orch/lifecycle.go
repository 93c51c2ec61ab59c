package orch

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

// onConnect moves the session to active once the handshake completes.
func (o *Orchestrator) onConnect(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.session == nil {
		o.mu.Unlock()
		return
	}
	o.stopTimerLocked()
	o.session.State = domain.StateActive
	o.session.StartedAt = time.Now()
	streamID := o.session.ID
	o.mu.Unlock()

	o.relay.Start(streamID)
	log.Info().Str("module", "app.orch").Str("stream", streamID).Msg("stream active")
	o.hub.Broadcast(core.NewEvent(core.EventGenerationStatus, map[string]any{
		"status":    "active",
		"stream_id": streamID,
	}))
}

// onDisconnect handles a clean transport teardown: stop the relay, tell
// subscribers why, return to idle.
func (o *Orchestrator) onDisconnect(gen uint64, reason string) {
	o.mu.Lock()
	if o.gen != gen || o.session == nil {
		o.mu.Unlock()
		return
	}
	streamID := o.session.ID
	sc := o.teardownLocked()
	o.mu.Unlock()

	o.relay.Stop()
	if sc != nil {
		sc.Disconnect()
	}
	log.Info().Str("module", "app.orch").Str("stream", streamID).Str("reason", reason).Msg("stream disconnected")
	o.hub.Broadcast(core.NewEvent(core.EventGenerationStatus, map[string]any{
		"status": "disconnected",
		"reason": reason,
	}))
}

// fail is the shared error path for API failures, handshake failures and
// signaling errors: error state, one error broadcast, then straight back to
// idle. Nothing here retries; the next scheduler tick owns that.
func (o *Orchestrator) fail(gen uint64, err error) {
	o.mu.Lock()
	if o.gen != gen || o.session == nil {
		o.mu.Unlock()
		return
	}
	o.session.State = domain.StateError
	sc := o.teardownLocked()
	o.mu.Unlock()

	if sc != nil {
		sc.Disconnect()
	}
	o.relay.Stop()
	log.Error().Err(err).Str("module", "app.orch").Msg("generation failed")
	o.hub.Broadcast(core.NewEvent(core.EventError, map[string]any{
		"error": err.Error(),
	}))
}

// onTimeout fires when the session never reached active within the window.
func (o *Orchestrator) onTimeout(gen uint64) {
	o.mu.Lock()
	if o.gen != gen || o.session == nil || o.session.State == domain.StateActive {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	o.fail(gen, core.ErrGenerationTimeout)
}
