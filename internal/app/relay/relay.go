// Package relay converts inbound media frames into subscriber events and
// tracks stream liveness for the scheduler.
package relay

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

// Broadcaster is the slice of the hub the relay needs.
type Broadcaster interface {
	Broadcast(core.Event)
}

type Relay struct {
	hub       Broadcaster
	threshold time.Duration
	now       func() time.Time

	mu          sync.Mutex
	active      bool
	sessionID   string
	seq         uint64
	lastFrameAt time.Time
}

func New(hub Broadcaster, threshold time.Duration) *Relay {
	return &Relay{
		hub:       hub,
		threshold: threshold,
		now:       time.Now,
	}
}

// Start begins liveness bookkeeping for the given session. Frames tagged
// with any other session id are discarded until the next Start.
func (r *Relay) Start(sessionID string) {
	r.mu.Lock()
	r.active = true
	r.sessionID = sessionID
	r.seq = 0
	r.lastFrameAt = time.Time{}
	r.mu.Unlock()
	log.Info().Str("module", "app.relay").Str("session", sessionID).Msg("relay started")
}

// OnFrame forwards one inbound frame to subscribers. Frames arriving with no
// active session, or from a superseded session, are dropped rather than
// delivered.
func (r *Relay) OnFrame(f domain.Frame) {
	r.mu.Lock()
	if !r.active || (f.SessionID != "" && f.SessionID != r.sessionID) {
		r.mu.Unlock()
		return
	}
	r.seq++
	seq := r.seq
	r.lastFrameAt = r.now()
	r.mu.Unlock()

	capturedAt := f.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	r.hub.Broadcast(core.NewEvent(core.EventFrame, map[string]any{
		"sequence":    seq,
		"width":       f.Width,
		"height":      f.Height,
		"captured_at": capturedAt.UnixMilli(),
		"payload":     base64.StdEncoding.EncodeToString(f.Payload),
	}))
}

// IsLive is the sole signal the scheduler uses to decide whether generation
// should be (re)triggered: an active session that produced a frame within
// the staleness threshold.
func (r *Relay) IsLive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active || r.lastFrameAt.IsZero() {
		return false
	}
	return r.now().Sub(r.lastFrameAt) < r.threshold
}

// SendWaitingFrame broadcasts a placeholder so subscribers can render a
// "no signal" state instead of a frozen last frame. Driven by an external
// fixed-interval tick; a no-op while the stream is live.
func (r *Relay) SendWaitingFrame() {
	if r.IsLive() {
		return
	}
	r.hub.Broadcast(core.NewEvent(core.EventWaitingFrame, map[string]any{
		"message": "waiting for stream",
	}))
}

// Stop clears liveness bookkeeping. Invoked whenever the orchestrator
// leaves the active state.
func (r *Relay) Stop() {
	r.mu.Lock()
	wasActive := r.active
	r.active = false
	r.sessionID = ""
	r.lastFrameAt = time.Time{}
	r.mu.Unlock()
	if wasActive {
		log.Info().Str("module", "app.relay").Msg("relay stopped")
	}
}

// FrameCount reports frames relayed for the current session.
func (r *Relay) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}
