// Package orch owns the stream lifecycle state machine. It is the only
// component that talks to the external generation API and the only mutator
// of the Session.
package orch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

// EventSink is the slice of the hub the orchestrator needs.
type EventSink interface {
	Broadcast(core.Event)
	SendTo(core.SubscriberID, core.Event)
}

// FrameSink is the slice of the relay the orchestrator drives.
type FrameSink interface {
	Start(sessionID string)
	OnFrame(domain.Frame)
	Stop()
}

type Options struct {
	Timeout  time.Duration
	Quality  string
	Duration int
}

type Orchestrator struct {
	hub   EventSink
	relay FrameSink
	api   core.GenerationAPI
	dial  core.SignalingFactory
	opts  Options

	mu      sync.Mutex
	session *domain.Session
	signal  core.SignalingClient
	timer   *time.Timer
	gen     uint64
}

func New(hub EventSink, relay FrameSink, api core.GenerationAPI, dial core.SignalingFactory, opts Options) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Orchestrator{
		hub:   hub,
		relay: relay,
		api:   api,
		dial:  dial,
		opts:  opts,
	}
}

// RequestGeneration starts a new generation attempt. A call while a session
// exists in any non-idle state is a no-op, not an error: concurrent callers
// must never start overlapping sessions.
func (o *Orchestrator) RequestGeneration(prompt string) {
	o.mu.Lock()
	if o.session != nil && o.session.State != domain.StateIdle {
		state := o.session.State
		o.mu.Unlock()
		log.Debug().Str("module", "app.orch").Str("state", string(state)).Msg("generation already in flight, ignoring request")
		return
	}
	o.gen++
	gen := o.gen
	o.session = &domain.Session{State: domain.StateStarting, Gen: gen}
	o.timer = time.AfterFunc(o.opts.Timeout, func() { o.onTimeout(gen) })
	o.mu.Unlock()

	log.Info().Str("module", "app.orch").Str("prompt", prompt).Msg("starting generation")
	o.hub.Broadcast(core.NewEvent(core.EventGenerationStatus, map[string]any{
		"status": "starting",
		"prompt": prompt,
	}))

	go o.startStream(gen, prompt)
}

// startStream performs the start-API call and hands the endpoint to the
// signaling client. Runs off the lock; every resumption re-checks the
// generation token so a response arriving after a stop is discarded instead
// of reviving a stale session.
func (o *Orchestrator) startStream(gen uint64, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.Timeout)
	defer cancel()

	started, err := o.api.StartStream(ctx, prompt, o.opts.Quality, o.opts.Duration)
	if err != nil {
		o.fail(gen, err)
		return
	}

	o.mu.Lock()
	if o.gen != gen || o.session == nil || o.session.State != domain.StateStarting {
		o.mu.Unlock()
		log.Warn().Str("module", "app.orch").Str("stream", started.StreamID).Msg("discarding stale start response")
		return
	}
	o.session.ID = started.StreamID
	o.session.EndpointURL = started.WHEPURL
	sc := o.dial()
	o.signal = sc
	o.mu.Unlock()

	sc.OnConnect(func() { o.onConnect(gen) })
	sc.OnDisconnect(func(state string) { o.onDisconnect(gen, state) })
	sc.OnError(func(err error) { o.fail(gen, err) })
	sc.OnFrame(func(f domain.Frame) {
		f.SessionID = started.StreamID
		o.relay.OnFrame(f)
	})

	o.hub.Broadcast(core.NewEvent(core.EventGenerationStatus, map[string]any{
		"status":    "stream_started",
		"stream_id": started.StreamID,
	}))

	if err := sc.Connect(context.Background(), started.WHEPURL); err != nil {
		// The client fires OnError on handshake failure; the transition is
		// handled there.
		log.Error().Err(err).Str("module", "app.orch").Str("stream", started.StreamID).Msg("signaling connect")
	}
}

// StopCurrentGeneration tears down whatever is in flight and returns to
// idle. Idempotent; safe to call with no active session.
func (o *Orchestrator) StopCurrentGeneration() {
	o.mu.Lock()
	if o.session == nil && o.signal == nil {
		o.mu.Unlock()
		return
	}
	sc := o.teardownLocked()
	o.mu.Unlock()

	if sc != nil {
		sc.Disconnect()
	}
	o.relay.Stop()
	log.Info().Str("module", "app.orch").Msg("generation stopped")
	o.hub.Broadcast(core.NewEvent(core.EventGenerationStatus, map[string]any{
		"status": "stopped",
	}))
}

// teardownLocked clears the session, cancels the timeout timer and bumps
// the generation token so every pending async result from this attempt is
// invalidated. Caller holds o.mu and closes the returned client.
func (o *Orchestrator) teardownLocked() core.SignalingClient {
	o.stopTimerLocked()
	sc := o.signal
	o.signal = nil
	o.session = nil
	o.gen++
	return sc
}

func (o *Orchestrator) stopTimerLocked() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}
