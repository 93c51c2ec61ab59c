// Package scheduler drives the periodic prompt cycle that keeps the stream
// populated.
package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
)

// Broadcaster is the slice of the hub the scheduler needs.
type Broadcaster interface {
	Broadcast(core.Event)
}

// Liveness is the relay predicate plus the placeholder sender the waiting
// tick drives.
type Liveness interface {
	IsLive() bool
	SendWaitingFrame()
}

// Generator is the orchestrator entry point the cycle triggers.
type Generator interface {
	RequestGeneration(prompt string)
}

type Options struct {
	Interval        time.Duration // full cycle period
	PromptDelay     time.Duration // thought -> prompt gap
	CheckDelay      time.Duration // prompt -> liveness re-check gap
	WaitingInterval time.Duration // waiting-frame tick
}

type Scheduler struct {
	hub     Broadcaster
	relay   Liveness
	orch    Generator
	prompts core.PromptSource
	opts    Options

	mu      sync.Mutex
	cron    *cron.Cron
	pending map[*time.Timer]struct{}
	running bool
	ticks   atomic.Uint64
}

func New(hub Broadcaster, relay Liveness, orch Generator, prompts core.PromptSource, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 7 * time.Second
	}
	if opts.PromptDelay <= 0 {
		opts.PromptDelay = 1 * time.Second
	}
	if opts.CheckDelay <= 0 {
		opts.CheckDelay = 2 * time.Second
	}
	if opts.WaitingInterval <= 0 {
		opts.WaitingInterval = 1 * time.Second
	}
	return &Scheduler{
		hub:     hub,
		relay:   relay,
		orch:    orch,
		prompts: prompts,
		opts:    opts,
		pending: make(map[*time.Timer]struct{}),
	}
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.Interval), s.tick); err != nil {
		return fmt.Errorf("schedule prompt cycle: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.WaitingInterval), s.relay.SendWaitingFrame); err != nil {
		return fmt.Errorf("schedule waiting tick: %w", err)
	}
	c.Start()
	s.cron = c
	s.running = true
	log.Info().Str("module", "app.scheduler").Dur("interval", s.opts.Interval).Msg("prompt cycle started")
	return nil
}

// Stop halts the cycle. Safe to call repeatedly; any in-flight delayed
// callback is prevented from triggering a generation afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.cron = nil
	for t := range s.pending {
		t.Stop()
	}
	s.pending = make(map[*time.Timer]struct{})
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}
	log.Info().Str("module", "app.scheduler").Msg("prompt cycle stopped")
}

// tick runs one cycle: a thought, then the prompt, then a liveness re-check
// before generation. The check runs only after the delay window, because a
// generation may have come alive while we were narrating.
func (s *Scheduler) tick() {
	prompt := s.prompts.Generate()
	n := s.ticks.Add(1)
	thought := fmt.Sprintf(thoughtTemplates[int(n)%len(thoughtTemplates)], prompt)
	s.hub.Broadcast(core.NewContentEvent(core.EventThought, thought))

	s.after(s.opts.PromptDelay, func() {
		s.hub.Broadcast(core.NewContentEvent(core.EventPrompt, prompt))

		s.after(s.opts.CheckDelay, func() {
			if s.relay.IsLive() {
				return
			}
			log.Info().Str("module", "app.scheduler").Str("prompt", prompt).Msg("stream not live, requesting generation")
			s.orch.RequestGeneration(prompt)
		})
	})
}

// after schedules fn once, tracked so Stop can cancel it and so a timer
// that slips past Stop still refuses to run.
func (s *Scheduler) after(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		running := s.running
		delete(s.pending, t)
		s.mu.Unlock()
		if running {
			fn()
		}
	})
	s.pending[t] = struct{}{}
}

var thoughtTemplates = []string{
	"picturing %s",
	"sketching a scene: %s",
	"what if the stream showed %s",
	"composing the next shot: %s",
}
