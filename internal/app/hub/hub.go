package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

// Hub owns the subscriber registry. No other component holds a direct
// reference to a subscriber; everything goes through Broadcast/SendTo.
type Hub struct {
	mu      sync.Mutex
	subs    map[core.SubscriberID]core.Transport
	history *historyRing

	// stateFn reports (session state, session active) for the snapshot
	// event sent to new subscribers. Wired after construction because the
	// orchestrator depends on the hub, not the other way around.
	stateFn func() (domain.SessionState, bool)
}

func New() *Hub {
	return &Hub{
		subs:    make(map[core.SubscriberID]core.Transport),
		history: newHistoryRing(historyLimit),
	}
}

func (h *Hub) SetStateFunc(fn func() (domain.SessionState, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateFn = fn
}

// Register adds a subscriber, greets it with a snapshot event and replays
// recent history so it has context. Always succeeds.
func (h *Hub) Register(tr core.Transport) core.SubscriberID {
	id := core.SubscriberID(uuid.NewString())

	h.mu.Lock()
	h.subs[id] = tr

	state, active := domain.StateIdle, false
	if h.stateFn != nil {
		state, active = h.stateFn()
	}
	snapshot := core.NewEvent(core.EventConnectionEstablished, map[string]any{
		"subscriber_id":  string(id),
		"state":          string(state),
		"session_active": active,
	})
	if raw, err := json.Marshal(snapshot); err == nil {
		h.deliverLocked(id, raw)
	}
	for _, rec := range h.history.snapshot() {
		h.deliverLocked(id, rec.Payload)
	}
	h.mu.Unlock()

	log.Info().Str("module", "app.hub").Str("sub", string(id)).Msg("subscriber registered")
	return id
}

// Remove is idempotent.
func (h *Hub) Remove(id core.SubscriberID) {
	h.mu.Lock()
	tr, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	tr.Close()
	log.Info().Str("module", "app.hub").Str("sub", string(id)).Msg("subscriber removed")
}

// Broadcast serializes the event once and attempts delivery to every open
// subscriber. A subscriber whose transport is closed or whose send fails is
// dropped as a side effect; one bad subscriber never blocks the rest.
// Broadcasts are serialized, so per-subscriber delivery order follows call
// order.
func (h *Hub) Broadcast(ev core.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("type", string(ev.Type)).Msg("broadcast marshal")
		return
	}

	h.mu.Lock()
	if ev.Recordable() {
		h.history.append(domain.EventRecord{
			Kind:      string(ev.Type),
			Payload:   raw,
			Timestamp: ev.Timestamp,
		})
	}
	sent, dropped := 0, 0
	for id := range h.subs {
		if h.deliverLocked(id, raw) {
			sent++
		} else {
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		log.Debug().Str("module", "app.hub").Str("type", string(ev.Type)).
			Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast result")
	}
}

// SendTo is the unicast variant with the same failure isolation.
func (h *Hub) SendTo(id core.SubscriberID, ev core.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Str("type", string(ev.Type)).Msg("sendto marshal")
		return
	}
	h.mu.Lock()
	h.deliverLocked(id, raw)
	h.mu.Unlock()
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) History() []domain.EventRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.snapshot()
}

// deliverLocked pushes raw bytes to one subscriber, dropping it on any
// failure. Caller holds h.mu. TrySend never blocks, so holding the lock
// across delivery keeps ordering without stalling on slow subscribers.
func (h *Hub) deliverLocked(id core.SubscriberID, raw core.Payload) bool {
	tr, ok := h.subs[id]
	if !ok {
		return false
	}
	if !tr.IsOpen() {
		delete(h.subs, id)
		tr.Close()
		return false
	}
	if err := tr.TrySend(raw); err != nil {
		log.Warn().Err(err).Str("module", "app.hub").Str("sub", string(id)).Msg("send failed, dropping subscriber")
		delete(h.subs, id)
		tr.Close()
		return false
	}
	return true
}
