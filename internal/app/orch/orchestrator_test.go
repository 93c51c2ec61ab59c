package orch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

type fakeSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *fakeSink) Broadcast(ev core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *fakeSink) SendTo(_ core.SubscriberID, ev core.Event) {
	s.Broadcast(ev)
}

func (s *fakeSink) byType(t core.EventType) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeRelay struct {
	mu      sync.Mutex
	started []string
	stops   int
	frames  []domain.Frame
}

func (r *fakeRelay) Start(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, sessionID)
}

func (r *fakeRelay) OnFrame(f domain.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *fakeRelay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

type fakeAPI struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{} // when set, StartStream blocks until closed
	failure error
}

func (a *fakeAPI) StartStream(ctx context.Context, prompt, quality string, duration int) (*core.StartedStream, error) {
	a.mu.Lock()
	a.calls++
	gate := a.gate
	failure := a.failure
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if failure != nil {
		return nil, failure
	}
	return &core.StartedStream{StreamID: "stream-1", WHEPURL: "http://example.test/whep"}, nil
}

func (a *fakeAPI) StreamStatus(ctx context.Context, streamID string) (map[string]any, error) {
	return map[string]any{"state": "running"}, nil
}

func (a *fakeAPI) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeSignal struct {
	mu            sync.Mutex
	onConnect     func()
	onDisconnect  func(string)
	onError       func(error)
	onFrame       func(domain.Frame)
	connectOnDial bool
	disconnects   int
}

func (s *fakeSignal) Connect(ctx context.Context, endpointURL string) error {
	s.mu.Lock()
	fire := s.connectOnDial
	fn := s.onConnect
	s.mu.Unlock()
	if fire && fn != nil {
		fn()
	}
	return nil
}

func (s *fakeSignal) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
}

func (s *fakeSignal) State() core.SignalingState { return core.SignalingState{} }

func (s *fakeSignal) OnConnect(fn func())           { s.mu.Lock(); s.onConnect = fn; s.mu.Unlock() }
func (s *fakeSignal) OnDisconnect(fn func(string))  { s.mu.Lock(); s.onDisconnect = fn; s.mu.Unlock() }
func (s *fakeSignal) OnError(fn func(error))        { s.mu.Lock(); s.onError = fn; s.mu.Unlock() }
func (s *fakeSignal) OnFrame(fn func(domain.Frame)) { s.mu.Lock(); s.onFrame = fn; s.mu.Unlock() }

func (s *fakeSignal) fireDisconnect(reason string) {
	s.mu.Lock()
	fn := s.onDisconnect
	s.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}

func newTestOrchestrator(api *fakeAPI, sig *fakeSignal, timeout time.Duration) (*Orchestrator, *fakeSink, *fakeRelay) {
	sink := &fakeSink{}
	rel := &fakeRelay{}
	dial := core.SignalingFactory(func() core.SignalingClient { return sig })
	o := New(sink, rel, api, dial, Options{Timeout: timeout, Quality: "medium", Duration: 30})
	return o, sink, rel
}

func requireIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	state, active := o.State()
	require.Equal(t, domain.StateIdle, state)
	require.False(t, active)
}

func TestSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{gate: gate}
	sig := &fakeSignal{}
	o, _, _ := newTestOrchestrator(api, sig, time.Second)

	o.RequestGeneration("first")
	o.RequestGeneration("second")
	o.RequestGeneration("third")

	close(gate)
	require.Eventually(t, func() bool { return api.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// Still exactly one call after everything settled.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, api.callCount())

	o.StopCurrentGeneration()
}

func TestGenerationBecomesActive(t *testing.T) {
	api := &fakeAPI{}
	sig := &fakeSignal{connectOnDial: true}
	o, sink, rel := newTestOrchestrator(api, sig, time.Second)

	o.RequestGeneration("a quiet harbor at dawn")

	require.Eventually(t, func() bool {
		state, _ := o.State()
		return state == domain.StateActive
	}, time.Second, 5*time.Millisecond)

	streamID, startedAt := o.Snapshot()
	require.Equal(t, "stream-1", streamID)
	require.False(t, startedAt.IsZero())

	rel.mu.Lock()
	require.Equal(t, []string{"stream-1"}, rel.started)
	rel.mu.Unlock()

	statuses := sink.byType(core.EventGenerationStatus)
	require.GreaterOrEqual(t, len(statuses), 3)
	require.Equal(t, "starting", statuses[0].Data["status"])
	require.Equal(t, "active", statuses[len(statuses)-1].Data["status"])
}

func TestAPIFailureResetsToIdle(t *testing.T) {
	api := &fakeAPI{failure: errors.New("boom")}
	sig := &fakeSignal{}
	o, sink, rel := newTestOrchestrator(api, sig, time.Second)

	o.RequestGeneration("doomed")

	require.Eventually(t, func() bool {
		return len(sink.byType(core.EventError)) == 1
	}, time.Second, 5*time.Millisecond)

	requireIdle(t, o)
	rel.mu.Lock()
	require.Equal(t, 1, rel.stops)
	rel.mu.Unlock()

	// Errors are not retried here; a fresh request starts a new attempt.
	api.mu.Lock()
	api.failure = nil
	api.mu.Unlock()
	o.RequestGeneration("second attempt")
	require.Eventually(t, func() bool { return api.callCount() == 2 }, time.Second, 5*time.Millisecond)
	o.StopCurrentGeneration()
}

func TestTimeoutTransition(t *testing.T) {
	api := &fakeAPI{}
	sig := &fakeSignal{} // Connect succeeds but never reaches connected
	o, sink, _ := newTestOrchestrator(api, sig, 50*time.Millisecond)

	o.RequestGeneration("never connects")

	require.Eventually(t, func() bool {
		return len(sink.byType(core.EventError)) > 0
	}, time.Second, 5*time.Millisecond)

	requireIdle(t, o)

	errs := sink.byType(core.EventError)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].Data["error"], core.ErrGenerationTimeout.Error())

	// No late second broadcast from the dead timer.
	time.Sleep(100 * time.Millisecond)
	require.Len(t, sink.byType(core.EventError), 1)
}

func TestStaleStartResponseDiscarded(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{gate: gate}
	sig := &fakeSignal{connectOnDial: true}
	var dialed atomic.Int32
	sink := &fakeSink{}
	rel := &fakeRelay{}
	o := New(sink, rel, api, func() core.SignalingClient {
		dialed.Add(1)
		return sig
	}, Options{Timeout: time.Second})

	o.RequestGeneration("in flight")
	o.StopCurrentGeneration()
	requireIdle(t, o)

	// The start call resolves after the stop; it must not revive a session.
	close(gate)
	time.Sleep(50 * time.Millisecond)
	requireIdle(t, o)
	require.Zero(t, dialed.Load())
}

func TestDisconnectReturnsToIdle(t *testing.T) {
	api := &fakeAPI{}
	sig := &fakeSignal{connectOnDial: true}
	o, sink, rel := newTestOrchestrator(api, sig, time.Second)

	o.RequestGeneration("short lived")
	require.Eventually(t, func() bool {
		state, _ := o.State()
		return state == domain.StateActive
	}, time.Second, 5*time.Millisecond)

	sig.fireDisconnect("disconnected")

	requireIdle(t, o)
	rel.mu.Lock()
	require.Equal(t, 1, rel.stops)
	rel.mu.Unlock()

	statuses := sink.byType(core.EventGenerationStatus)
	last := statuses[len(statuses)-1]
	require.Equal(t, "disconnected", last.Data["status"])
	require.Equal(t, "disconnected", last.Data["reason"])

	// A second disconnect from the torn-down session is a no-op.
	sig.fireDisconnect("failed")
	require.Equal(t, len(statuses), len(sink.byType(core.EventGenerationStatus)))
}

func TestStopIdempotent(t *testing.T) {
	api := &fakeAPI{}
	sig := &fakeSignal{}
	o, _, _ := newTestOrchestrator(api, sig, time.Second)

	o.StopCurrentGeneration()
	o.StopCurrentGeneration()
	requireIdle(t, o)
}

func TestFramesStampedWithSession(t *testing.T) {
	api := &fakeAPI{}
	sig := &fakeSignal{connectOnDial: true}
	o, _, rel := newTestOrchestrator(api, sig, time.Second)

	o.RequestGeneration("frames")
	require.Eventually(t, func() bool {
		sig.mu.Lock()
		defer sig.mu.Unlock()
		return sig.onFrame != nil
	}, time.Second, 5*time.Millisecond)

	sig.mu.Lock()
	fn := sig.onFrame
	sig.mu.Unlock()
	fn(domain.Frame{Payload: []byte{1, 2, 3}})

	rel.mu.Lock()
	require.Len(t, rel.frames, 1)
	require.Equal(t, "stream-1", rel.frames[0].SessionID)
	rel.mu.Unlock()

	o.StopCurrentGeneration()
}
