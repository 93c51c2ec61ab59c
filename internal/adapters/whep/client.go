// Package whep implements the signaling client: a recvonly offer/answer
// exchange over plain HTTP against a WHEP endpoint, with connectivity
// observed from the underlying PeerConnection.
package whep

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mirage/internal/core"
	"github.com/dkeye/Mirage/internal/domain"
)

type Client struct {
	httpc    *http.Client
	pipeline FramePipeline
	cfg      webrtc.Configuration

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	trackCancel context.CancelFunc
	resourceURL string
	connected   bool
	down        bool
	closed      bool

	onConnect    func()
	onDisconnect func(state string)
	onError      func(err error)
	onFrame      func(f domain.Frame)
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// NewClient builds a one-session client. The pipeline turns inbound RTP
// into frame buffers; pass nil for the default assembler.
func NewClient(pipeline FramePipeline) *Client {
	if pipeline == nil {
		pipeline = NewRTPAssembler(0, 0)
	}
	return &Client{
		httpc:    &http.Client{Timeout: 10 * time.Second},
		pipeline: pipeline,
		cfg:      DefaultWebRTCConfig(),
	}
}

func (c *Client) OnConnect(fn func())             { c.mu.Lock(); c.onConnect = fn; c.mu.Unlock() }
func (c *Client) OnDisconnect(fn func(s string))  { c.mu.Lock(); c.onDisconnect = fn; c.mu.Unlock() }
func (c *Client) OnError(fn func(err error))      { c.mu.Lock(); c.onError = fn; c.mu.Unlock() }
func (c *Client) OnFrame(fn func(f domain.Frame)) { c.mu.Lock(); c.onFrame = fn; c.mu.Unlock() }

// Connect negotiates the session: local recvonly offer, POST to the
// endpoint with application/sdp, response body installed as the remote
// answer. A non-2xx response is a hard failure.
func (c *Client) Connect(ctx context.Context, endpointURL string) error {
	pc, err := webrtc.NewPeerConnection(c.cfg)
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	c.mu.Lock()
	c.pc = pc
	c.mu.Unlock()

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return fmt.Errorf("add video transceiver: %w", err)
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "whep").Str("ice_state", s.String()).Msg("ICE state")
		c.handleICEState(s)
	})

	trackCtx, trackCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.trackCancel = trackCancel
	c.mu.Unlock()
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "whep").Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			trackCancel()
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "whep").
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		go c.readTrack(trackCtx, track)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	local := pc.LocalDescription()
	answerSDP, resourceURL, err := c.exchange(ctx, endpointURL, local.SDP)
	if err != nil {
		c.fireError(err)
		return err
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		err = fmt.Errorf("%w: bad answer: %v", core.ErrHandshakeFailed, err)
		c.fireError(err)
		return err
	}

	c.mu.Lock()
	c.resourceURL = resourceURL
	c.mu.Unlock()
	return nil
}

// exchange posts the offer SDP and returns the answer SDP plus the WHEP
// resource URL from the Location header, when the endpoint provides one.
func (c *Client) exchange(ctx context.Context, endpointURL, offerSDP string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(offerSDP))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrHandshakeFailed, err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Accept", "application/sdp")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrHandshakeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("%w: endpoint returned %d", core.ErrHandshakeFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", core.ErrHandshakeFailed, err)
	}

	resourceURL := ""
	if loc := resp.Header.Get("Location"); loc != "" {
		if u, err := resp.Request.URL.Parse(loc); err == nil {
			resourceURL = u.String()
		}
	}
	return string(body), resourceURL, nil
}

// handleICEState maps the ICE state machine onto the connect/disconnect
// callbacks: one OnConnect per handshake, one OnDisconnect per transition
// into the down family, with the latch reset so reconnection can fire
// OnConnect again.
func (c *Client) handleICEState(s webrtc.ICEConnectionState) {
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		c.mu.Lock()
		fire := !c.connected
		c.connected = true
		c.down = false
		fn := c.onConnect
		c.mu.Unlock()
		if fire && fn != nil {
			fn()
		}
	case webrtc.ICEConnectionStateDisconnected, webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		c.mu.Lock()
		fire := !c.down
		c.down = true
		c.connected = false
		fn := c.onDisconnect
		c.mu.Unlock()
		if fire && fn != nil {
			fn(s.String())
		}
	}
}

// readTrack pulls RTP from the remote track and hands assembled frames to
// the frame callback.
func (c *Client) readTrack(ctx context.Context, track *webrtc.TrackRemote) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Warn().Err(err).Str("module", "whep").Msg("track read ended")
			return
		}
		frame, ok := c.pipeline.Push(pkt)
		if !ok {
			continue
		}
		c.mu.Lock()
		fn := c.onFrame
		c.mu.Unlock()
		if fn != nil {
			fn(frame)
		}
	}
}

func (c *Client) fireError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Disconnect tears down the transport and, when the endpoint handed out a
// resource URL, releases it with a DELETE. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pc := c.pc
	c.pc = nil
	cancel := c.trackCancel
	c.trackCancel = nil
	resourceURL := c.resourceURL
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if resourceURL != "" {
		req, err := http.NewRequest(http.MethodDelete, resourceURL, nil)
		if err == nil {
			if resp, err := c.httpc.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}

	if pc != nil {
		if err := pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "whep").Msg("close error")
		} else {
			log.Info().Str("module", "whep").Msg("closed")
		}
	}
}

// State is a purely observational snapshot for diagnostics.
func (c *Client) State() core.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := core.SignalingState{Connected: c.connected}
	if c.pc == nil {
		st.ICEState = "closed"
		st.SignalingState = "closed"
		return st
	}
	st.ICEState = c.pc.ICEConnectionState().String()
	st.SignalingState = c.pc.SignalingState().String()
	st.HasRemote = c.pc.RemoteDescription() != nil
	return st
}
