package core

import (
	"context"

	"github.com/dkeye/Mirage/internal/domain"
)

type SubscriberID string

// Transport abstracts a subscriber connection endpoint (duplex socket or
// unidirectional push stream). Owned by the adapter; the hub never blocks
// on it and treats a send failure as an implicit disconnect.
type Transport interface {
	TrySend(Payload) error
	IsOpen() bool
	Close()
}

// SignalingState is an observational snapshot of the underlying transport.
type SignalingState struct {
	ICEState       string `json:"ice_state"`
	SignalingState string `json:"signaling_state"`
	Connected      bool   `json:"connected"`
	HasRemote      bool   `json:"has_remote_description"`
}

// SignalingClient negotiates a unidirectional video receive session with a
// remote endpoint over an offer/answer HTTP exchange. One client serves one
// session; a new attempt gets a fresh client from the factory.
type SignalingClient interface {
	// Connect builds a recvonly offer, posts it to endpointURL and installs
	// the answer. Callbacks must be set before Connect.
	Connect(ctx context.Context, endpointURL string) error
	// Disconnect tears down the transport; safe to call when already down.
	Disconnect()
	State() SignalingState

	OnConnect(func())
	OnDisconnect(func(state string))
	OnError(func(err error))
	OnFrame(func(f domain.Frame))
}

// SignalingFactory hands the orchestrator a fresh client per session so a
// superseded session can never share transport state with its successor.
type SignalingFactory func() SignalingClient

// StartedStream is the generation service's answer to a start request.
type StartedStream struct {
	StreamID string
	WHEPURL  string
}

// GenerationAPI is the external video-generation service boundary.
type GenerationAPI interface {
	StartStream(ctx context.Context, prompt, quality string, duration int) (*StartedStream, error)
	StreamStatus(ctx context.Context, streamID string) (map[string]any, error)
}

// PromptSource is a pluggable prompt strategy.
type PromptSource interface {
	Generate() string
}
