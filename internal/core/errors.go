package core

import "errors"

var (
	// ErrHandshakeFailed covers non-2xx answers and malformed SDP from the
	// signaling endpoint.
	ErrHandshakeFailed = errors.New("signaling handshake failed")

	// ErrGenerationAPI covers failed start/status calls against the
	// generation service.
	ErrGenerationAPI = errors.New("generation api failure")

	// ErrGenerationTimeout fires when no active transition happens within
	// the configured window.
	ErrGenerationTimeout = errors.New("generation timed out")

	ErrTransportClosed = errors.New("transport closed")
	ErrBackpressure    = errors.New("backpressure")
)
