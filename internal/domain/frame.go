package domain

import "time"

// Frame is one unit of inbound media as handed over by the media pipeline.
// Sequence is assigned by the relay and is strictly increasing per session.
type Frame struct {
	SessionID  string
	Sequence   uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Payload    []byte
}

// EventRecord is an entry in the bounded broadcast history. Payload holds the
// already-serialized event so replay for late joiners is a plain resend.
type EventRecord struct {
	Kind      string
	Payload   []byte
	Timestamp time.Time
}
