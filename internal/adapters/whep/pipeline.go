package whep

import (
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/dkeye/Mirage/internal/domain"
)

// FramePipeline turns inbound RTP into discrete frame buffers. The real
// decode step lives behind this boundary; the client forwards whatever the
// pipeline produces unchanged.
type FramePipeline interface {
	// Push feeds one packet; returns a frame when one is complete.
	Push(pkt *rtp.Packet) (domain.Frame, bool)
}

// rtpAssembler is the default pipeline: it concatenates payloads belonging
// to one RTP timestamp and emits the buffer on the marker bit (or when the
// timestamp advances without one). No codec parsing, frames stay opaque.
type rtpAssembler struct {
	mu        sync.Mutex
	buf       []byte
	timestamp uint32
	started   bool
	width     int
	height    int
}

// NewRTPAssembler builds the default pipeline. Width/height annotate the
// emitted frames; zero values mean the producer did not advertise
// dimensions.
func NewRTPAssembler(width, height int) FramePipeline {
	return &rtpAssembler{width: width, height: height}
}

func (a *rtpAssembler) Push(pkt *rtp.Packet) (domain.Frame, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out domain.Frame
	emitted := false

	if a.started && pkt.Timestamp != a.timestamp && len(a.buf) > 0 {
		out = a.emitLocked()
		emitted = true
	}

	a.started = true
	a.timestamp = pkt.Timestamp
	a.buf = append(a.buf, pkt.Payload...)

	if pkt.Marker && len(a.buf) > 0 {
		if emitted {
			// Two frames completed by one packet; keep the newer one.
			out = a.emitLocked()
		} else {
			out = a.emitLocked()
			emitted = true
		}
	}
	return out, emitted
}

func (a *rtpAssembler) emitLocked() domain.Frame {
	payload := make([]byte, len(a.buf))
	copy(payload, a.buf)
	a.buf = a.buf[:0]
	return domain.Frame{
		CapturedAt: time.Now(),
		Width:      a.width,
		Height:     a.height,
		Payload:    payload,
	}
}
