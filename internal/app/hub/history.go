package hub

import "github.com/dkeye/Mirage/internal/domain"

// historyLimit bounds the broadcast history kept for late joiners.
const historyLimit = 50

// historyRing keeps the most recent records, oldest evicted first.
// Not safe for concurrent use; the hub guards it with its own mutex.
type historyRing struct {
	buf []domain.EventRecord
	max int
}

func newHistoryRing(max int) *historyRing {
	return &historyRing{buf: make([]domain.EventRecord, 0, max), max: max}
}

func (r *historyRing) append(rec domain.EventRecord) {
	if len(r.buf) == r.max {
		copy(r.buf, r.buf[1:])
		r.buf[len(r.buf)-1] = rec
		return
	}
	r.buf = append(r.buf, rec)
}

func (r *historyRing) snapshot() []domain.EventRecord {
	out := make([]domain.EventRecord, len(r.buf))
	copy(out, r.buf)
	return out
}
