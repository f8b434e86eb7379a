// Package trimmer clips a message sequence to a [begin, end) timestamp
// window (spec §4.J), dropping messages outside the window and ending
// the sequence early once the window's end is reached.
package trimmer

import (
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/medium"
)

// Source is anything that produces an ordered Message sequence the way
// internal/muxer.Muxer and internal/ctfiter.Iterator both already do;
// Trimmer is deliberately duck-typed over either.
type Source interface {
	Next() (*ctfiter.Message, medium.Status, error)
}

// Trimmer clips src to [beginNs, endNs). A nil bound means unbounded on
// that side.
type Trimmer struct {
	src Source

	hasBegin bool
	beginNs  int64
	hasEnd   bool
	endNs    int64

	watermarkNs int64
	finished    bool
}

// New builds a Trimmer over src. Pass nil for beginNs/endNs to leave that
// side of the window open.
func New(src Source, beginNs, endNs *int64) *Trimmer {
	t := &Trimmer{src: src}
	if beginNs != nil {
		t.hasBegin = true
		t.beginNs = *beginNs
	}
	if endNs != nil {
		t.hasEnd = true
		t.endNs = *endNs
	}
	return t
}

// Next returns the next in-window message, skipping anything before the
// window's start and truncating the sequence (returning Eof) once a
// message reaches the window's end.
func (t *Trimmer) Next() (*ctfiter.Message, medium.Status, error) {
	if t.finished {
		return nil, medium.StatusEof, nil
	}
	for {
		msg, status, err := t.src.Next()
		if status != medium.StatusOk {
			if status == medium.StatusEof {
				t.finished = true
			}
			return nil, status, err
		}

		ts := msg.TsNsOrWatermark(t.watermarkNs)
		if ts > t.watermarkNs {
			t.watermarkNs = ts
		}

		if t.hasEnd && ts >= t.endNs {
			t.finished = true
			return nil, medium.StatusEof, nil
		}
		if t.hasBegin && ts < t.beginNs {
			continue
		}
		return msg, medium.StatusOk, nil
	}
}
