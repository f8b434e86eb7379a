// Package muxer implements the timestamp-ordered merge of N per-stream
// iterators into one ordered message sequence (spec §4.I).
package muxer

import (
	"container/heap"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/medium"
	"ssw-trace-core/internal/metrics"
	"ssw-trace-core/internal/streamiter"
)

// Muxer merges its upstream per-stream iterators into one globally
// ordered sequence. It never reorders past what it has already emitted:
// once a watermark has been reached, no later message may carry an
// earlier timestamp, except via the inactivity-rewrite rule below.
type Muxer struct {
	upstreams []*streamiter.Iterator
	done      []bool

	haveWatermark bool
	watermarkNs   int64
}

// New builds a Muxer over upstreams. Order within upstreams has no
// bearing on output order; it only affects tie-break pointer identity.
func New(upstreams []*streamiter.Iterator) *Muxer {
	metrics.MuxerUpstreamCount.Set(float64(len(upstreams)))
	return &Muxer{upstreams: upstreams, done: make([]bool, len(upstreams))}
}

// readyHeap orders the upstreams that currently hold a buffered message,
// by (msg_ts_ns, ctfiter.CompareMessages) — the same total order spec
// §4.I mandates for messages sharing a timestamp.
type readyHeap struct {
	items []*streamiter.Iterator
}

func (h readyHeap) Len() int { return len(h.items) }
func (h readyHeap) Less(i, j int) bool {
	ti, tj := h.items[i].CurrentMsgTsNs(), h.items[j].CurrentMsgTsNs()
	if ti != tj {
		return ti < tj
	}
	cmp, _ := ctfiter.CompareMessages(h.items[i].CurrentMessage(), h.items[j].CurrentMessage())
	return cmp < 0
}
func (h readyHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *readyHeap) Push(x any)   { h.items = append(h.items, x.(*streamiter.Iterator)) }
func (h *readyHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// Next advances every non-exhausted upstream that has no buffered
// message, then emits the globally earliest buffered message. If any
// upstream returned AGAIN this round, Next returns AGAIN too: picking a
// "smallest so far" message would risk emitting it ahead of a message
// that upstream hasn't produced yet.
func (m *Muxer) Next() (*ctfiter.Message, medium.Status, error) {
	anyAgain := false
	for i, up := range m.upstreams {
		if m.done[i] || up.HasCurrentMessage() {
			continue
		}
		status, err := up.Advance()
		switch status {
		case medium.StatusOk:
		case medium.StatusAgain:
			anyAgain = true
		case medium.StatusEof:
			m.done[i] = true
		case medium.StatusError:
			return nil, medium.StatusError, err
		}
	}
	if anyAgain {
		return nil, medium.StatusAgain, nil
	}

	var h readyHeap
	for i, up := range m.upstreams {
		if !m.done[i] && up.HasCurrentMessage() {
			h.items = append(h.items, up)
		}
	}
	if len(h.items) == 0 {
		return nil, medium.StatusEof, nil
	}
	heap.Init(&h)
	best := heap.Pop(&h).(*streamiter.Iterator)

	msg := best.CurrentMessage()
	best.ClearCurrent()

	ts := msg.TsNsOrWatermark(m.watermarkNs)
	if m.haveWatermark && ts < m.watermarkNs {
		inactivityNs, ok := best.LastInactivityTsNs()
		if !ok || inactivityNs < m.watermarkNs {
			return nil, medium.StatusError, bterr.New(bterr.KindInvalidState, bterr.ActorComponent, "muxer", "next",
				"message timestamp regressed past the current watermark with no inactivity basis to rewrite from")
		}
		// Rewrite the message's begin timestamp up to the watermark it
		// was already known to be quiescent through, per §4.I scenario 3.
		msg.TsNs = m.watermarkNs
		msg.HasTs = true
	} else {
		m.watermarkNs = ts
		m.haveWatermark = true
	}
	metrics.MuxerWatermarkNs.Set(float64(m.watermarkNs))
	return msg, medium.StatusOk, nil
}
