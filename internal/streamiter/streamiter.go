// Package streamiter implements the per-stream iterator (spec §4.H): it
// owns one medium and one CTF message iterator, and turns the medium's
// own signals (AGAIN, EOF, live quiescence/hang-up) into the fixed
// five-state machine the muxer drives.
package streamiter

import (
	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/medium"
)

// State is the per-stream iterator's state, transitioned by §4.F reply
// codes (live) or by medium EOF/AGAIN (file).
type State int

const (
	StateActiveNoData State = iota
	StateQuiescentNoData
	StateQuiescent
	StateActiveData
	StateEOF
)

func (s State) String() string {
	switch s {
	case StateActiveNoData:
		return "active_no_data"
	case StateQuiescentNoData:
		return "quiescent_no_data"
	case StateQuiescent:
		return "quiescent"
	case StateActiveData:
		return "active_data"
	case StateEOF:
		return "eof"
	default:
		return "unknown"
	}
}

// liveSignals is implemented by internal/livemedium.Medium; a plain file
// medium simply doesn't satisfy it, and Iterator treats that as "no
// quiescence/hang-up concept applies here" rather than an error.
type liveSignals interface {
	HasStreamHungUp() bool
	TakeInactivity() (ts uint64, ok bool)
}

// Iterator is the per-stream iterator of spec §4.H.
type Iterator struct {
	med     medium.Medium
	msgIter *ctfiter.Iterator
	live    liveSignals // non-nil iff med is live-backed

	clockClass *clockclass.ClockClass

	state                 State
	lastInactivityTsNs    int64
	haveLastInactivity    bool
	currentInactivityTsNs int64
	haveCurrentInactivity bool

	currentMsg     *ctfiter.Message
	currentMsgTsNs int64
	hasCurrentMsg  bool

	// streamWatermarkNs is the highest timestamp this stream has actually
	// carried so far; it is what an untimed message (PacketBeginning,
	// PacketEnd, StreamBeginning, StreamEnd with no packet context)
	// falls back to, so such a message never appears to regress behind
	// the stream's own last known position.
	streamWatermarkNs int64

	hasStreamHungUp  bool
	viewerStreamID   uint64
	ctfStreamClassID uint64
}

// New builds an Iterator over med, decoding against trace with msgIter.
// defaultClock converts a live medium's inactivity cycle snapshots to ns;
// it may be nil for a file-backed stream (inactivity never applies there).
func New(med medium.Medium, msgIter *ctfiter.Iterator, defaultClock *clockclass.ClockClass) *Iterator {
	it := &Iterator{med: med, msgIter: msgIter, clockClass: defaultClock, state: StateActiveNoData}
	if ls, ok := med.(liveSignals); ok {
		it.live = ls
	}
	return it
}

func (it *Iterator) State() State { return it.state }

// HasCurrentMessage reports whether a message is buffered and not yet
// claimed by the muxer's selection pass.
func (it *Iterator) HasCurrentMessage() bool { return it.hasCurrentMsg }

// CurrentMsgTsNs is the watermark timestamp of the buffered message,
// valid only when HasCurrentMessage is true.
func (it *Iterator) CurrentMsgTsNs() int64 { return it.currentMsgTsNs }

// CurrentMessage returns the buffered message without clearing it.
func (it *Iterator) CurrentMessage() *ctfiter.Message { return it.currentMsg }

// LastInactivityTsNs is the most recent inactivity watermark this stream
// has advanced to, used by the muxer's monotonicity rewrite rule.
func (it *Iterator) LastInactivityTsNs() (int64, bool) { return it.lastInactivityTsNs, it.haveLastInactivity }

// ClearCurrent drops the buffered message after the muxer has claimed it.
func (it *Iterator) ClearCurrent() { it.currentMsg = nil; it.hasCurrentMsg = false }

// Advance pulls the next message into the current slot if the slot is
// empty, looping internally over CONTINUE-like internal states (live
// quiescence advance) and only returning OK/AGAIN/END/ERROR upward, per
// spec §4.H.
func (it *Iterator) Advance() (medium.Status, error) {
	if it.hasCurrentMsg {
		return medium.StatusOk, nil
	}
	if it.state == StateEOF {
		return medium.StatusEof, nil
	}

	for {
		if it.live != nil {
			if it.live.HasStreamHungUp() {
				it.hasStreamHungUp = true
			}
			if ts, ok := it.live.TakeInactivity(); ok {
				tsNs := int64(ts)
				if it.clockClass != nil {
					if ns, err := clockclass.CyclesToNsFromOrigin(it.clockClass, ts); err == nil {
						tsNs = ns
					}
				}
				it.currentInactivityTsNs = tsNs
				it.haveCurrentInactivity = true
				it.lastInactivityTsNs = tsNs
				it.haveLastInactivity = true
				if tsNs > it.streamWatermarkNs {
					it.streamWatermarkNs = tsNs
				}
				it.state = StateQuiescent
				msg := &ctfiter.Message{Kind: ctfiter.KindInactivity, StreamID: it.ctfStreamClassID, HasTs: true, TsNs: tsNs, ClockClass: it.clockClass}
				it.currentMsg = msg
				it.currentMsgTsNs = tsNs
				it.hasCurrentMsg = true
				return medium.StatusOk, nil
			}
		}

		msg, status, err := it.msgIter.Next()
		switch status {
		case medium.StatusOk:
			it.state = StateActiveData
			it.currentMsg = msg
			it.currentMsgTsNs = msg.TsNsOrWatermark(it.streamWatermarkNs)
			if it.currentMsgTsNs > it.streamWatermarkNs {
				it.streamWatermarkNs = it.currentMsgTsNs
			}
			it.hasCurrentMsg = true
			return medium.StatusOk, nil
		case medium.StatusAgain:
			if it.hasStreamHungUp {
				// A hung-up live stream that still has no data is
				// functionally done; don't spin the caller forever.
				it.state = StateEOF
				return medium.StatusEof, nil
			}
			it.state = StateActiveNoData
			return medium.StatusAgain, nil
		case medium.StatusEof:
			it.state = StateEOF
			return medium.StatusEof, nil
		case medium.StatusError:
			it.state = StateEOF
			return medium.StatusError, err
		default:
			return medium.StatusError, bterr.New(bterr.KindIO, bterr.ActorMessageIterator, "streamiter", "advance",
				"message iterator returned an unknown status")
		}
	}
}

// HasStreamHungUp reports whether a live medium reported INDEX_HUP.
func (it *Iterator) HasStreamHungUp() bool { return it.hasStreamHungUp }

// SetViewerStreamID/SetCTFStreamClassID record identity fields carried by
// the live attach reply, surfaced for diagnostics and query objects.
func (it *Iterator) SetViewerStreamID(id uint64)   { it.viewerStreamID = id }
func (it *Iterator) SetCTFStreamClassID(id uint64) { it.ctfStreamClassID = id }
func (it *Iterator) ViewerStreamID() uint64        { return it.viewerStreamID }
func (it *Iterator) CTFStreamClassID() uint64      { return it.ctfStreamClassID }
