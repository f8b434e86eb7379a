// Package ctfiter implements the CTF message iterator: a state machine
// decoding packets out of a byte medium into the ordered message sum
// type the rest of the pipeline consumes.
package ctfiter

import (
	"reflect"

	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/value"
)

// Kind is the message sum type's variant tag. The numeric order is the
// tie-break priority used when two messages share a timestamp:
// StreamBeginning < PacketBeginning < Event < DiscardedEvents <
// DiscardedPackets < MsgIteratorInactivity < PacketEnd < StreamEnd.
type Kind int

const (
	KindStreamBeginning Kind = iota
	KindPacketBeginning
	KindEvent
	KindDiscardedEvents
	KindDiscardedPackets
	KindInactivity
	KindPacketEnd
	KindStreamEnd
)

func (k Kind) String() string {
	switch k {
	case KindStreamBeginning:
		return "stream_beginning"
	case KindPacketBeginning:
		return "packet_beginning"
	case KindEvent:
		return "event"
	case KindDiscardedEvents:
		return "discarded_events"
	case KindDiscardedPackets:
		return "discarded_packets"
	case KindInactivity:
		return "msg_iterator_inactivity"
	case KindPacketEnd:
		return "packet_end"
	case KindStreamEnd:
		return "stream_end"
	default:
		return "unknown"
	}
}

// PacketProperties is published once header+context decode completes
// for a packet.
type PacketProperties struct {
	TotalSizeBits   uint64
	ContentSizeBits uint64
	StreamClassID   uint64
	DataStreamID    uint64
	HasDataStreamID bool
	DiscardedEvents uint64
	Packets         uint64
	BeginningCycles uint64
	HasBeginning    bool
	EndCycles       uint64
	HasEnd          bool
}

// Message is the sum type every iterator in the pipeline emits.
// Exactly the fields relevant to Kind are populated; the rest are zero.
type Message struct {
	Kind Kind

	StreamID    uint64
	ClockClass  *clockclass.ClockClass
	Cycles      uint64
	TsNs        int64
	HasTs       bool

	// Event
	EventClassID uint64
	EventName    string
	Payload      *value.Value

	// DiscardedEvents / DiscardedPackets
	DiscardedCount uint64
	RangeBeginNs   int64
	RangeEndNs     int64

	// Packet beginning/end
	PacketProps *PacketProperties
}

// TsNsOrWatermark returns the message's own timestamp if it carries
// one, or fallback otherwise — used by the muxer for messages (like
// StreamBeginning) that don't carry a clock snapshot of their own.
func (m *Message) TsNsOrWatermark(fallback int64) int64 {
	if m.HasTs {
		return m.TsNs
	}
	return fallback
}

// CompareMessages totally orders two messages sharing the same
// msg_ts_ns: (1) stream id ascending, (2) Kind priority, (3) pointer
// identity (arbitrary but stable). reachedIdentityTiebreak is true when
// step 3 was needed, so a caller can log a warning.
func CompareMessages(a, b *Message) (cmp int, reachedIdentityTiebreak bool) {
	if a.StreamID != b.StreamID {
		if a.StreamID < b.StreamID {
			return -1, false
		}
		return 1, false
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1, false
		}
		return 1, false
	}
	pa, pb := reflect.ValueOf(a).Pointer(), reflect.ValueOf(b).Pointer()
	if pa == pb {
		return 0, false
	}
	if pa < pb {
		return -1, true
	}
	return 1, true
}
