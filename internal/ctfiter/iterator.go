package ctfiter

import (
	"encoding/binary"
	"fmt"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/medium"
	"ssw-trace-core/internal/value"
)

// packetHeaderMagic/packetHeaderSizeBytes mirror the fixed prefix
// internal/filemedium's scan-fallback indexer reads without decoding a
// full packet: magic(4) + stream_class_id(8) + packet_size_bits(8) +
// content_size_bits(8). The two packages stay byte-compatible without
// importing one another, since the indexer only ever needs this prefix
// while Iterator needs the whole packet.
const (
	packetHeaderMagic    = 0xC1FC1FC1
	packetHeaderSizeBytes = 28
)

type packetHeader struct {
	StreamClassID   uint64
	PacketSizeBits  uint64
	ContentSizeBits uint64
}

func decodePacketHeader(buf []byte) (packetHeader, error) {
	if len(buf) < packetHeaderSizeBytes {
		return packetHeader{}, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_header",
			"short read on packet header")
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != packetHeaderMagic {
		return packetHeader{}, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_header",
			fmt.Sprintf("bad packet magic 0x%x", magic))
	}
	return packetHeader{
		StreamClassID:   binary.BigEndian.Uint64(buf[4:12]),
		PacketSizeBits:  binary.BigEndian.Uint64(buf[12:20]),
		ContentSizeBits: binary.BigEndian.Uint64(buf[20:28]),
	}, nil
}

// Iterator decodes one logical stream's packets out of a medium into the
// ordered Message sequence described in spec §4.G: StreamBeginning (once)
// -> repeated (PacketBeginning -> events -> PacketEnd) -> StreamEnd (on
// medium EOF). It never blocks: a medium AGAIN surfaces as StatusAgain
// with no progress lost, resumed verbatim on the next Next() call.
type Iterator struct {
	med   medium.Medium
	trace *Trace

	streamID        uint64
	streamResolved  bool
	emittedBegin    bool
	exhausted       bool

	acc       []byte // bytes accumulated so far for the in-flight packet
	targetLen int     // full packet size in bytes; 0 until the header is known

	hdr packetHeader

	lastDiscardedEvents uint64
	haveLastSeq         bool
	lastSeq             uint64

	lastProps *PacketProperties

	pending     []*Message
	terminalErr error
}

// NewIterator builds an Iterator decoding med against trace's stream
// classes. trace is treated as immutable for the iterator's lifetime.
func NewIterator(med medium.Medium, trace *Trace) *Iterator {
	return &Iterator{med: med, trace: trace}
}

// LastPacketProperties returns the properties published by the most
// recently decoded packet, or nil if none has been decoded yet.
func (it *Iterator) LastPacketProperties() *PacketProperties { return it.lastProps }

func (it *Iterator) queue(m *Message) { it.pending = append(it.pending, m) }

// Next returns the next message in emission order. A nil message with
// StatusAgain means "call again later, no bytes were lost"; StatusEof
// means the stream is fully drained (StreamEnd has already been
// returned); StatusError means the iterator has entered its terminal
// error state and will return the same error on every subsequent call,
// except for an Interrupted error, which is not latched: a later call
// attempts to decode again.
func (it *Iterator) Next() (*Message, medium.Status, error) {
	if it.terminalErr != nil {
		return nil, medium.StatusError, it.terminalErr
	}
	if len(it.pending) > 0 {
		return it.pop(), medium.StatusOk, nil
	}
	if it.exhausted {
		return nil, medium.StatusEof, nil
	}

	if err := it.decodeMore(); err != nil {
		if bterr.IsAgain(err) {
			return nil, medium.StatusAgain, nil
		}
		if bterr.IsInterrupted(err) {
			return nil, medium.StatusError, err
		}
		it.terminalErr = err
		return nil, medium.StatusError, err
	}

	if len(it.pending) == 0 {
		// Nothing queued and no error: medium made no progress this call.
		return nil, medium.StatusAgain, nil
	}
	return it.pop(), medium.StatusOk, nil
}

func (it *Iterator) pop() *Message {
	m := it.pending[0]
	it.pending = it.pending[1:]
	return m
}

// decodeMore assembles and decodes exactly one packet (queuing every
// message it produces) or detects true stream EOF, queuing StreamEnd.
func (it *Iterator) decodeMore() error {
	for {
		if it.targetLen == 0 {
			if len(it.acc) < packetHeaderSizeBytes {
				buf, status, err := it.med.RequestBytes(packetHeaderSizeBytes - len(it.acc))
				if err != nil {
					return err
				}
				switch status {
				case medium.StatusOk:
					it.acc = append(it.acc, buf...)
					continue
				case medium.StatusAgain:
					return bterr.Again(bterr.ActorMessageIterator, "ctfiter", "decode")
				case medium.StatusEof:
					if len(it.acc) == 0 {
						return it.finalizeStreamEnd()
					}
					return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode",
						"medium EOF in the middle of a packet header")
				default:
					return bterr.New(bterr.KindIO, bterr.ActorMessageIterator, "ctfiter", "decode", "medium returned an unknown status")
				}
			}
			hdr, err := decodePacketHeader(it.acc)
			if err != nil {
				return err
			}
			it.hdr = hdr
			it.targetLen = int(hdr.PacketSizeBits / 8)
			if it.targetLen < packetHeaderSizeBytes {
				return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode",
					"packet_size is smaller than the fixed header")
			}
			continue
		}

		if len(it.acc) < it.targetLen {
			buf, status, err := it.med.RequestBytes(it.targetLen - len(it.acc))
			if err != nil {
				return err
			}
			switch status {
			case medium.StatusOk:
				it.acc = append(it.acc, buf...)
				continue
			case medium.StatusAgain:
				return bterr.Again(bterr.ActorMessageIterator, "ctfiter", "decode")
			case medium.StatusEof:
				return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode",
					"medium EOF in the middle of a packet body")
			default:
				return bterr.New(bterr.KindIO, bterr.ActorMessageIterator, "ctfiter", "decode", "medium returned an unknown status")
			}
		}

		full := it.acc
		it.acc = nil
		it.targetLen = 0
		return it.decodePacket(full)
	}
}

func (it *Iterator) finalizeStreamEnd() error {
	it.exhausted = true
	it.queue(&Message{Kind: KindStreamEnd, StreamID: it.streamID})
	return nil
}

func asU64(v *value.Value) uint64 {
	if v == nil {
		return 0
	}
	switch v.Kind() {
	case value.KindU64:
		return v.AsU64()
	case value.KindS64:
		return uint64(v.AsS64())
	default:
		return 0
	}
}

// decodePacket decodes one fully-assembled packet (header already
// stripped into it.hdr, full still includes the header bytes since the
// cursor seeks past them) and queues every message it produces.
func (it *Iterator) decodePacket(full []byte) error {
	sc, ok := it.trace.StreamClasses[it.hdr.StreamClassID]
	if !ok {
		return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet",
			fmt.Sprintf("unknown stream class id %d", it.hdr.StreamClassID))
	}

	if !it.streamResolved {
		if _, err := it.med.BorrowStream(nil, it.hdr.StreamClassID); err != nil {
			return bterr.Wrap(err, bterr.KindProtocol, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "borrow_stream")
		}
		it.streamID = it.hdr.StreamClassID
		it.streamResolved = true
	}

	c := &cursor{buf: full, pos: packetHeaderSizeBytes}
	props := &PacketProperties{
		TotalSizeBits:   it.hdr.PacketSizeBits,
		ContentSizeBits: it.hdr.ContentSizeBits,
		StreamClassID:   it.hdr.StreamClassID,
	}

	if sc.PacketContextType != nil {
		ctxVal, err := decodeValue(sc.PacketContextType, c, nil)
		if err != nil {
			return bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "packet context")
		}
		if v, ok := ctxVal.Get("stream_instance_id"); ok {
			props.DataStreamID = asU64(v)
			props.HasDataStreamID = true
		}
		if v, ok := ctxVal.Get("timestamp_begin"); ok {
			props.BeginningCycles = asU64(v)
			props.HasBeginning = true
		}
		if v, ok := ctxVal.Get("timestamp_end"); ok {
			props.EndCycles = asU64(v)
			props.HasEnd = true
		}
		if props.HasEnd && props.HasBeginning && props.EndCycles < props.BeginningCycles {
			return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet",
				"packet context: ts_end < ts_begin")
		}
		if v, ok := ctxVal.Get("events_discarded"); ok {
			props.DiscardedEvents = asU64(v)
		}
		if v, ok := ctxVal.Get("packets"); ok {
			props.Packets = asU64(v)
		}
		if v, ok := ctxVal.Get("packet_seq_num"); ok {
			seq := asU64(v)
			if it.haveLastSeq && seq > it.lastSeq+1 {
				it.queue(&Message{Kind: KindDiscardedPackets, StreamID: it.streamID, DiscardedCount: seq - it.lastSeq - 1})
			}
			it.lastSeq = seq
			it.haveLastSeq = true
		}
	}
	it.lastProps = props

	if !it.emittedBegin {
		it.emittedBegin = true
		it.queue(&Message{Kind: KindStreamBeginning, StreamID: it.streamID})
	}

	begMsg := &Message{Kind: KindPacketBeginning, StreamID: it.streamID, PacketProps: props}
	if props.HasBeginning && sc.DefaultClockClass != nil {
		ns, err := clockclass.CyclesToNsFromOrigin(sc.DefaultClockClass, props.BeginningCycles)
		if err != nil {
			return bterr.Wrap(err, bterr.KindClockOverflow, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "packet beginning ts")
		}
		begMsg.HasTs, begMsg.TsNs, begMsg.ClockClass = true, ns, sc.DefaultClockClass
	}
	it.queue(begMsg)

	if props.DiscardedEvents > it.lastDiscardedEvents {
		delta := props.DiscardedEvents - it.lastDiscardedEvents
		discMsg := &Message{Kind: KindDiscardedEvents, StreamID: it.streamID, DiscardedCount: delta}
		if sc.DefaultClockClass != nil {
			if props.HasBeginning {
				ns, err := clockclass.CyclesToNsFromOrigin(sc.DefaultClockClass, props.BeginningCycles)
				if err == nil {
					discMsg.RangeBeginNs = ns
					discMsg.HasTs = true
					discMsg.TsNs = ns
					discMsg.ClockClass = sc.DefaultClockClass
				}
			}
			if props.HasEnd {
				if ns, err := clockclass.CyclesToNsFromOrigin(sc.DefaultClockClass, props.EndCycles); err == nil {
					discMsg.RangeEndNs = ns
				}
			}
		}
		it.queue(discMsg)
		it.lastDiscardedEvents = props.DiscardedEvents
	}

	contentBytes := int(props.ContentSizeBits / 8)
	for c.pos < contentBytes {
		if sc.EventHeaderType == nil {
			return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet",
				"content remains but stream class has no event header type")
		}
		hv, err := decodeValue(sc.EventHeaderType, c, nil)
		if err != nil {
			return bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "event header")
		}
		idVal, ok := hv.Get("id")
		if !ok {
			return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet",
				"event header has no \"id\" field")
		}
		eventID := asU64(idVal)
		ec, ok := sc.EventClasses[eventID]
		if !ok {
			return bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet",
				fmt.Sprintf("unknown event class id %d", eventID))
		}

		if sc.EventContextType != nil {
			if _, err := decodeValue(sc.EventContextType, c, nil); err != nil {
				return bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "event context")
			}
		}
		var payload *value.Value
		if ec.PayloadType != nil {
			payload, err = decodeValue(ec.PayloadType, c, nil)
			if err != nil {
				return bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "event payload")
			}
		}

		evMsg := &Message{Kind: KindEvent, StreamID: it.streamID, EventClassID: eventID, EventName: ec.Name, Payload: payload}
		if tsVal, ok := hv.Get("timestamp"); ok && sc.DefaultClockClass != nil {
			cycles := asU64(tsVal)
			ns, err := clockclass.CyclesToNsFromOrigin(sc.DefaultClockClass, cycles)
			if err != nil {
				return bterr.Wrap(err, bterr.KindClockOverflow, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "event timestamp")
			}
			evMsg.HasTs, evMsg.TsNs, evMsg.Cycles, evMsg.ClockClass = true, ns, cycles, sc.DefaultClockClass
		}
		it.queue(evMsg)
	}

	endMsg := &Message{Kind: KindPacketEnd, StreamID: it.streamID}
	if props.HasEnd && sc.DefaultClockClass != nil {
		ns, err := clockclass.CyclesToNsFromOrigin(sc.DefaultClockClass, props.EndCycles)
		if err != nil {
			return bterr.Wrap(err, bterr.KindClockOverflow, bterr.ActorMessageIterator, "ctfiter", "decode_packet", "packet end ts")
		}
		endMsg.HasTs, endMsg.TsNs, endMsg.ClockClass = true, ns, sc.DefaultClockClass
	}
	it.queue(endMsg)

	return nil
}
