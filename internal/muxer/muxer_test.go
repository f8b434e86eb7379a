package muxer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/fieldtype"
	"ssw-trace-core/internal/medium"
	"ssw-trace-core/internal/streamiter"
)

const packetHeaderMagic = 0xC1FC1FC1

// fixedMedium serves one pre-built packet once, then reports EOF.
type fixedMedium struct {
	data []byte
	pos  int
	done bool
}

func (m *fixedMedium) RequestBytes(max int) ([]byte, medium.Status, error) {
	if m.pos >= len(m.data) {
		return nil, medium.StatusEof, nil
	}
	n := max
	if m.pos+n > len(m.data) {
		n = len(m.data) - m.pos
	}
	buf := m.data[m.pos : m.pos+n]
	m.pos += n
	return buf, medium.StatusOk, nil
}
func (m *fixedMedium) Seek(uint64) (medium.Status, error)           { return medium.StatusError, nil }
func (m *fixedMedium) SwitchPacket() (medium.Status, error)         { return medium.StatusOk, nil }
func (m *fixedMedium) BorrowStream(_ *fieldtype.FieldType, streamID uint64) (medium.StreamHandle, error) {
	return medium.StreamHandle{StreamID: streamID}, nil
}

func buildPacket(streamClassID uint64, eventTimestamps []uint64) []byte {
	const headerLen = 28
	eventLen := 12
	contentLen := headerLen + eventLen*len(eventTimestamps)
	buf := make([]byte, contentLen)
	binary.BigEndian.PutUint32(buf[0:4], packetHeaderMagic)
	binary.BigEndian.PutUint64(buf[4:12], streamClassID)
	binary.BigEndian.PutUint64(buf[12:20], uint64(contentLen)*8)
	binary.BigEndian.PutUint64(buf[20:28], uint64(contentLen)*8)
	off := headerLen
	for _, ts := range eventTimestamps {
		binary.BigEndian.PutUint32(buf[off:off+4], 1)
		binary.BigEndian.PutUint64(buf[off+4:off+12], ts)
		off += eventLen
	}
	return buf
}

func buildTrace(streamClassIDs ...uint64) *ctfiter.Trace {
	hdr := fieldtype.NewStruct("event_header")
	hdr.AddField("id", fieldtype.NewInteger("id", 32, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))
	hdr.AddField("timestamp", fieldtype.NewInteger("timestamp", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))

	tr := ctfiter.NewTrace()
	for _, id := range streamClassIDs {
		tr.AddStreamClass(&ctfiter.StreamClass{
			ID:                id,
			EventHeaderType:   hdr,
			EventClasses:      map[uint64]*ctfiter.EventClass{1: {ID: 1, Name: "ev"}},
			DefaultClockClass: clockclass.New("test", 1_000_000_000),
		})
	}
	return tr
}

func newStream(t *testing.T, streamClassID uint64, eventTimestamps []uint64) *streamiter.Iterator {
	t.Helper()
	trace := buildTrace(streamClassID)
	med := &fixedMedium{data: buildPacket(streamClassID, eventTimestamps)}
	msgIter := ctfiter.NewIterator(med, trace)
	return streamiter.New(med, msgIter, nil)
}

func TestMuxerOrdersByTimestampAcrossStreams(t *testing.T) {
	a := newStream(t, 1, []uint64{10, 30})
	b := newStream(t, 2, []uint64{20, 40})
	mux := New([]*streamiter.Iterator{a, b})

	var eventTs []int64
	for {
		msg, status, err := mux.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		require.Equal(t, medium.StatusOk, status)
		if msg.Kind == ctfiter.KindEvent {
			eventTs = append(eventTs, msg.TsNs)
		}
	}
	require.Equal(t, []int64{10, 20, 30, 40}, eventTs)
}

func TestMuxerEmptyUpstreamsIsImmediateEOF(t *testing.T) {
	mux := New(nil)
	_, status, err := mux.Next()
	require.NoError(t, err)
	require.Equal(t, medium.StatusEof, status)
}

// TestMuxerTieBreaksIdenticalTimestampsBySmallerStreamID covers §8
// scenario 2: two streams each emit an event at the same timestamp, and
// the stream with the numerically smaller id is emitted first.
func TestMuxerTieBreaksIdenticalTimestampsBySmallerStreamID(t *testing.T) {
	higher := newStream(t, 5, []uint64{50})
	lower := newStream(t, 2, []uint64{50})
	mux := New([]*streamiter.Iterator{higher, lower})

	var eventStreamIDs []uint64
	for {
		msg, status, err := mux.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		require.Equal(t, medium.StatusOk, status)
		if msg.Kind == ctfiter.KindEvent {
			eventStreamIDs = append(eventStreamIDs, msg.StreamID)
		}
	}
	require.Equal(t, []uint64{2, 5}, eventStreamIDs)
}

// liveMedium wraps fixedMedium with the live-protocol signals a real
// internal/livemedium.Medium carries (quiescence inactivity ticks, stream
// hang-up), so a real streamiter.Iterator drives the muxer's watermark
// rewrite and reply-code-mapping rules under test. alwaysAgain models a
// live medium that never reports EOF on its own, only AGAIN, until a
// hang-up lets the stream iterator convert that into EOF itself.
type liveMedium struct {
	fixedMedium
	hungUp        bool
	alwaysAgain   bool
	inactivityTs  uint64
	hasInactivity bool
}

func (m *liveMedium) RequestBytes(max int) ([]byte, medium.Status, error) {
	if m.alwaysAgain && m.pos >= len(m.data) {
		return nil, medium.StatusAgain, nil
	}
	return m.fixedMedium.RequestBytes(max)
}

func (m *liveMedium) HasStreamHungUp() bool { return m.hungUp }

func (m *liveMedium) TakeInactivity() (uint64, bool) {
	if !m.hasInactivity {
		return 0, false
	}
	m.hasInactivity = false
	return m.inactivityTs, true
}

func buildDiscardedEventsPacket(streamClassID, beginCycles, endCycles, discardedEvents uint64) []byte {
	const headerLen = 28
	const ctxLen = 24
	contentLen := headerLen + ctxLen
	buf := make([]byte, contentLen)
	binary.BigEndian.PutUint32(buf[0:4], packetHeaderMagic)
	binary.BigEndian.PutUint64(buf[4:12], streamClassID)
	binary.BigEndian.PutUint64(buf[12:20], uint64(contentLen)*8)
	binary.BigEndian.PutUint64(buf[20:28], uint64(contentLen)*8)
	binary.BigEndian.PutUint64(buf[28:36], beginCycles)
	binary.BigEndian.PutUint64(buf[36:44], endCycles)
	binary.BigEndian.PutUint64(buf[44:52], discardedEvents)
	return buf
}

func buildTraceWithPacketContext(streamClassID uint64, clock *clockclass.ClockClass) *ctfiter.Trace {
	hdr := fieldtype.NewStruct("event_header")
	hdr.AddField("id", fieldtype.NewInteger("id", 32, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))
	hdr.AddField("timestamp", fieldtype.NewInteger("timestamp", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))

	ctx := fieldtype.NewStruct("packet_context")
	ctx.AddField("timestamp_begin", fieldtype.NewInteger("timestamp_begin", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))
	ctx.AddField("timestamp_end", fieldtype.NewInteger("timestamp_end", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))
	ctx.AddField("events_discarded", fieldtype.NewInteger("events_discarded", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))

	tr := ctfiter.NewTrace()
	tr.AddStreamClass(&ctfiter.StreamClass{
		ID:                streamClassID,
		EventHeaderType:   hdr,
		PacketContextType: ctx,
		EventClasses:      map[uint64]*ctfiter.EventClass{1: {ID: 1, Name: "ev"}},
		DefaultClockClass: clock,
	})
	return tr
}

// TestMuxerRewritesRegressedTimestampUsingInactivityWatermark covers §8
// scenario 3: inactivity reaches ts=500, then a DiscardedEvents message
// declaring ts_begin=400/ts_end=550 must be rewritten to begin at 500
// with its count and end timestamp preserved.
func TestMuxerRewritesRegressedTimestampUsingInactivityWatermark(t *testing.T) {
	clock := clockclass.New("live", 1_000_000_000)
	trace := buildTraceWithPacketContext(7, clock)
	packet := buildDiscardedEventsPacket(7, 400, 550, 5)
	med := &liveMedium{fixedMedium: fixedMedium{data: packet}, hasInactivity: true, inactivityTs: 500}
	it := streamiter.New(med, ctfiter.NewIterator(med, trace), clock)

	mux := New([]*streamiter.Iterator{it})

	var discarded *ctfiter.Message
	for {
		msg, status, err := mux.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		require.Equal(t, medium.StatusOk, status)
		if msg.Kind == ctfiter.KindDiscardedEvents {
			discarded = msg
		}
	}

	require.NotNil(t, discarded)
	require.True(t, discarded.HasTs)
	require.Equal(t, int64(500), discarded.TsNs)
	require.Equal(t, uint64(5), discarded.DiscardedCount)
	require.Equal(t, int64(550), discarded.RangeEndNs)
}

// TestMuxerHungUpStreamEndsWithoutStreamEndWhileOtherContinues covers §8
// scenario 4: a live stream that hangs up stops as soon as its medium has
// nothing left to offer, with no synthesized StreamEnd, while the muxer
// keeps draining the other upstream to its own completion.
func TestMuxerHungUpStreamEndsWithoutStreamEndWhileOtherContinues(t *testing.T) {
	hungTrace := buildTrace(9)
	hungPacket := buildPacket(9, []uint64{5})
	hungMed := &liveMedium{fixedMedium: fixedMedium{data: hungPacket}, hungUp: true, alwaysAgain: true}
	hungIter := streamiter.New(hungMed, ctfiter.NewIterator(hungMed, hungTrace), nil)

	other := newStream(t, 3, []uint64{1, 2, 3})

	mux := New([]*streamiter.Iterator{hungIter, other})

	var hungKinds []ctfiter.Kind
	var otherEventTs []int64
	for {
		msg, status, err := mux.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		require.Equal(t, medium.StatusOk, status)
		if msg.StreamID == 9 {
			hungKinds = append(hungKinds, msg.Kind)
		} else if msg.Kind == ctfiter.KindEvent {
			otherEventTs = append(otherEventTs, msg.TsNs)
		}
	}

	require.Equal(t, []ctfiter.Kind{
		ctfiter.KindStreamBeginning,
		ctfiter.KindPacketBeginning,
		ctfiter.KindEvent,
		ctfiter.KindPacketEnd,
	}, hungKinds)
	require.Equal(t, []int64{1, 2, 3}, otherEventTs)
	require.True(t, hungIter.HasStreamHungUp())
}
