package ctfiter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/fieldtype"
	"ssw-trace-core/internal/medium"
)

// sliceMedium serves a fixed byte slice through RequestBytes in
// caller-controlled chunks, and can be told to return StatusAgain once
// before resuming — enough to exercise Iterator's resumable assembly.
type sliceMedium struct {
	data      []byte
	pos       int
	chunk     int
	againOnce bool
	firedOnce bool
}

func (m *sliceMedium) RequestBytes(max int) ([]byte, medium.Status, error) {
	if m.pos >= len(m.data) {
		return nil, medium.StatusEof, nil
	}
	if m.againOnce && !m.firedOnce {
		m.firedOnce = true
		return nil, medium.StatusAgain, nil
	}
	n := max
	if m.chunk > 0 && m.chunk < n {
		n = m.chunk
	}
	if m.pos+n > len(m.data) {
		n = len(m.data) - m.pos
	}
	buf := m.data[m.pos : m.pos+n]
	m.pos += n
	return buf, medium.StatusOk, nil
}

func (m *sliceMedium) Seek(uint64) (medium.Status, error) { return medium.StatusError, nil }
func (m *sliceMedium) SwitchPacket() (medium.Status, error) { return medium.StatusOk, nil }
func (m *sliceMedium) BorrowStream(*fieldtype.FieldType, uint64) (medium.StreamHandle, error) {
	return medium.StreamHandle{}, nil
}

func buildTestPacket(t *testing.T, eventTimestamps []uint64) []byte {
	t.Helper()
	const headerLen = 28
	eventLen := 12 // id(u32) + timestamp(u64)
	contentLen := headerLen + eventLen*len(eventTimestamps)
	padding := 4
	total := contentLen + padding

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], packetHeaderMagic)
	binary.BigEndian.PutUint64(buf[4:12], 1) // stream class id
	binary.BigEndian.PutUint64(buf[12:20], uint64(total)*8)
	binary.BigEndian.PutUint64(buf[20:28], uint64(contentLen)*8)

	off := headerLen
	for _, ts := range eventTimestamps {
		binary.BigEndian.PutUint32(buf[off:off+4], 1) // event id
		binary.BigEndian.PutUint64(buf[off+4:off+12], ts)
		off += eventLen
	}
	return buf
}

func buildTestTrace() *Trace {
	hdr := fieldtype.NewStruct("event_header")
	hdr.AddField("id", fieldtype.NewInteger("id", 32, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))
	hdr.AddField("timestamp", fieldtype.NewInteger("timestamp", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))

	tr := NewTrace()
	tr.AddStreamClass(&StreamClass{
		ID:                1,
		EventHeaderType:   hdr,
		EventClasses:      map[uint64]*EventClass{1: {ID: 1, Name: "ev"}},
		DefaultClockClass: clockclass.New("test", 1_000_000_000),
	})
	return tr
}

func TestIteratorEmitsOrderedSequence(t *testing.T) {
	trace := buildTestTrace()
	packet := buildTestPacket(t, []uint64{10, 20, 30})
	it := NewIterator(&sliceMedium{data: packet, chunk: 7}, trace)

	var kinds []Kind
	var tsNs []int64
	for {
		m, status, err := it.Next()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		require.Equal(t, medium.StatusOk, status)
		kinds = append(kinds, m.Kind)
		if m.HasTs {
			tsNs = append(tsNs, m.TsNs)
		}
	}

	require.Equal(t, []Kind{
		KindStreamBeginning,
		KindPacketBeginning,
		KindEvent, KindEvent, KindEvent,
		KindPacketEnd,
		KindStreamEnd,
	}, kinds)
	require.Equal(t, []int64{10, 20, 30}, tsNs)
}

func TestIteratorResumesAfterAgain(t *testing.T) {
	trace := buildTestTrace()
	packet := buildTestPacket(t, []uint64{5})
	it := NewIterator(&sliceMedium{data: packet, chunk: 5, againOnce: true}, trace)

	sawAgain := false
	var kinds []Kind
	for {
		m, status, err := it.Next()
		require.NoError(t, err)
		if status == medium.StatusAgain {
			sawAgain = true
			continue
		}
		if status == medium.StatusEof {
			break
		}
		kinds = append(kinds, m.Kind)
	}
	require.True(t, sawAgain)
	require.Equal(t, []Kind{KindStreamBeginning, KindPacketBeginning, KindEvent, KindPacketEnd, KindStreamEnd}, kinds)
}

func TestIteratorRejectsUnknownStreamClass(t *testing.T) {
	trace := NewTrace()
	buf := make([]byte, 28)
	binary.BigEndian.PutUint32(buf[0:4], packetHeaderMagic)
	binary.BigEndian.PutUint64(buf[4:12], 99)
	binary.BigEndian.PutUint64(buf[12:20], 28*8)
	binary.BigEndian.PutUint64(buf[20:28], 28*8)

	it := NewIterator(&sliceMedium{data: buf}, trace)
	_, status, err := it.Next()
	require.Equal(t, medium.StatusError, status)
	require.Error(t, err)

	// The iterator stays in its terminal error state on subsequent calls.
	_, status2, err2 := it.Next()
	require.Equal(t, medium.StatusError, status2)
	require.Equal(t, err, err2)
}
