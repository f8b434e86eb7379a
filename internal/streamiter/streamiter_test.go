package streamiter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/clockclass"
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/fieldtype"
	"ssw-trace-core/internal/medium"
)

const packetHeaderMagic = 0xC1FC1FC1

// fakeMedium is a minimal file-flavored medium: a fixed byte slice with
// no live signals attached, enough to drive a real ctfiter.Iterator.
type fakeMedium struct {
	data []byte
	pos  int
}

func (m *fakeMedium) RequestBytes(max int) ([]byte, medium.Status, error) {
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

func (m *fakeMedium) Seek(uint64) (medium.Status, error)        { return medium.StatusError, nil }
func (m *fakeMedium) SwitchPacket() (medium.Status, error)      { return medium.StatusOk, nil }
func (m *fakeMedium) BorrowStream(*fieldtype.FieldType, uint64) (medium.StreamHandle, error) {
	return medium.StreamHandle{}, nil
}

// fakeLiveMedium additionally satisfies the package-private liveSignals
// interface (HasStreamHungUp/TakeInactivity), the same way
// internal/livemedium.Medium does, without importing that package.
type fakeLiveMedium struct {
	fakeMedium
	hungUp        bool
	inactivityTs  uint64
	hasInactivity bool
}

func (m *fakeLiveMedium) HasStreamHungUp() bool { return m.hungUp }

func (m *fakeLiveMedium) TakeInactivity() (uint64, bool) {
	if !m.hasInactivity {
		return 0, false
	}
	m.hasInactivity = false
	return m.inactivityTs, true
}

func buildPacket(t *testing.T, eventTimestamps []uint64) []byte {
	t.Helper()
	const headerLen = 28
	const eventLen = 12
	contentLen := headerLen + eventLen*len(eventTimestamps)
	total := contentLen + 4

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], packetHeaderMagic)
	binary.BigEndian.PutUint64(buf[4:12], 1)
	binary.BigEndian.PutUint64(buf[12:20], uint64(total)*8)
	binary.BigEndian.PutUint64(buf[20:28], uint64(contentLen)*8)

	off := headerLen
	for _, ts := range eventTimestamps {
		binary.BigEndian.PutUint32(buf[off:off+4], 1)
		binary.BigEndian.PutUint64(buf[off+4:off+12], ts)
		off += eventLen
	}
	return buf
}

func buildTrace() *ctfiter.Trace {
	hdr := fieldtype.NewStruct("event_header")
	hdr.AddField("id", fieldtype.NewInteger("id", 32, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))
	hdr.AddField("timestamp", fieldtype.NewInteger("timestamp", 64, false, fieldtype.BaseDecimal, fieldtype.EncodingNone))

	tr := ctfiter.NewTrace()
	tr.AddStreamClass(&ctfiter.StreamClass{
		ID:                1,
		EventHeaderType:   hdr,
		EventClasses:      map[uint64]*ctfiter.EventClass{1: {ID: 1, Name: "ev"}},
		DefaultClockClass: clockclass.New("test", 1_000_000_000),
	})
	return tr
}

func TestAdvanceTransitionsActiveNoDataToActiveData(t *testing.T) {
	trace := buildTrace()
	med := &fakeMedium{data: buildPacket(t, []uint64{10})}
	it := New(med, ctfiter.NewIterator(med, trace), nil)

	require.Equal(t, StateActiveNoData, it.State())

	status, err := it.Advance()
	require.NoError(t, err)
	require.Equal(t, medium.StatusOk, status)
	require.Equal(t, StateActiveData, it.State())
	require.True(t, it.HasCurrentMessage())
	require.Equal(t, ctfiter.KindStreamBeginning, it.CurrentMessage().Kind)
}

func TestAdvanceReturnsCurrentMessageWithoutRepulling(t *testing.T) {
	trace := buildTrace()
	med := &fakeMedium{data: buildPacket(t, []uint64{10})}
	it := New(med, ctfiter.NewIterator(med, trace), nil)

	_, err := it.Advance()
	require.NoError(t, err)
	first := it.CurrentMessage()

	status, err := it.Advance()
	require.NoError(t, err)
	require.Equal(t, medium.StatusOk, status)
	require.Same(t, first, it.CurrentMessage())
}

func TestAdvanceReachesEOFAfterStreamEnd(t *testing.T) {
	trace := buildTrace()
	med := &fakeMedium{data: buildPacket(t, []uint64{10})}
	it := New(med, ctfiter.NewIterator(med, trace), nil)

	var kinds []ctfiter.Kind
	for {
		status, err := it.Advance()
		require.NoError(t, err)
		if status == medium.StatusEof {
			break
		}
		require.Equal(t, medium.StatusOk, status)
		kinds = append(kinds, it.CurrentMessage().Kind)
		it.ClearCurrent()
	}
	require.Equal(t, StateEOF, it.State())
	require.Equal(t, []ctfiter.Kind{
		ctfiter.KindStreamBeginning,
		ctfiter.KindPacketBeginning,
		ctfiter.KindEvent,
		ctfiter.KindPacketEnd,
		ctfiter.KindStreamEnd,
	}, kinds)
}

func TestAdvanceLiveInactivityEntersQuiescent(t *testing.T) {
	cc := clockclass.New("live", 1_000_000_000)
	trace := buildTrace()
	med := &fakeLiveMedium{hasInactivity: true, inactivityTs: 500}
	it := New(med, ctfiter.NewIterator(med, trace), cc)

	status, err := it.Advance()
	require.NoError(t, err)
	require.Equal(t, medium.StatusOk, status)
	require.Equal(t, StateQuiescent, it.State())
	require.True(t, it.HasCurrentMessage())
	require.Equal(t, ctfiter.KindInactivity, it.CurrentMessage().Kind)
	require.Equal(t, int64(500), it.CurrentMsgTsNs())

	last, ok := it.LastInactivityTsNs()
	require.True(t, ok)
	require.Equal(t, int64(500), last)
}

func TestAdvanceHungUpStreamWithNoDataReachesEOF(t *testing.T) {
	trace := buildTrace()
	med := &fakeLiveMedium{hungUp: true}
	med.data = nil
	it := New(med, ctfiter.NewIterator(med, trace), nil)

	status, err := it.Advance()
	require.NoError(t, err)
	require.Equal(t, medium.StatusEof, status)
	require.Equal(t, StateEOF, it.State())
	require.True(t, it.HasStreamHungUp())
}

// againMedium always reports StatusAgain, never EOF, modeling a live
// medium momentarily out of data with no hang-up signaled.
type againMedium struct{ fakeLiveMedium }

func (m *againMedium) RequestBytes(int) ([]byte, medium.Status, error) {
	return nil, medium.StatusAgain, nil
}

func TestAdvanceAgainLeavesActiveNoData(t *testing.T) {
	trace := buildTrace()
	med := &againMedium{}
	it := New(med, ctfiter.NewIterator(med, trace), nil)

	status, err := it.Advance()
	require.NoError(t, err)
	require.Equal(t, medium.StatusAgain, status)
	require.Equal(t, StateActiveNoData, it.State())
	require.False(t, it.HasStreamHungUp())
}

func TestViewerAndStreamClassIDRoundTrip(t *testing.T) {
	trace := buildTrace()
	med := &fakeMedium{data: buildPacket(t, []uint64{1})}
	it := New(med, ctfiter.NewIterator(med, trace), nil)

	it.SetViewerStreamID(7)
	it.SetCTFStreamClassID(3)
	require.Equal(t, uint64(7), it.ViewerStreamID())
	require.Equal(t, uint64(3), it.CTFStreamClassID())
}
