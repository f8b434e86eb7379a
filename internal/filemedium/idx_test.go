package filemedium

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildIdxBytes(entries [][7]uint64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(IdxMagic))
	binary.Write(&buf, binary.BigEndian, uint32(1)) // major
	binary.Write(&buf, binary.BigEndian, uint32(0)) // minor
	binary.Write(&buf, binary.BigEndian, uint32(minEntryStride))
	buf.Write(make([]byte, 56-16)) // pad header to 56 bytes total
	for _, e := range entries {
		for _, f := range e {
			binary.Write(&buf, binary.BigEndian, f)
		}
	}
	return buf.Bytes()
}

func TestParseIdxBytesValid(t *testing.T) {
	data := buildIdxBytes([][7]uint64{
		{0, 800, 800, 10, 20, 0, 1},
		{100, 800, 800, 30, 40, 0, 1},
	})
	entries, err := ParseIdxBytes(data, "nonexistent.idx")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(10), entries[0].TsBeginCycles)
}

func TestParseIdxBytesRejectsBadMagic(t *testing.T) {
	data := buildIdxBytes(nil)
	data[0] = 0xFF
	_, err := ParseIdxBytes(data, "x.idx")
	require.Error(t, err)
}

func TestParseIdxBytesRejectsTsEndBeforeTsBegin(t *testing.T) {
	data := buildIdxBytes([][7]uint64{{0, 800, 800, 50, 10, 0, 1}})
	_, err := ParseIdxBytes(data, "x.idx")
	require.Error(t, err)
}

func TestParseIdxBytesRejectsNonMonotonicOffset(t *testing.T) {
	data := buildIdxBytes([][7]uint64{
		{100, 800, 800, 10, 20, 0, 1},
		{0, 800, 800, 30, 40, 0, 1},
	})
	_, err := ParseIdxBytes(data, "x.idx")
	require.Error(t, err)
}

func TestParseIdxBytesRejectsPacketSizeNotMultipleOf8(t *testing.T) {
	data := buildIdxBytes([][7]uint64{{0, 801, 800, 10, 20, 0, 1}})
	_, err := ParseIdxBytes(data, "x.idx")
	require.Error(t, err)
}

func TestParseIdxBytesRejectsShortHeader(t *testing.T) {
	_, err := ParseIdxBytes([]byte{1, 2, 3}, "x.idx")
	require.Error(t, err)
}
