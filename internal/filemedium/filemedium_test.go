package filemedium

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ssw-trace-core/internal/medium"
)

// writePacket appends one fixed-header packet (header + zero-filled
// payload) of totalBits bits to buf.
func writePacket(streamID uint64, totalBits, contentBits uint64) []byte {
	buf := make([]byte, totalBits/8)
	binary.BigEndian.PutUint32(buf[0:4], packetHeaderMagic)
	binary.BigEndian.PutUint64(buf[4:12], streamID)
	binary.BigEndian.PutUint64(buf[12:20], totalBits)
	binary.BigEndian.PutUint64(buf[20:28], contentBits)
	return buf
}

func TestScanIndexFindsAllPackets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream_0")

	var data []byte
	data = append(data, writePacket(1, 256, 200)...)
	data = append(data, writePacket(1, 320, 300)...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	entries, err := scanIndex(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint64(0), entries[0].Offset)
	require.Equal(t, uint64(32), entries[1].Offset) // 256 bits = 32 bytes
}

func TestFileMediumRequestBytesReadsThroughEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream_0")

	data := writePacket(1, 256, 200)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fm, err := Open([]string{path}, 8)
	require.NoError(t, err)
	defer fm.Close()

	buf, status, err := fm.RequestBytes(4096)
	require.NoError(t, err)
	require.Equal(t, medium.StatusOk, status)
	require.Equal(t, len(data), len(buf))

	_, status, err = fm.RequestBytes(4096)
	require.NoError(t, err)
	require.Equal(t, medium.StatusEof, status)
}

func TestFileMediumSeek(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream_0")
	data := writePacket(1, 256, 200)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fm, err := Open([]string{path}, 8)
	require.NoError(t, err)
	defer fm.Close()

	status, err := fm.Seek(16)
	require.NoError(t, err)
	require.Equal(t, medium.StatusOk, status)

	buf, status, err := fm.RequestBytes(16)
	require.NoError(t, err)
	require.Equal(t, medium.StatusOk, status)
	require.Equal(t, data[16:32], buf)
}

func TestFileMediumBorrowStreamRejectsSecondAssociation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream_0")
	data := writePacket(1, 256, 200)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fm, err := Open([]string{path}, 8)
	require.NoError(t, err)
	defer fm.Close()

	_, err = fm.BorrowStream(nil, 1)
	require.NoError(t, err)
	_, err = fm.BorrowStream(nil, 2)
	require.Error(t, err)
}
