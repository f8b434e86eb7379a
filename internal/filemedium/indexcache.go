package filemedium

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"ssw-trace-core/internal/bterr"
)

// cacheMagic tags the gzip-wrapped scan-index cache format.
const cacheMagic = 0x53434158 // "SCAX"

// scanCachePath returns the sidecar path a scanned index is cached
// under: `<dir>/index/<basename>.scancache.gz`, distinct from the
// authoritative `.idx` sidecar so the two are never confused.
func scanCachePath(streamPath string) string {
	dir := filepath.Dir(streamPath)
	base := filepath.Base(streamPath)
	return filepath.Join(dir, "index", base+".scancache.gz")
}

// loadScanCache returns a previously cached scan result for streamPath,
// or nil if no valid cache exists. expectedSize guards against a stale
// cache left over from a since-rotated-away file of the same name.
func loadScanCache(streamPath string, expectedSize int64) []PacketIndexEntry {
	path := scanCachePath(streamPath)
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil
	}
	defer gr.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gr); err != nil {
		return nil
	}
	entries, size, err := decodeScanCache(buf.Bytes())
	if err != nil || size != expectedSize {
		return nil
	}
	for i := range entries {
		entries[i].SourcePath = streamPath
	}
	return entries
}

// saveScanCache persists a scan result so subsequent opens skip the
// O(n) header walk.
func saveScanCache(streamPath string, size int64, entries []PacketIndexEntry) error {
	path := scanCachePath(streamPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "save_scan_cache", "mkdir")
	}

	f, err := os.Create(path)
	if err != nil {
		return bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "save_scan_cache", "create")
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(encodeScanCache(size, entries)); err != nil {
		gw.Close()
		return bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "save_scan_cache", "write")
	}
	return gw.Close()
}

func encodeScanCache(size int64, entries []PacketIndexEntry) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(cacheMagic))
	binary.Write(&buf, binary.BigEndian, uint64(size))
	binary.Write(&buf, binary.BigEndian, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.BigEndian, e.Offset)
		binary.Write(&buf, binary.BigEndian, e.PacketSizeBits)
		binary.Write(&buf, binary.BigEndian, e.ContentSizeBits)
		binary.Write(&buf, binary.BigEndian, e.TsBeginCycles)
		binary.Write(&buf, binary.BigEndian, e.TsEndCycles)
		binary.Write(&buf, binary.BigEndian, e.StreamID)
	}
	return buf.Bytes()
}

func decodeScanCache(data []byte) ([]PacketIndexEntry, int64, error) {
	r := bytes.NewReader(data)
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil || magic != cacheMagic {
		return nil, 0, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "decode_scan_cache", "bad magic")
	}
	var size int64
	binary.Read(r, binary.BigEndian, &size)
	var count uint32
	binary.Read(r, binary.BigEndian, &count)

	entries := make([]PacketIndexEntry, count)
	for i := range entries {
		binary.Read(r, binary.BigEndian, &entries[i].Offset)
		binary.Read(r, binary.BigEndian, &entries[i].PacketSizeBits)
		binary.Read(r, binary.BigEndian, &entries[i].ContentSizeBits)
		binary.Read(r, binary.BigEndian, &entries[i].TsBeginCycles)
		binary.Read(r, binary.BigEndian, &entries[i].TsEndCycles)
		binary.Read(r, binary.BigEndian, &entries[i].StreamID)
	}
	return entries, size, nil
}
