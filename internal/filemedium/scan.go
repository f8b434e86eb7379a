package filemedium

import (
	"os"

	"ssw-trace-core/internal/bterr"
)

// scanIndex walks a stream file from offset 0, reading the fixed packet
// header at each declared boundary until the file is exhausted, without
// relying on a `.idx` sidecar. A packet whose declared packet_size is
// zero is tolerated: the scan records it and advances by the header
// size, without logging. The fixed header carries no timestamps, so the
// returned entries have none and, unlike index-file parsing, the scan
// does not reject ts_end < ts_begin.
func scanIndex(path string) ([]PacketIndexEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "scan_index", "open")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "scan_index", "stat")
	}
	size := fi.Size()

	var entries []PacketIndexEntry
	var offset int64
	header := make([]byte, packetHeaderSizeBytes)
	for offset < size {
		if _, err := f.ReadAt(header, offset); err != nil {
			return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "scan_index", "read header")
		}
		h, err := scanPacketHeader(header)
		if err != nil {
			return nil, err
		}
		entries = append(entries, PacketIndexEntry{
			Offset:          uint64(offset),
			PacketSizeBits:  h.PacketSizeBits,
			ContentSizeBits: h.ContentSizeBits,
			StreamID:        h.StreamID,
			SourcePath:      path,
		})
		packetBytes := int64(h.PacketSizeBits / 8)
		if packetBytes == 0 {
			// Zero-length packet tolerated during scanning; advance by
			// the header size to avoid an infinite loop.
			packetBytes = packetHeaderSizeBytes
		}
		offset += packetBytes
	}
	return entries, nil
}
