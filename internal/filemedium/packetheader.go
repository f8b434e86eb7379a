package filemedium

import (
	"encoding/binary"
	"fmt"

	"ssw-trace-core/internal/bterr"
)

// packetHeaderMagic tags the start of every packet this pipeline
// decodes; it is checked by both the CTF message iterator and, here,
// the scan-fallback indexer so the two agree on packet boundaries.
const packetHeaderMagic = 0xC1FC1FC1

// packetHeaderSizeBytes is the fixed-size prefix scanned to discover a
// packet's declared total size without decoding its full context.
const packetHeaderSizeBytes = 28

// scannedPacketHeader is the minimal packet_properties subset needed to
// advance a scan: everything get_packet_properties() would otherwise
// publish once the full iterator decodes header+context.
type scannedPacketHeader struct {
	StreamID        uint64
	PacketSizeBits  uint64
	ContentSizeBits uint64
}

// scanPacketHeader reads the fixed packet-header prefix out of buf,
// which must hold at least packetHeaderSizeBytes bytes starting at a
// packet boundary.
func scanPacketHeader(buf []byte) (scannedPacketHeader, error) {
	if len(buf) < packetHeaderSizeBytes {
		return scannedPacketHeader{}, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator,
			"filemedium", "scan_packet_header", "short read at packet boundary")
	}
	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != packetHeaderMagic {
		return scannedPacketHeader{}, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator,
			"filemedium", "scan_packet_header", fmt.Sprintf("bad packet magic 0x%x", magic))
	}
	h := scannedPacketHeader{
		StreamID:        binary.BigEndian.Uint64(buf[4:12]),
		PacketSizeBits:  binary.BigEndian.Uint64(buf[12:20]),
		ContentSizeBits: binary.BigEndian.Uint64(buf[20:28]),
	}
	if h.PacketSizeBits%8 != 0 {
		return scannedPacketHeader{}, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator,
			"filemedium", "scan_packet_header", "packet_size is not a multiple of 8 bits")
	}
	if h.ContentSizeBits > h.PacketSizeBits {
		return scannedPacketHeader{}, bterr.New(bterr.KindDecodeMalformed, bterr.ActorMessageIterator,
			"filemedium", "scan_packet_header", "content_size exceeds packet_size")
	}
	return h, nil
}
