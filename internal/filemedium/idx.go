package filemedium

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"ssw-trace-core/internal/bterr"
)

// IdxMagic is the fixed magic number at the start of a stream file's
// binary packet index.
const IdxMagic = 0xC1F1DCC1

// minEntryStride is the byte length of an index-1.0 entry: offset,
// packet_size, content_size, ts_begin, ts_end, events_discarded,
// stream_id — seven u64 fields.
const minEntryStride = 56

// PacketIndexEntry describes one packet's position and time range
// within a stream file, whether sourced from a .idx file or from
// scanning.
type PacketIndexEntry struct {
	Offset             uint64
	PacketSizeBits      uint64
	ContentSizeBits     uint64
	TsBeginCycles       uint64
	TsEndCycles         uint64
	TsBeginNs           int64
	TsEndNs             int64
	EventsDiscarded     uint64
	StreamID            uint64
	PacketSeqNum        uint64
	HasPacketSeqNum     bool
	SourcePath          string
}

type idxHeader struct {
	Magic          uint32
	IndexMajor     uint32
	IndexMinor     uint32
	PacketIndexLen uint32
}

// ParseIdxFile reads and validates a binary `.idx` stream index file,
// returning its packet index entries in file order.
func ParseIdxFile(path string) ([]PacketIndexEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "parse_idx",
			fmt.Sprintf("reading %s", path))
	}
	return ParseIdxBytes(data, path)
}

// ParseIdxBytes validates and parses the in-memory contents of a .idx
// file. sourcePath is recorded on each entry for diagnostics.
func ParseIdxBytes(data []byte, sourcePath string) ([]PacketIndexEntry, error) {
	if len(data) < 56 {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
			"index file shorter than the fixed 56-byte header")
	}

	r := bytes.NewReader(data)
	var hdr idxHeader
	if err := binary.Read(r, binary.BigEndian, &hdr.Magic); err != nil {
		return nil, bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx", "reading magic")
	}
	if hdr.Magic != IdxMagic {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
			fmt.Sprintf("bad magic 0x%x", hdr.Magic))
	}
	binary.Read(r, binary.BigEndian, &hdr.IndexMajor)
	binary.Read(r, binary.BigEndian, &hdr.IndexMinor)
	binary.Read(r, binary.BigEndian, &hdr.PacketIndexLen)

	if hdr.IndexMajor != 1 {
		return nil, bterr.New(bterr.KindUnsupported, bterr.ActorUnknown, "filemedium", "parse_idx",
			fmt.Sprintf("unsupported index major version %d", hdr.IndexMajor))
	}
	if hdr.PacketIndexLen < minEntryStride {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
			fmt.Sprintf("entry stride %d below minimum %d", hdr.PacketIndexLen, minEntryStride))
	}

	// Header occupies 56 bytes total: 4 magic + 4 major + 4 minor + 4
	// packet_index_len + 40 bytes reserved/padding to reach the fixed
	// 56-byte header size mandated for this format.
	body := data[56:]
	stride := int(hdr.PacketIndexLen)
	if len(body)%stride != 0 {
		return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
			fmt.Sprintf("body length %d is not a multiple of entry stride %d", len(body), stride))
	}

	n := len(body) / stride
	entries := make([]PacketIndexEntry, 0, n)
	var lastOffset uint64
	var sumBytes uint64
	for i := 0; i < n; i++ {
		er := bytes.NewReader(body[i*stride : (i+1)*stride])
		var e PacketIndexEntry
		var fields [7]uint64
		for j := range fields {
			if err := binary.Read(er, binary.BigEndian, &fields[j]); err != nil {
				return nil, bterr.Wrap(err, bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
					fmt.Sprintf("reading entry %d field %d", i, j))
			}
		}
		e.Offset = fields[0]
		e.PacketSizeBits = fields[1]
		e.ContentSizeBits = fields[2]
		e.TsBeginCycles = fields[3]
		e.TsEndCycles = fields[4]
		e.EventsDiscarded = fields[5]
		e.StreamID = fields[6]
		e.SourcePath = sourcePath

		if hdr.IndexMinor >= 1 && stride >= minEntryStride+16 {
			var streamInstanceID, seqNum uint64
			binary.Read(er, binary.BigEndian, &streamInstanceID)
			if err := binary.Read(er, binary.BigEndian, &seqNum); err == nil {
				e.PacketSeqNum = seqNum
				e.HasPacketSeqNum = true
			}
		}

		if e.PacketSizeBits%8 != 0 {
			return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
				fmt.Sprintf("entry %d: packet_size %d bits is not a multiple of 8", i, e.PacketSizeBits))
		}
		if e.TsEndCycles < e.TsBeginCycles {
			return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
				fmt.Sprintf("entry %d: ts_end (%d) < ts_begin (%d)", i, e.TsEndCycles, e.TsBeginCycles))
		}
		if i > 0 && e.Offset < lastOffset {
			return nil, bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
				fmt.Sprintf("entry %d: offset %d is not monotonic after %d", i, e.Offset, lastOffset))
		}
		lastOffset = e.Offset
		sumBytes += e.PacketSizeBits / 8

		entries = append(entries, e)
	}

	return entries, validateSumsAgainstFile(sourcePath, sumBytes, entries)
}

// validateSumsAgainstFile checks that the sum of packet sizes equals the
// stream file's size, when the stream file is reachable on disk next to
// the index. If the stream file cannot be located this check is skipped
// rather than treated as fatal, since callers may parse an index in
// isolation (e.g. tests).
func validateSumsAgainstFile(idxPath string, sumBytes uint64, entries []PacketIndexEntry) error {
	streamPath := streamPathForIdx(idxPath)
	if streamPath == "" {
		return nil
	}
	fi, err := os.Stat(streamPath)
	if err != nil {
		return nil
	}
	if uint64(fi.Size()) != sumBytes {
		return bterr.New(bterr.KindDecodeMalformed, bterr.ActorUnknown, "filemedium", "parse_idx",
			fmt.Sprintf("sum of packet sizes (%d bytes) does not equal stream file size (%d bytes)", sumBytes, fi.Size()))
	}
	return nil
}
