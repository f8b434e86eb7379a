// Package filemedium implements the mmap-windowed CTF file medium: a
// Medium over one or more rotated stream files, indexed either from a
// `.idx` sidecar or by scanning packet headers directly.
package filemedium

import (
	"os"
	"path/filepath"
	"strings"

	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/fieldtype"
	"ssw-trace-core/internal/medium"
)

// streamFile is one file in a rotated stream group, with its packet
// index and its own mmap window.
type streamFile struct {
	path       string
	index      []PacketIndexEntry
	window     *mmapWindow
	baseOffset int64 // this file's first byte's position in the logical stream
	size       int64
}

// FileMedium implements medium.Medium over a group of stream files that
// together form one logical byte stream (a rotated trace stream).
type FileMedium struct {
	files          []*streamFile
	alignmentBytes int64

	logicalOffset int64
	curFileIdx    int
	resolved      map[uint64]medium.StreamHandle
}

// Open builds a FileMedium over paths, in the given rotation order.
// alignmentBytes sizes the default mmap window (2048*alignmentBytes).
func Open(paths []string, alignmentBytes int64) (*FileMedium, error) {
	if len(paths) == 0 {
		return nil, bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "filemedium", "open",
			"at least one stream file is required")
	}

	fm := &FileMedium{alignmentBytes: alignmentBytes, resolved: make(map[uint64]medium.StreamHandle)}
	var cursor int64
	for _, p := range paths {
		entries, err := loadIndex(p)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(p)
		if err != nil {
			return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "open", p)
		}
		win, err := newMmapWindow(f, alignmentBytes)
		if err != nil {
			return nil, err
		}
		sf := &streamFile{path: p, index: entries, window: win, baseOffset: cursor, size: win.fileSize}
		fm.files = append(fm.files, sf)
		cursor += sf.size
	}
	return fm, nil
}

// loadIndex tries the `.idx` sidecar first, falling back to scanning
// the stream file directly (itself backed by a gzip-compressed cache so
// repeated opens of a large, unindexed stream don't re-walk it).
func loadIndex(streamPath string) ([]PacketIndexEntry, error) {
	idxPath := idxPathForStream(streamPath)
	if _, err := os.Stat(idxPath); err == nil {
		entries, err := ParseIdxFile(idxPath)
		if err == nil {
			return entries, nil
		}
		// Fall through to scanning on a malformed/rejected sidecar so a
		// single bad index doesn't make the stream entirely unreadable.
	}

	fi, statErr := os.Stat(streamPath)
	if statErr == nil {
		if cached := loadScanCache(streamPath, fi.Size()); cached != nil {
			return cached, nil
		}
	}

	entries, err := scanIndex(streamPath)
	if err != nil {
		return nil, err
	}
	if statErr == nil {
		_ = saveScanCache(streamPath, fi.Size(), entries)
	}
	return entries, nil
}

func idxPathForStream(streamPath string) string {
	dir := filepath.Dir(streamPath)
	base := filepath.Base(streamPath)
	return filepath.Join(dir, "index", base+".idx")
}

// streamPathForIdx is the inverse of idxPathForStream: given an `index/
// <basename>.idx` path, returns the sibling stream file path it
// indexes, or "" if path doesn't look like an index path.
func streamPathForIdx(idxPath string) string {
	dir := filepath.Dir(idxPath)
	if filepath.Base(dir) != "index" {
		return ""
	}
	base := filepath.Base(idxPath)
	if !strings.HasSuffix(base, ".idx") {
		return ""
	}
	return filepath.Join(filepath.Dir(dir), strings.TrimSuffix(base, ".idx"))
}

func (fm *FileMedium) totalSize() int64 {
	last := fm.files[len(fm.files)-1]
	return last.baseOffset + last.size
}

func (fm *FileMedium) fileForOffset(offset int64) (*streamFile, int) {
	for i := len(fm.files) - 1; i >= 0; i-- {
		if offset >= fm.files[i].baseOffset {
			return fm.files[i], i
		}
	}
	return fm.files[0], 0
}

// RequestBytes returns up to max bytes starting at the current logical
// offset, borrowed from the active file's mmap window. It does not
// cross a file boundary within one call; the caller observes EOF at the
// boundary only when no further file exists in the group.
func (fm *FileMedium) RequestBytes(max int) ([]byte, medium.Status, error) {
	if fm.logicalOffset >= fm.totalSize() {
		return nil, medium.StatusEof, nil
	}

	sf, idx := fm.fileForOffset(fm.logicalOffset)
	fm.curFileIdx = idx
	localOffset := fm.logicalOffset - sf.baseOffset

	if localOffset >= sf.size {
		if idx+1 >= len(fm.files) {
			return nil, medium.StatusEof, nil
		}
		fm.logicalOffset = fm.files[idx+1].baseOffset
		return fm.RequestBytes(max)
	}

	buf, err := sf.window.slice(localOffset, max)
	if err != nil {
		return nil, medium.StatusError, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "request_bytes", sf.path)
	}
	if len(buf) == 0 {
		return nil, medium.StatusEof, nil
	}
	fm.logicalOffset += int64(len(buf))
	return buf, medium.StatusOk, nil
}

// Seek moves the logical read offset to an absolute byte offset within
// the stream group.
func (fm *FileMedium) Seek(absoluteOffset uint64) (medium.Status, error) {
	off := int64(absoluteOffset)
	if off < 0 || off > fm.totalSize() {
		return medium.StatusError, bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "filemedium", "seek",
			"offset out of bounds")
	}
	fm.logicalOffset = off
	return medium.StatusOk, nil
}

// SwitchPacket advances the logical offset to the start of the next
// file in the group, the hinted "next packet boundary" for a
// multi-file stream group.
func (fm *FileMedium) SwitchPacket() (medium.Status, error) {
	sf, idx := fm.fileForOffset(fm.logicalOffset)
	_ = sf
	if idx+1 >= len(fm.files) {
		fm.logicalOffset = fm.totalSize()
		return medium.StatusEof, nil
	}
	fm.logicalOffset = fm.files[idx+1].baseOffset
	return medium.StatusOk, nil
}

// BorrowStream resolves the logical stream a packet declares itself to
// belong to. A FileMedium backs exactly one stream-class association;
// a second, different one is a protocol error.
func (fm *FileMedium) BorrowStream(streamClass *fieldtype.FieldType, streamID uint64) (medium.StreamHandle, error) {
	h, ok := fm.resolved[streamID]
	if ok {
		return h, nil
	}
	if len(fm.resolved) > 0 {
		return medium.StreamHandle{}, bterr.New(bterr.KindProtocol, bterr.ActorUnknown, "filemedium", "borrow_stream",
			"a second distinct stream-class association was observed on one medium")
	}
	h = medium.StreamHandle{StreamID: streamID}
	fm.resolved[streamID] = h
	return h, nil
}

// Index returns the concatenated packet index across every file in the
// group, in logical-stream order, each entry's Offset translated into
// the logical (cross-file) address space.
func (fm *FileMedium) Index() []PacketIndexEntry {
	var all []PacketIndexEntry
	for _, sf := range fm.files {
		for _, e := range sf.index {
			e.Offset += uint64(sf.baseOffset)
			all = append(all, e)
		}
	}
	return all
}

// Close releases every file's mmap window and descriptor.
func (fm *FileMedium) Close() error {
	var firstErr error
	for _, sf := range fm.files {
		if err := sf.window.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sf.window.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
