package filemedium

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"ssw-trace-core/internal/bterr"
)

// defaultWindowMultiple is the default mmap window size as a multiple of
// the medium's alignment, i.e. 2048 * alignment bytes.
const defaultWindowMultiple = 2048

// mmapWindow owns one mapped region of a file, always containing the
// current read offset. The mapping is replaced (never resized in
// place) when the read offset moves outside it.
type mmapWindow struct {
	file        *os.File
	fileSize    int64
	windowSize  int64
	mapped      []byte
	mappedBase  int64 // file offset the mapping starts at
}

func newMmapWindow(f *os.File, alignmentBytes int64) (*mmapWindow, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "mmap_window", "stat")
	}
	if alignmentBytes <= 0 {
		alignmentBytes = 1
	}
	return &mmapWindow{
		file:       f,
		fileSize:   fi.Size(),
		windowSize: defaultWindowMultiple * alignmentBytes,
		mappedBase: -1,
	}, nil
}

// ensure guarantees the mapping covers offset, remapping (munmap then
// mmap) if it currently doesn't. The new mapping's base is offset
// rounded down to a multiple of the window size (2048 * alignment), not
// to a multiple of the alignment alone.
func (w *mmapWindow) ensure(offset int64) error {
	if w.mappedBase >= 0 && offset >= w.mappedBase && offset < w.mappedBase+int64(len(w.mapped)) {
		return nil
	}
	if offset < 0 || offset > w.fileSize {
		return bterr.New(bterr.KindInvalidArgument, bterr.ActorUnknown, "filemedium", "mmap_window",
			fmt.Sprintf("offset %d out of bounds (file size %d)", offset, w.fileSize))
	}

	base := (offset / w.windowSize) * w.windowSize
	length := w.windowSize
	if base+length > w.fileSize {
		length = w.fileSize - base
	}
	if length <= 0 {
		// Offset == fileSize (EOF); nothing to map.
		w.unmap()
		w.mappedBase = offset
		w.mapped = nil
		return nil
	}

	if err := w.unmap(); err != nil {
		return err
	}

	data, err := unix.Mmap(int(w.file.Fd()), base, int(length), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "mmap_window",
			fmt.Sprintf("mmap at base %d length %d", base, length))
	}
	w.mapped = data
	w.mappedBase = base
	return nil
}

// slice returns a borrowed view of up to max bytes starting at offset,
// remapping as needed first.
func (w *mmapWindow) slice(offset int64, max int) ([]byte, error) {
	if err := w.ensure(offset); err != nil {
		return nil, err
	}
	if w.mapped == nil {
		return nil, nil // EOF
	}
	start := offset - w.mappedBase
	avail := int64(len(w.mapped)) - start
	if avail <= 0 {
		return nil, nil
	}
	n := int64(max)
	if n > avail {
		n = avail
	}
	return w.mapped[start : start+n], nil
}

func (w *mmapWindow) unmap() error {
	if w.mapped == nil {
		return nil
	}
	err := unix.Munmap(w.mapped)
	w.mapped = nil
	w.mappedBase = -1
	if err != nil {
		return bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "mmap_window", "munmap")
	}
	return nil
}

func (w *mmapWindow) close() error {
	return w.unmap()
}

// refreshSize re-stats the backing file and updates the cached file
// size. Nothing in this package calls it; the directory watcher reports
// new files only, not growth of an existing one.
func (w *mmapWindow) refreshSize() error {
	fi, err := w.file.Stat()
	if err != nil {
		return bterr.Wrap(err, bterr.KindIO, bterr.ActorUnknown, "filemedium", "mmap_window", "stat")
	}
	w.fileSize = fi.Size()
	return nil
}
