package pipeline

import (
	"io"
	"os"

	"github.com/sqfsx/unsquashfs/internal/blockcache"
	"github.com/sqfsx/unsquashfs/internal/queue"
)

// ApplyXattrFunc applies the assumed write-xattr capability (spec §1)
// to an already-created path. A nil or empty attrs map is a no-op.
type ApplyXattrFunc func(path string, attrs map[string][]byte) error

// Writer is the Writer worker (spec §4.5): the sole goroutine that
// touches the output tree's file contents, run single-threaded so a
// file's Block tasks are applied in order without locking.
type Writer struct {
	in         *queue.Queue[*WriterTask]
	cache      *blockcache.Cache
	fdg        *FdGovernor
	applyXattr ApplyXattrFunc
	isRoot     bool
	errLatch   *ErrorLatch

	cur        *os.File
	curTask    *WriterTask
	remaining  int
	hole       int64
	brokenSeek bool
}

// NewWriter builds a Writer publishing its first failure to errLatch.
// applyXattr may be nil to skip xattr application entirely (-no-xattrs).
func NewWriter(in *queue.Queue[*WriterTask], cache *blockcache.Cache, fdg *FdGovernor, applyXattr ApplyXattrFunc, isRoot bool, errLatch *ErrorLatch) *Writer {
	return &Writer{in: in, cache: cache, fdg: fdg, applyXattr: applyXattr, isRoot: isRoot, errLatch: errLatch}
}

// Run drains tasks until Shutdown, then reports the accumulated error
// (if any) on done.
func (w *Writer) Run(done *queue.Queue[error]) {
	for {
		t := w.in.Get()
		switch t.Kind {
		case TaskShutdown:
			done.Put(w.errLatch.Err())
			return
		case TaskFileHeader:
			w.onFileHeader(t)
		case TaskBlock:
			w.onBlock(t)
		case TaskDirAttrs:
			w.applyAttrs(t.Attrs)
		}
	}
}

func (w *Writer) onFileHeader(t *WriterTask) {
	f, err := w.fdg.OpenWait(t.Attrs.Path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	w.curTask = t
	w.remaining = t.NumBlocks
	w.hole = 0
	if err != nil {
		w.errLatch.Set(classifyFsErr(err), t.Attrs.Path, err)
		w.cur = nil
		return
	}
	w.cur = f
}

func (w *Writer) onBlock(t *WriterTask) {
	w.remaining--

	if t.Entry == nil {
		// sparse block: accumulate the hole, nothing to write yet
		w.hole += int64(t.BlockLen)
		if w.remaining == 0 {
			w.finishFile()
		}
		return
	}

	if w.cur == nil {
		// The output file itself never opened; still must Wait for the
		// entry's reader/inflator to finish before releasing it, or a
		// still-pending entry can reach the free list and be evicted
		// into a different offset's materialization mid-fill.
		w.cache.Wait(t.Entry)
		w.cache.Put(t.Entry)
		if w.remaining == 0 {
			w.curTask = nil
		}
		return
	}

	err := w.cache.Wait(t.Entry)
	data := t.Entry.Data
	w.cache.Put(t.Entry)
	if err != nil {
		w.abort(ErrKindDecompressFailed, err)
		return
	}

	if err := writeBlock(w.cur, data[t.EntryOffset:t.EntryOffset+t.BlockLen], w.hole, &w.brokenSeek); err != nil {
		w.abort(ErrKindIO, err)
		return
	}
	w.hole = 0

	if w.remaining == 0 {
		w.finishFile()
	}
}

func (w *Writer) abort(kind ErrKind, err error) {
	path := w.curTask.Attrs.Path
	w.errLatch.Set(kind, path, err)
	if w.cur != nil {
		w.fdg.CloseWake(w.cur)
		os.Remove(path)
	}
	w.cur = nil
}

func (w *Writer) finishFile() {
	if w.cur == nil {
		w.curTask = nil
		return
	}
	if w.hole > 0 {
		if err := writeTrailingHole(w.cur, w.curTask.Size, w.hole, &w.brokenSeek); err != nil {
			w.abort(ErrKindIO, err)
			return
		}
	}
	w.applyAttrs(w.curTask.Attrs)
	w.fdg.CloseWake(w.cur)
	w.cur = nil
	w.curTask = nil
}

func (w *Writer) applyAttrs(a Attrs) {
	if err := os.Chtimes(a.Path, a.Time, a.Time); err != nil {
		w.errLatch.Set(classifyFsErr(err), a.Path, err)
	}
	if err := os.Chmod(a.Path, a.Mode); err != nil {
		w.errLatch.Set(classifyFsErr(err), a.Path, err)
	}
	if w.isRoot {
		if err := os.Chown(a.Path, int(a.Uid), int(a.Gid)); err != nil {
			w.errLatch.Set(classifyFsErr(err), a.Path, err)
		}
	}
	if w.applyXattr != nil && len(a.Xattr) > 0 {
		if err := w.applyXattr(a.Path, a.Xattr); err != nil {
			w.errLatch.Set(ErrKindXattrFailed, a.Path, err)
		}
	}
}

// classifyFsErr maps a raw filesystem error from the write path to the
// same Kind vocabulary internal/extract's own classifyFsErr applies to
// create-time failures, so writer-side chmod/chown/utime/open failures
// get the same non-fatal-unless-strict treatment as their traversal-side
// counterparts instead of being folded into a catch-all I/O kind.
func classifyFsErr(err error) ErrKind {
	switch {
	case os.IsPermission(err):
		return ErrKindFsCreatePermission
	case os.IsExist(err):
		return ErrKindFsCreateExists
	default:
		return ErrKindFsCreateOther
	}
}

// writeBlock implements spec §4.5's write_block: seek past a preceding
// hole when the filesystem supports it, else fill it with zeros.
func writeBlock(f *os.File, buf []byte, hole int64, brokenSeek *bool) error {
	if hole > 0 {
		if err := skipHole(f, hole, brokenSeek); err != nil {
			return err
		}
	}
	_, err := f.Write(buf)
	return err
}

// writeTrailingHole extends the file to its final declared size when
// the last block(s) were sparse and no further data follows.
func writeTrailingHole(f *os.File, finalSize, hole int64, brokenSeek *bool) error {
	if !*brokenSeek {
		if err := f.Truncate(finalSize); err == nil {
			return nil
		}
		*brokenSeek = true
	}
	return writeZeros(f, hole)
}

func skipHole(f *os.File, hole int64, brokenSeek *bool) error {
	if !*brokenSeek {
		if _, err := f.Seek(hole, io.SeekCurrent); err == nil {
			return nil
		}
		*brokenSeek = true
	}
	return writeZeros(f, hole)
}

func writeZeros(f *os.File, n int64) error {
	const chunk = 64 * 1024
	buf := make([]byte, chunk)
	for n > 0 {
		c := int64(len(buf))
		if n < c {
			c = n
		}
		if _, err := f.Write(buf[:c]); err != nil {
			return err
		}
		n -= c
	}
	return nil
}
