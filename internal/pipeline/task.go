package pipeline

import (
	"io/fs"
	"time"

	"github.com/sqfsx/unsquashfs/internal/blockcache"
)

// TaskKind discriminates the WriterTask union (spec §3).
type TaskKind int

const (
	TaskFileHeader TaskKind = iota
	TaskBlock
	TaskDirAttrs
	TaskShutdown
)

// Attrs carries the attributes applied to a created path: ownership,
// mode and mtime always; Xattr is the assumed write-xattr capability
// (decoding the image's xattr table is out of scope; the traversal
// layer is responsible for resolving whatever it wants applied here).
type Attrs struct {
	Path  string
	Mode  fs.FileMode
	Uid   uint32
	Gid   uint32
	Time  time.Time
	Xattr map[string][]byte
}

// WriterTask is the tagged union the writer goroutine consumes (spec
// §3's WriterTask): a FileHeader followed by exactly NumBlocks Block
// tasks, a DirAttrs for an already-created directory, or Shutdown.
type WriterTask struct {
	Kind TaskKind

	Attrs Attrs // FileHeader, DirAttrs
	Size  int64 // FileHeader: final on-disk file size

	NumBlocks int // FileHeader: how many Block tasks follow for this file

	// Block: Entry is nil for a sparse block (a hole of BlockLen bytes);
	// otherwise Entry.Data[EntryOffset:EntryOffset+BlockLen] is the
	// decompressed payload. EntryOffset is nonzero only when the block
	// is a fragment tail shared with other files (spec §4.6 read_fragment).
	Entry       *blockcache.Entry
	EntryOffset int
	BlockLen    int
}
