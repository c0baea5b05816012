package squashfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"sync"

	"github.com/sqfsx/unsquashfs/internal/blockio"
	"github.com/sqfsx/unsquashfs/internal/xlog"
)

// SuperblockSize is the fixed on-disk size of the v4 superblock.
const SuperblockSize = 96

// SquashfsMetadataSize is the maximum size, in bytes, of a single
// decompressed metadata block (inode table / directory table entries).
const SquashfsMetadataSize = 8192

// https://dr-emann.github.io/squashfs/
type Superblock struct {
	fs    io.ReaderAt
	order binary.ByteOrder

	closer io.Closer
	inoOfft uint64

	rootIno  *Inode
	rootInoN uint64

	inoIdxL sync.RWMutex
	inoIdx  map[uint32]inodeRef

	// idTable holds the decompressed uid/gid value table, indexed by the
	// id index stored in each inode (UidIdx/GidIdx).
	idTable []uint32

	// inodeMeta, dirMeta and auxMeta are independent MetadataStore caches
	// (spec §4.2) for the three metadata streams: the inode table, the
	// directory table, and everything else addressed via indirect
	// pointers (id table, fragment table, export table).
	inodeMeta *metadataStore
	dirMeta   *metadataStore
	auxMeta   *metadataStore

	Magic             uint32
	InodeCnt          uint32
	ModTime           int32
	BlockSize         uint32
	FragCount         uint32
	Comp              SquashComp
	BlockLog          uint16
	Flags             SquashFlags
	IdCount           uint16
	VMajor            uint16
	VMinor            uint16
	RootInode         uint64
	BytesUsed         uint64
	IdTableStart      uint64
	XattrIdTableStart uint64
	InodeTableStart   uint64
	DirTableStart     uint64
	FragTableStart    uint64
	ExportTableStart  uint64
}

// Ensure Superblock satisfies the read-only filesystem interfaces used by
// callers that just want to walk the image (cmd/unsquashfs's -l listing).
var (
	_ fs.FS        = (*Superblock)(nil)
	_ fs.StatFS    = (*Superblock)(nil)
	_ fs.ReadDirFS = (*Superblock)(nil)
)

// Open opens path as a SquashFS image starting at byte offset start
// (0 for a plain image, nonzero for one embedded after e.g. a bootloader
// stub, per the -offset CLI flag). The returned Superblock owns the file
// handle; call Close when done.
func Open(path string, start int64, opts ...Option) (*Superblock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sb, err := New(blockio.New(f, start), opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	sb.closer = f
	return sb, nil
}

// Close releases the backing file handle opened by Open. For a
// Superblock built directly with New it does nothing.
func (s *Superblock) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func New(fs io.ReaderAt, opts ...Option) (*Superblock, error) {
	sb := &Superblock{fs: fs, inoIdx: make(map[uint32]inodeRef)}
	sb.inodeMeta = newMetadataStore(sb)
	sb.dirMeta = newMetadataStore(sb)
	sb.auxMeta = newMetadataStore(sb)
	head := make([]byte, SuperblockSize)

	_, err := fs.ReadAt(head, 0)
	if err != nil {
		return nil, err
	}
	err = sb.UnmarshalBinary(head)
	if err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(sb); err != nil {
			return nil, err
		}
	}

	if sb.VMajor != 4 {
		return nil, ErrInvalidVersion
	}
	if 1<<sb.BlockLog != sb.BlockSize {
		return nil, fmt.Errorf("%w: block_size %d does not match block_log %d", ErrInvalidSuper, sb.BlockSize, sb.BlockLog)
	}

	if err := sb.loadIdTable(); err != nil {
		return nil, err
	}

	root, err := sb.GetInodeRef(inodeRef(sb.RootInode))
	if err != nil {
		return nil, fmt.Errorf("reading root inode: %w", err)
	}
	sb.rootIno = root
	sb.rootInoN = uint64(root.Ino)

	xlog.Debugf("squashfs: opened image, block_size=%d compressor=%s inodes=%d", sb.BlockSize, sb.Comp, sb.InodeCnt)

	return sb, nil
}

func (s *Superblock) UnmarshalBinary(data []byte) error {
	v := reflect.ValueOf(s).Elem()
	c := v.NumField()
	r := bytes.NewReader(data)

	switch string(data[:4]) {
	case "hsqs":
		s.order = binary.LittleEndian
	case "sqsh":
		s.order = binary.BigEndian
	default:
		return ErrInvalidFile
	}

	// Decode
	var err error
	for i := 0; i < c; i++ {
		c := v.Type().Field(i).Name[0]
		if c < 'A' || c > 'Z' {
			continue
		}
		err = binary.Read(r, s.order, v.Field(i).Interface())
		if err != nil {
			return err
		}
	}

	return nil
}

// loadIdTable reads the indirect uid/gid table referenced by
// IdTableStart: an array of IdCount 8-byte pointers to metadata blocks,
// each packing uint32 id values.
func (s *Superblock) loadIdTable() error {
	if s.IdCount == 0 {
		return nil
	}

	ptrBuf := make([]byte, 8)
	s.idTable = make([]uint32, 0, s.IdCount)

	remaining := int(s.IdCount)
	tableOfft := int64(s.IdTableStart)

	for remaining > 0 {
		if _, err := s.fs.ReadAt(ptrBuf, tableOfft); err != nil {
			return fmt.Errorf("reading id table pointer: %w", err)
		}
		blockStart := int64(s.order.Uint64(ptrBuf))

		tr, err := s.newTableReader(blockStart, 0)
		if err != nil {
			return fmt.Errorf("reading id table block: %w", err)
		}

		for remaining > 0 {
			var id uint32
			if err := binary.Read(tr, s.order, &id); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return err
			}
			s.idTable = append(s.idTable, id)
			remaining--
		}

		tableOfft += 8
	}

	return nil
}

// IdFromIndex resolves a uid/gid table index (as stored in an inode) to
// its numeric value.
func (s *Superblock) IdFromIndex(idx uint16) uint32 {
	if int(idx) >= len(s.idTable) {
		return 0
	}
	return s.idTable[idx]
}

// Root returns the filesystem's root directory inode.
func (s *Superblock) Root() *Inode {
	return s.rootIno
}

// ReadAt reads raw, still-possibly-compressed bytes directly from the
// backing image, for callers (the extraction pipeline's reader worker)
// that manage their own block cache instead of going through Inode.ReadAt.
func (s *Superblock) ReadAt(p []byte, off int64) (int, error) {
	return s.fs.ReadAt(p, off)
}

// (fs.FS)

func (s *Superblock) Open(name string) (fs.File, error) {
	ino, err := s.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return ino.OpenFile(name), nil
}

func (s *Superblock) Stat(name string) (fs.FileInfo, error) {
	ino, err := s.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return &fileinfo{name: fsBase(name), ino: ino}, nil
}

func (s *Superblock) ReadDir(name string) ([]fs.DirEntry, error) {
	ino, err := s.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if !ino.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotDirectory}
	}
	dr, err := s.dirReader(ino, nil)
	if err != nil {
		return nil, err
	}
	return dr.ReadDir(-1)
}

func (s *Superblock) lookup(name string) (*Inode, error) {
	if name == "." || name == "" {
		return s.rootIno, nil
	}
	if !fs.ValidPath(name) {
		return nil, fs.ErrInvalid
	}
	return s.rootIno.LookupRelativeInodePath(nil, name)
}

func fsBase(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '/' {
			return name[i+1:]
		}
	}
	return name
}
