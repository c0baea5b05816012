package squashfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/sqfsx/unsquashfs/internal/xlog"
)

type Inode struct {
	// refcnt is first value to get guaranteed 64bits alignment, if not sync/atomic will panic
	refcnt uint64 // for fuse

	sb *Superblock

	Type    uint16
	Perm    uint16
	UidIdx  uint16
	GidIdx  uint16
	ModTime int32
	Ino     uint32 // inode number

	StartBlock uint64
	NLink      uint32
	Size       uint64 // Careful, actual on disk size varies depending on type
	Offset     uint32 // uint16 for directories
	ParentIno  uint32 // for directories
	SymTarget  []byte // The target path this symlink points to
	IdxCount   uint16 // index count for advanced directories
	XattrIdx   uint32 // xattr table index (if relevant); 0xffffffff = none
	Sparse     uint64

	// fragment
	FragBlock uint32
	FragOfft  uint32

	// device nodes (block/char)
	Rdev uint32

	// file blocks (some have value 0x1001000)
	Blocks     []uint32
	BlocksOfft []uint64
}

func (sb *Superblock) GetInode(ino uint64) (*Inode, error) {
	if ino == 1 {
		// get root inode
		return sb.rootIno, nil
	}
	if ino == sb.rootInoN {
		// we reverse
		ino = 1
	}

	// check index
	sb.inoIdxL.RLock()
	inor, ok := sb.inoIdx[uint32(ino)]
	sb.inoIdxL.RUnlock()
	if ok {
		return sb.GetInodeRef(inor)
	}

	// the NFS export table can map arbitrary inode numbers back to an
	// inodeRef without a directory walk; out of scope here (spec §1:
	// random-access mounting is a non-goal), so unknown inodes that
	// haven't been visited by a directory scan are simply not found.
	return nil, ErrInodeNotExported
}

// setInodeRefCache records the on-disk location of an inode number the
// first time it is discovered via a directory entry, so later lookups by
// inode number (hard-link detection) don't need another table walk.
func (sb *Superblock) setInodeRefCache(ino uint32, ref inodeRef) {
	sb.inoIdxL.Lock()
	sb.inoIdx[ino] = ref
	sb.inoIdxL.Unlock()
}

func (sb *Superblock) GetInodeRef(inor inodeRef) (*Inode, error) {
	r, err := sb.newInodeReader(inor)
	if err != nil {
		return nil, err
	}

	ino := &Inode{sb: sb, XattrIdx: 0xffffffff}

	// read inode common header
	if err := binary.Read(r, sb.order, &ino.Type); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.Perm); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.UidIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.GidIdx); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.ModTime); err != nil {
		return nil, err
	}
	if err := binary.Read(r, sb.order, &ino.Ino); err != nil {
		return nil, err
	}

	switch ino.Type {
	case uint16(DirType):
		if err := ino.readBasicDir(r); err != nil {
			return nil, err
		}
	case uint16(XDirType):
		if err := ino.readExtendedDir(r); err != nil {
			return nil, err
		}
	case uint16(FileType):
		if err := ino.readBasicFile(r); err != nil {
			return nil, err
		}
	case uint16(XFileType):
		if err := ino.readExtendedFile(r); err != nil {
			return nil, err
		}
	case uint16(SymlinkType):
		if err := ino.readSymlink(r, false); err != nil {
			return nil, err
		}
	case uint16(XSymlinkType):
		if err := ino.readSymlink(r, true); err != nil {
			return nil, err
		}
	case uint16(BlockDevType), uint16(CharDevType):
		if err := ino.readDevice(r, false); err != nil {
			return nil, err
		}
	case uint16(XBlockDevType), uint16(XCharDevType):
		if err := ino.readDevice(r, true); err != nil {
			return nil, err
		}
	case uint16(FifoType), uint16(SocketType):
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
	case uint16(XFifoType), uint16(XSocketType):
		if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
			return nil, err
		}
		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported inode type %d", ErrCorruptMetadata, ino.Type)
	}

	return ino, nil
}

func (ino *Inode) readBasicDir(r *tableReader) error {
	sb := ino.sb
	var u32, u16 uint32
	var block uint32
	if err := binary.Read(r, sb.order, &block); err != nil {
		return err
	}
	ino.StartBlock = uint64(block)

	if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
		return err
	}

	var sz16 uint16
	if err := binary.Read(r, sb.order, &sz16); err != nil {
		return err
	}
	ino.Size = uint64(sz16)

	var off16 uint16
	if err := binary.Read(r, sb.order, &off16); err != nil {
		return err
	}
	ino.Offset = uint32(off16)

	if err := binary.Read(r, sb.order, &ino.ParentIno); err != nil {
		return err
	}
	_ = u32
	_ = u16
	return nil
}

func (ino *Inode) readExtendedDir(r *tableReader) error {
	sb := ino.sb
	var u32 uint32
	var u16 uint16

	if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &u32); err != nil {
		return err
	}
	ino.Size = uint64(u32)
	if err := binary.Read(r, sb.order, &u32); err != nil {
		return err
	}
	ino.StartBlock = uint64(u32)
	if err := binary.Read(r, sb.order, &ino.ParentIno); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.IdxCount); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &u16); err != nil {
		return err
	}
	ino.Offset = uint32(u16)
	if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
		return err
	}
	// directory index entries (IdxCount of them) follow; skipped here,
	// since the extractor always walks the whole directory stream rather
	// than seeking via the index (FormatModel only needs the index for
	// the -linfo style random lookups the teacher's DirIndexEntry type
	// supports, not for sequential traversal).
	for i := 0; i < int(ino.IdxCount); i++ {
		var idx, start, nameLen uint32
		if err := binary.Read(r, sb.order, &idx); err != nil {
			return err
		}
		if err := binary.Read(r, sb.order, &start); err != nil {
			return err
		}
		if err := binary.Read(r, sb.order, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen+1)
		if _, err := io.ReadFull(r, name); err != nil {
			return err
		}
	}
	return nil
}

func (ino *Inode) readBasicFile(r *tableReader) error {
	sb := ino.sb
	var u32 uint32
	if err := binary.Read(r, sb.order, &u32); err != nil {
		return err
	}
	ino.StartBlock = uint64(u32)

	if err := binary.Read(r, sb.order, &ino.FragBlock); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.FragOfft); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &u32); err != nil {
		return err
	}
	ino.Size = uint64(u32)

	return ino.readBlockList(r)
}

func (ino *Inode) readExtendedFile(r *tableReader) error {
	sb := ino.sb
	if err := binary.Read(r, sb.order, &ino.StartBlock); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.Size); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.Sparse); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.FragBlock); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.FragOfft); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
		return err
	}
	return ino.readBlockList(r)
}

// readBlockList reads the per-block size list that follows a regular
// file's fixed header: one u32 per full block, packed
// (compressed:1, size:24) with a zero value marking a sparse block
// (spec §3). This is FormatModel's read_block_list operation.
func (ino *Inode) readBlockList(r *tableReader) error {
	sb := ino.sb
	blocks := int(ino.Size / uint64(sb.BlockSize))
	if ino.FragBlock == 0xffffffff {
		if ino.Size%uint64(sb.BlockSize) != 0 {
			blocks++
		}
	}

	ino.Blocks = make([]uint32, blocks)
	ino.BlocksOfft = make([]uint64, blocks)

	offt := uint64(0)
	var u32 uint32
	for i := 0; i < blocks; i++ {
		if err := binary.Read(r, sb.order, &u32); err != nil {
			return err
		}
		ino.Blocks[i] = u32
		ino.BlocksOfft[i] = offt
		offt += uint64(u32) & 0xffffff // max block size is 1MB
	}

	if ino.FragBlock != 0xffffffff {
		// the tail of the file lives in a fragment instead of a full
		// block; 0xffffffff is not a valid on-disk block size so it is
		// safe to use as a sentinel meaning "read from fragment".
		ino.Blocks = append(ino.Blocks, 0xffffffff)
	}

	return nil
}

func (ino *Inode) readSymlink(r *tableReader, extended bool) error {
	sb := ino.sb
	if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
		return err
	}

	var u32 uint32
	if err := binary.Read(r, sb.order, &u32); err != nil {
		return err
	}
	if u32 > 4096 {
		return fmt.Errorf("%w: symlink target too long (%d bytes)", ErrCorruptMetadata, u32)
	}
	ino.Size = uint64(u32)

	buf := make([]byte, u32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	ino.SymTarget = buf

	if extended {
		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return err
		}
	}
	return nil
}

// readDevice reads a device-node inode's packed rdev field into Rdev as
// stored; DeviceNumbers decodes it into major/minor.
func (ino *Inode) readDevice(r *tableReader, extended bool) error {
	sb := ino.sb
	if err := binary.Read(r, sb.order, &ino.NLink); err != nil {
		return err
	}
	if err := binary.Read(r, sb.order, &ino.Rdev); err != nil {
		return err
	}
	if extended {
		if err := binary.Read(r, sb.order, &ino.XattrIdx); err != nil {
			return err
		}
	}
	return nil
}

// DeviceNumbers decodes the inode's Rdev field into (major, minor) using
// the Linux new_encode_dev layout named in spec §3.
func (ino *Inode) DeviceNumbers() (major, minor uint32) {
	data := ino.Rdev
	major = (data >> 8) & 0xfff
	minor = (data & 0xff) | ((data >> 12) & 0xfff00)
	return
}

func (i *Inode) ReadAt(p []byte, off int64) (int, error) {
	switch i.Type {
	case uint16(FileType), uint16(XFileType):
		if uint64(off) >= i.Size {
			return 0, io.EOF
		}

		if uint64(off+int64(len(p))) > i.Size {
			p = p[:int64(i.Size)-off]
		}

		block := int(off / int64(i.sb.BlockSize))
		offset := int(off % int64(i.sb.BlockSize))
		n := 0

		for {
			buf, err := i.readDataBlock(block)
			if err != nil {
				return n, err
			}

			if offset > 0 {
				buf = buf[offset:]
			}

			l := copy(p, buf)
			n += l
			if l == len(p) {
				return n, nil
			}

			p = p[l:]
			block++
			offset = 0
		}
	}
	return 0, fs.ErrInvalid
}

// readDataBlock materializes one logical file block (full-size data
// block, fragment tail, or a zero-filled sparse hole) as raw bytes. It is
// used both by the simple ReadAt path above and, conceptually, describes
// what BlockCache.get()+wait() produce for the pipelined extractor.
func (i *Inode) readDataBlock(block int) ([]byte, error) {
	if i.Blocks[block] == 0xffffffff {
		return i.readFragment()
	}
	if i.Blocks[block] == 0 {
		return make([]byte, i.sb.BlockSize), nil
	}

	buf := make([]byte, i.Blocks[block]&0xffffff)
	_, err := i.sb.fs.ReadAt(buf, int64(i.StartBlock+i.BlocksOfft[block]))
	if err != nil {
		return nil, err
	}

	if i.Blocks[block]&0x1000000 == 0 {
		buf, err = i.sb.Comp.decompress(buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// FragmentLocation resolves the inode's fragment index into the absolute
// (start, on-disk size) of the shared fragment block, per spec §4.6
// read_fragment. Bit 24 of size (0x1000000) marks "stored uncompressed".
func (i *Inode) FragmentLocation() (start uint64, size uint32, err error) {
	sub := int64(i.FragBlock) / 512 * 8
	blInfo := make([]byte, 8)
	if _, err = i.sb.fs.ReadAt(blInfo, int64(i.sb.FragTableStart)+sub); err != nil {
		return
	}

	t, err := i.sb.newTableReader(int64(i.sb.order.Uint64(blInfo)), int(i.FragBlock%512)*16)
	if err != nil {
		return
	}

	if err = binary.Read(t, i.sb.order, &start); err != nil {
		return
	}
	err = binary.Read(t, i.sb.order, &size)
	return
}

func (i *Inode) readFragment() ([]byte, error) {
	start, size, err := i.FragmentLocation()
	if err != nil {
		return nil, err
	}

	var buf []byte
	if size&0x1000000 == 0x1000000 {
		buf = make([]byte, size&(0x1000000-1))
		if _, err := i.sb.fs.ReadAt(buf, int64(start)); err != nil {
			return nil, err
		}
	} else {
		buf = make([]byte, size)
		if _, err := i.sb.fs.ReadAt(buf, int64(start)); err != nil {
			return nil, err
		}
		buf, err = i.sb.Comp.decompress(buf)
		if err != nil {
			return nil, err
		}
	}

	if i.FragOfft != 0 {
		buf = buf[i.FragOfft:]
	}
	return buf, nil
}

func (i *Inode) LookupRelativeInode(ctx context.Context, name string) (*Inode, error) {
	switch i.Type {
	case uint16(DirType), uint16(XDirType):
		dr, err := i.sb.dirReader(i, nil)
		if err != nil {
			return nil, err
		}
		for {
			ename, inoR, err := dr.next()
			if err != nil {
				if err == io.EOF {
					return nil, fs.ErrNotExist
				}
				return nil, err
			}

			if name == ename {
				found, err := i.sb.GetInodeRef(inoR)
				if err != nil {
					return nil, err
				}
				i.sb.setInodeRefCache(found.Ino, inoR)
				return found, nil
			}
		}
	}
	xlog.Debugf("lookup name %s from non-directory inode %d", name, i.Ino)
	return nil, ErrNotDirectory
}

func (i *Inode) LookupRelativeInodePath(ctx context.Context, name string) (*Inode, error) {
	// similar to lookup, but handles slashes in name and returns an inode
	cur := i

	for {
		if len(name) == 0 {
			// trailing slash?
			return cur, nil
		}
		pos := strings.IndexByte(name, '/')
		if pos == -1 {
			// no /
			return cur.LookupRelativeInode(ctx, name)
		}
		if pos == 0 {
			// skip initial /
			name = name[1:]
			continue
		}
		t, err := cur.LookupRelativeInode(ctx, name[:pos])
		if err != nil {
			return nil, err
		}
		// found an inode
		cur = t
		name = name[pos+1:]
	}
}

// GetUid resolves the inode's owning uid through the superblock's id table.
func (i *Inode) GetUid() uint32 {
	return i.sb.IdFromIndex(i.UidIdx)
}

// GetGid resolves the inode's owning gid through the superblock's id table.
func (i *Inode) GetGid() uint32 {
	return i.sb.IdFromIndex(i.GidIdx)
}

func (i *Inode) Mode() fs.FileMode {
	return UnixToMode(uint32(i.Perm)) | squashfsTypeToMode(i.Type)
}

func (i *Inode) IsDir() bool {
	return Type(i.Type).Basic() == DirType
}

// IsRegular reports whether this is a basic or extended regular file.
func (i *Inode) IsRegular() bool {
	return Type(i.Type).Basic() == FileType
}

// IsSymlink reports whether this is a basic or extended symlink.
func (i *Inode) IsSymlink() bool {
	return Type(i.Type).Basic() == SymlinkType
}

// IsDevice reports whether this is a block or character device node.
func (i *Inode) IsDevice() bool {
	b := Type(i.Type).Basic()
	return b == BlockDevType || b == CharDevType
}

// IsFifo reports whether this is a named pipe.
func (i *Inode) IsFifo() bool {
	return Type(i.Type).Basic() == FifoType
}

// IsSocket reports whether this is a UNIX domain socket.
func (i *Inode) IsSocket() bool {
	return Type(i.Type).Basic() == SocketType
}

func (i *Inode) Readlink() ([]byte, error) {
	switch i.Type {
	case uint16(SymlinkType), uint16(XSymlinkType):
		return i.SymTarget, nil
	}
	return nil, fs.ErrInvalid
}

func (i *Inode) AddRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, count)
}

func (i *Inode) DelRef(count uint64) uint64 {
	return atomic.AddUint64(&i.refcnt, ^(count - 1))
}
