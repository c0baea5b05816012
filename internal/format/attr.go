// Package format bridges the root squashfs package's decoded Inode to the
// stat-like carrier the traversal's device and socket creation uses, reusing
// github.com/hanwen/go-fuse/v2/fuse's Attr struct purely as a typed field
// bag (this repo never mounts a FUSE filesystem) instead of hand-rolling an
// equivalent struct, the way the teacher's inode_fuse.go/inode_linux.go used
// the same struct to answer kernel GETATTR requests.
package format

import (
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/sqfsx/unsquashfs"
)

// FromInode builds a fuse.Attr snapshot of ino. Rdev carries the inode's
// already-packed new_encode_dev value verbatim, so callers that need to
// mknod(2) a device node can pass attr.Rdev straight through without
// re-deriving major/minor and re-packing them.
func FromInode(ino *squashfs.Inode) fuse.Attr {
	mtime := uint64(int64(ino.ModTime))
	return fuse.Attr{
		Ino:     ino.Ino,
		Size:    ino.Size,
		Blocks:  (ino.Size + 511) / 512,
		Atime:   mtime,
		Mtime:   mtime,
		Ctime:   mtime,
		Mode:    squashfs.ModeToUnix(ino.Mode()),
		Nlink:   uint32(ino.NLink),
		Owner:   fuse.Owner{Uid: ino.GetUid(), Gid: ino.GetGid()},
		Rdev:    ino.Rdev,
		Blksize: 4096,
	}
}
