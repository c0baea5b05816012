package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sqfsx/unsquashfs"
	"github.com/sqfsx/unsquashfs/internal/format"
	"github.com/sqfsx/unsquashfs/internal/pipeline"
	"golang.org/x/sys/unix"
)

// readDir lists dir's children directly off its Inode, bypassing the
// fs.FS name-based lookup entirely: the traversal already holds every
// Inode it visits, so there is no path string to re-resolve, the same way
// unsquashfs.c's dir_scan operates on an in-memory squashfs_dir_info
// rather than re-walking path components.
func readDir(dir *squashfs.Inode) ([]fs.DirEntry, error) {
	rd, ok := dir.OpenFile("").(fs.ReadDirFile)
	if !ok {
		return nil, fs.ErrInvalid
	}
	return rd.ReadDir(-1)
}

func blockCount(size uint64, blockSize uint32) int64 {
	if size == 0 {
		return 0
	}
	return int64((size + uint64(blockSize) - 1) / uint64(blockSize))
}

// PreScan computes totals for the progress meter (spec §4.8, pass 1):
// total inodes visited, total regular files (deduplicated by inode number
// so a hard-linked file is only counted once), and total blocks.
func (c *Context) PreScan() (Stats, error) {
	var st Stats
	st.TotalInodes++
	seen := make(map[uint32]bool)
	err := c.preScanDir(c.SB.Root(), startState(c.Opts.Extract), startState(c.Opts.Exclude), 1, seen, &st)
	return st, err
}

func (c *Context) preScanDir(dir *squashfs.Inode, exSt, exclSt activeState, depth int, seen map[uint32]bool, st *Stats) error {
	if c.Opts.MaxDepth > 0 && depth > c.Opts.MaxDepth {
		return nil
	}
	entries, err := readDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		include, childEx, childExcl := c.decide(exSt, exclSt, e.Name(), e.IsDir())
		if !include {
			continue
		}

		info, err := e.Info()
		if err != nil {
			return err
		}
		ino := info.Sys().(*squashfs.Inode)
		st.TotalInodes++

		if e.IsDir() {
			if err := c.preScanDir(ino, childEx, childExcl, depth+1, seen, st); err != nil {
				return err
			}
			continue
		}

		if ino.IsRegular() && !seen[ino.Ino] {
			seen[ino.Ino] = true
			st.TotalFiles++
			st.TotalBlocks += blockCount(ino.Size, c.SB.BlockSize)
		}
	}
	return nil
}

// MainScan recreates the tree under Opts.Dest (spec §4.8, pass 2).
func (c *Context) MainScan() (fatal bool) {
	root := c.SB.Root()
	if err := c.createDirAt(root, c.Opts.Dest); err != nil {
		if fatal := c.recordError(err); fatal {
			return true
		}
	}
	if c.mainScanDir(root, c.Opts.Dest, startState(c.Opts.Extract), startState(c.Opts.Exclude), 1) {
		return true
	}
	c.emitDirAttrs(root, c.Opts.Dest)
	return false
}

func (c *Context) mainScanDir(dir *squashfs.Inode, destPath string, exSt, exclSt activeState, depth int) (fatal bool) {
	if c.Opts.MaxDepth > 0 && depth > c.Opts.MaxDepth {
		return false
	}
	entries, err := readDir(dir)
	if err != nil {
		return c.recordError(squashfs.NewExtractError(squashfs.KindIO, destPath, err))
	}

	for _, e := range entries {
		include, childEx, childExcl := c.decide(exSt, exclSt, e.Name(), e.IsDir())
		if !include {
			continue
		}

		info, err := e.Info()
		if err != nil {
			if c.recordError(squashfs.NewExtractError(squashfs.KindCorruptFormat, destPath, err)) {
				return true
			}
			continue
		}
		ino := info.Sys().(*squashfs.Inode)
		childDest := filepath.Join(destPath, e.Name())

		if e.IsDir() {
			if err := c.createDirAt(ino, childDest); err != nil {
				if c.recordError(err) {
					return true
				}
				continue
			}
			if c.mainScanDir(ino, childDest, childEx, childExcl, depth+1) {
				return true
			}
			c.emitDirAttrs(ino, childDest)
			continue
		}

		if err := c.createEntry(ino, childDest); err != nil {
			if c.recordError(err) {
				return true
			}
		}
	}
	return false
}

func (c *Context) createDirAt(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	err := os.Mkdir(dest, 0700)
	if err == nil {
		return nil
	}
	if os.IsExist(err) {
		if c.Opts.Force {
			os.Chmod(dest, 0700)
			return nil
		}
		return squashfs.NewExtractError(squashfs.KindFsCreateExists, dest, err)
	}
	return classifyFsErr(dest, err)
}

func (c *Context) emitDirAttrs(ino *squashfs.Inode, dest string) {
	c.pipe.ToWriter.Put(&pipeline.WriterTask{Kind: pipeline.TaskDirAttrs, Attrs: c.attrsFor(ino, dest)})
}

func (c *Context) attrsFor(ino *squashfs.Inode, dest string) pipeline.Attrs {
	return pipeline.Attrs{
		Path: dest,
		Mode: ino.Mode(),
		Uid:  ino.GetUid(),
		Gid:  ino.GetGid(),
		Time: time.Unix(int64(ino.ModTime), 0),
	}
}

// createEntry applies hard-link bookkeeping (spec §4.8's created_inode)
// before dispatching to the per-type creation path. The path is recorded
// before creation completes so a partially-failed create still leaves
// later references to the same inode number failing cleanly against a
// missing path, rather than silently diverging into independent copies.
func (c *Context) createEntry(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	idx := int(ino.Ino) - 1
	if idx >= 0 && idx < len(c.createdInode) {
		if prior := c.createdInode[idx]; prior != "" {
			return c.createHardLink(prior, dest)
		}
		c.createdInode[idx] = dest
	}

	if c.Opts.Info {
		fmt.Fprintln(os.Stdout, dest)
	}

	switch {
	case ino.IsRegular():
		return c.createFile(ino, dest)
	case ino.IsSymlink():
		return c.createSymlink(ino, dest)
	case ino.IsDevice():
		return c.createDevice(ino, dest)
	case ino.IsFifo():
		return c.createFifo(ino, dest)
	case ino.IsSocket():
		return c.createSocket(ino, dest)
	default:
		return squashfs.NewExtractError(squashfs.KindCorruptFormat, dest, fmt.Errorf("unsupported inode type %d", ino.Type))
	}
}

func (c *Context) createHardLink(src, dest string) *squashfs.ExtractError {
	if c.Opts.Force {
		os.Remove(dest)
	}
	if err := os.Link(src, dest); err != nil {
		return classifyFsErr(dest, err)
	}
	return nil
}

func (c *Context) createFile(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	if c.Opts.Force {
		os.Remove(dest)
	}

	c.pipe.ToWriter.Put(&pipeline.WriterTask{
		Kind:      pipeline.TaskFileHeader,
		Attrs:     c.attrsFor(ino, dest),
		Size:      int64(ino.Size),
		NumBlocks: len(ino.Blocks),
	})

	remaining := ino.Size
	for i, b := range ino.Blocks {
		if b == 0xffffffff {
			blockLen := remaining
			remaining = 0
			start, fsize, err := ino.FragmentLocation()
			if err != nil {
				c.recordError(squashfs.NewExtractError(squashfs.KindDecompressFailed, dest, err))
				c.pipe.ToWriter.Put(&pipeline.WriterTask{Kind: pipeline.TaskBlock, BlockLen: int(blockLen)})
				continue
			}
			compressed := fsize&0x1000000 == 0
			onDisk := fsize
			if !compressed {
				onDisk = fsize & (0x1000000 - 1)
			}
			e := c.pipe.Cache.Get(int64(start), onDisk, compressed)
			c.pipe.ToWriter.Put(&pipeline.WriterTask{
				Kind:        pipeline.TaskBlock,
				Entry:       e,
				EntryOffset: int(ino.FragOfft),
				BlockLen:    int(blockLen),
			})
			continue
		}

		outLen := uint64(c.SB.BlockSize)
		if outLen > remaining {
			outLen = remaining
		}
		remaining -= outLen

		if b == 0 {
			c.pipe.ToWriter.Put(&pipeline.WriterTask{Kind: pipeline.TaskBlock, BlockLen: int(outLen)})
			continue
		}

		compressed := b&0x1000000 == 0
		onDisk := b & 0xffffff
		e := c.pipe.Cache.Get(int64(ino.StartBlock+ino.BlocksOfft[i]), onDisk, compressed)
		c.pipe.ToWriter.Put(&pipeline.WriterTask{Kind: pipeline.TaskBlock, Entry: e, BlockLen: int(outLen)})
	}
	return nil
}

func (c *Context) createSymlink(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	if c.Opts.Force {
		os.Remove(dest)
	}
	target, _ := ino.Readlink()
	if err := os.Symlink(string(target), dest); err != nil {
		return classifyFsErr(dest, err)
	}

	ts := unix.NsecToTimespec(time.Unix(int64(ino.ModTime), 0).UnixNano())
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, dest, []unix.Timespec{ts, ts}, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		c.recordError(squashfs.NewExtractError(squashfs.KindFsCreateOther, dest, err))
	}
	if c.isRoot {
		if err := unix.Lchown(dest, int(ino.GetUid()), int(ino.GetGid())); err != nil {
			c.recordError(squashfs.NewExtractError(squashfs.KindFsCreateOther, dest, err))
		}
	}
	return nil
}

func (c *Context) createDevice(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	if !c.isRoot {
		return nil
	}
	if c.Opts.Force {
		os.Remove(dest)
	}
	attr := format.FromInode(ino)
	if err := unix.Mknod(dest, attr.Mode, int(attr.Rdev)); err != nil {
		return classifyFsErr(dest, err)
	}
	return c.finishSpecial(ino, dest)
}

func (c *Context) createFifo(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	if c.Opts.Force {
		os.Remove(dest)
	}
	if err := unix.Mkfifo(dest, uint32(ino.Perm)&0777); err != nil {
		return classifyFsErr(dest, err)
	}
	return c.finishSpecial(ino, dest)
}

func (c *Context) createSocket(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	if !c.isRoot {
		return nil
	}
	if c.Opts.Force {
		os.Remove(dest)
	}
	attr := format.FromInode(ino)
	if err := unix.Mknod(dest, attr.Mode, 0); err != nil {
		return classifyFsErr(dest, err)
	}
	return c.finishSpecial(ino, dest)
}

func (c *Context) finishSpecial(ino *squashfs.Inode, dest string) *squashfs.ExtractError {
	ts := time.Unix(int64(ino.ModTime), 0)
	if err := os.Chtimes(dest, ts, ts); err != nil {
		c.recordError(squashfs.NewExtractError(squashfs.KindFsCreateOther, dest, err))
	}
	if c.isRoot {
		if err := os.Chown(dest, int(ino.GetUid()), int(ino.GetGid())); err != nil {
			c.recordError(squashfs.NewExtractError(squashfs.KindFsCreateOther, dest, err))
		}
	}
	return nil
}
