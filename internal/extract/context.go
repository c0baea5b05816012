package extract

import (
	"os"
	"runtime"
	"sync"

	"github.com/sqfsx/unsquashfs"
	"github.com/sqfsx/unsquashfs/internal/pipeline"
	"github.com/sqfsx/unsquashfs/internal/progress"
	"github.com/sqfsx/unsquashfs/internal/xattr"
	"golang.org/x/sys/unix"
)

// Context is the consolidated process-wide state spec §9 suggests: the
// counters, the created_inode hard-link table, the fd/pipeline/progress
// machinery, and the exit-code latch, passed explicitly instead of living
// in package globals the way unsquashfs.c's Context struct does.
type Context struct {
	SB   *squashfs.Superblock
	Opts Options

	isRoot       bool
	createdInode []string

	pipe *pipeline.Pipeline
	prog *progress.Meter

	mu           sync.Mutex
	nonFatalSeen bool
}

// New builds a Context and starts its Pipeline. Run shuts the Pipeline
// down once traversal has finished queuing work.
func New(sb *squashfs.Superblock, opts Options) *Context {
	if opts.Processors < 1 {
		opts.Processors = runtime.NumCPU()
	}
	maxOpen := opts.MaxOpenFds
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpenFiles()
	}

	c := &Context{
		SB:           sb,
		Opts:         opts,
		isRoot:       os.Geteuid() == 0,
		createdInode: make([]string, sb.InodeCnt),
	}

	var applyXattr pipeline.ApplyXattrFunc
	if !opts.NoXattrs {
		applyXattr = func(path string, attrs map[string][]byte) error {
			return xattr.Apply(path, attrs, opts.UserXattrsOnly)
		}
	}

	c.pipe = pipeline.Start(pipeline.Config{
		BlockSize:  int(sb.BlockSize),
		MaxBuffers: maxBuffers(opts, int(sb.BlockSize)),
		Processors: opts.Processors,
		MaxOpenFds: maxOpen,
		Read: func(offset int64, buf []byte) error {
			_, err := sb.ReadAt(buf, offset)
			return err
		},
		Decompress: sb.Comp.Decompress,
		ApplyXattr: applyXattr,
		IsRoot:     c.isRoot,
	})

	return c
}

// maxBuffers converts the -data-queue budget (in megabytes) into a count
// of blockSize-byte cache buffers.
func maxBuffers(opts Options, blockSize int) int {
	mb := opts.DataQueueMB
	if mb <= 0 {
		mb = 64
	}
	n := mb << 20 / blockSize
	if n < 8 {
		n = 8
	}
	return n
}

// DefaultMaxOpenFiles derives OpenFdGovernor's capacity from the process's
// file descriptor rlimit, leaving a margin for stdio/the backing image/the
// progress terminal (spec §4.9: max_open = rlim_nofile - margin(10)).
func DefaultMaxOpenFiles() int {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0
	}
	n := int(rl.Cur) - 10
	if n < 1 {
		n = 1
	}
	return n
}

// recordError latches a non-fatal failure for the run-level exit code and
// reports whether the run must abort given -strict-errors.
func (c *Context) recordError(err *squashfs.ExtractError) (fatal bool) {
	if err == nil {
		return false
	}
	if err.SetsExitCode() {
		c.mu.Lock()
		c.nonFatalSeen = true
		c.mu.Unlock()
	}
	return err.Fatal(c.Opts.StrictErrors, c.Opts.IgnoreErrors)
}

// ExitCode reports the process exit code to use per spec §6/§7: 0 clean,
// 1 fatal, 2 non-fatal errors occurred (unless -no-exit-code).
func (c *Context) ExitCode(fatal bool) int {
	if fatal {
		return 1
	}
	c.mu.Lock()
	seen := c.nonFatalSeen
	c.mu.Unlock()
	if seen && !c.Opts.NoExitCode {
		return 2
	}
	return 0
}

func classifyFsErr(path string, err error) *squashfs.ExtractError {
	if err == nil {
		return nil
	}
	switch {
	case os.IsPermission(err):
		return squashfs.NewExtractError(squashfs.KindFsCreatePermission, path, err)
	case os.IsExist(err):
		return squashfs.NewExtractError(squashfs.KindFsCreateExists, path, err)
	default:
		return squashfs.NewExtractError(squashfs.KindFsCreateOther, path, err)
	}
}
