// Package extract implements the Traversal component (spec §4.8) and
// sizes the OpenFdGovernor that internal/pipeline provides (spec §4.9):
// a pre-scan pass that totals up work for the progress meter, a main scan
// that recreates the directory tree and feeds the pipeline, hard-link
// bookkeeping via created_inode, and symlink-following path resolution. Grounded on unsquashfs.c's dir_scan/pre_scan/create_inode/
// follow_path/open_wait, translated into a single-threaded recursive walk
// over the root squashfs package's decoded Inode graph (no path strings
// needed mid-walk, since Inode already carries everything dir_scan re-reads
// through a cursor in the C source).
package extract

import (
	"github.com/sqfsx/unsquashfs/internal/pathfilter"
)

// Options mirrors the subset of the CLI surface (spec §6) that shapes
// traversal and extraction behavior; cmd/unsquashfs fills this in from
// parsed flags.
type Options struct {
	Dest     string
	Force    bool
	MaxDepth int // 0 = unlimited

	Processors int // inflator count, 0 = runtime.NumCPU()
	MaxOpenFds int // 0 = derive from RLIMIT_NOFILE
	DataQueueMB int // 0 = default

	FollowSymlinks       bool
	MissingSymlinksFatal bool

	Extract *pathfilter.Tree // nil = extract everything
	Exclude *pathfilter.Tree // nil = exclude nothing

	NoXattrs       bool
	UserXattrsOnly bool

	StrictErrors bool
	IgnoreErrors bool
	NoExitCode   bool

	Quiet      bool
	NoProgress bool
	Info       bool // -info/-linfo: print each created path
}

// Stats is the pre-scan's output: the progress denominator (spec §9)
// is TotalInodes - TotalFiles + TotalBlocks.
type Stats struct {
	TotalInodes int64
	TotalFiles  int64
	TotalBlocks int64
}

// Total returns the progress meter's denominator.
func (s Stats) Total() int64 {
	return s.TotalInodes - s.TotalFiles + s.TotalBlocks
}
