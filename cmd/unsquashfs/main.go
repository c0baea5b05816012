// Command unsquashfs extracts a SquashFS image to a directory tree,
// mirroring the CLI surface of the original unsquashfs(1) (spec §6).
package main

import (
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/sqfsx/unsquashfs"
	"github.com/sqfsx/unsquashfs/internal/extract"
	"github.com/sqfsx/unsquashfs/internal/pathfilter"
	"github.com/sqfsx/unsquashfs/internal/xlog"
)

// cliOptions mirrors spec §6's CLI surface table via go-flags struct
// tags, the same long/short-option pattern the Options structs in
// canonical-snapd's cmd/snap use.
type cliOptions struct {
	Dest  string `long:"dest" short:"d" description:"destination directory" default:"squashfs-root"`
	Force bool   `long:"force" short:"f" description:"overwrite existing files"`

	List          bool `long:"ls" short:"l" description:"list files instead of extracting"`
	ListLong      bool `long:"ll" description:"list files with attributes"`
	ListLongNum   bool `long:"lln" description:"list files with attributes, numeric ids"`
	ListCrc       bool `long:"lc" description:"list files with their block count"`
	ListLongCrc   bool `long:"llc" description:"list files with attributes and block count"`
	LinkInfo      bool `long:"linfo" description:"print each path as it is created (alias of -info)"`
	Info          bool `long:"info" description:"print each path as it is created"`
	Stat          bool `long:"stat" short:"s" description:"print superblock information and exit"`

	UTC      bool `long:"UTC" description:"use UTC instead of local time for -ll output"`
	MkfsTime bool `long:"mkfs-time" description:"display the filesystem's build time and exit"`
	FsTime   bool `long:"fstime" description:"alias of -mkfs-time"`

	Processors int    `long:"processors" short:"p" description:"number of inflator goroutines" default:"0"`
	MaxDepth   int    `long:"max-depth" description:"descend at most N directory levels" default:"0"`
	Offset     string `long:"offset" description:"skip BYTES[K|M|G] before the superblock" default:"0"`

	ExtractFile string   `long:"extract-file" short:"e" description:"file listing paths to extract"`
	ExcludeFile string   `long:"exclude-file" description:"file listing paths to exclude"`
	ExcludeList []string `long:"exclude-list" description:"path to exclude, one per occurrence of the option (a ;-terminated list is not parsed)"`
	Excludes    bool     `long:"excludes" description:"treat positional arguments as excludes"`
	Regex       bool     `long:"regex" short:"r" description:"extract/exclude patterns are POSIX regexes"`
	NoWildcards bool     `long:"no-wildcards" description:"extract/exclude patterns are literal paths"`

	FollowSymlinks  bool `long:"follow-symlinks" short:"L" description:"dereference symlink arguments"`
	MissingSymlinks bool `long:"missing-symlinks" description:"a dangling -follow-symlinks target is fatal"`

	DataQueueMB int `long:"data-queue" description:"data queue size in megabytes" default:"0"`
	FragQueueMB int `long:"frag-queue" description:"fragment queue size in megabytes" default:"0"`

	Quiet      bool `long:"quiet" short:"q" description:"suppress informational output"`
	NoProgress bool `long:"no-progress" short:"n" description:"disable the progress bar"`

	NoXattrs   bool `long:"no-xattrs" description:"do not extract extended attributes"`
	Xattrs     bool `long:"xattrs" short:"x" description:"extract extended attributes (default)"`
	UserXattrs bool `long:"user-xattrs" short:"u" description:"only extract user.* extended attributes"`

	StrictErrors bool `long:"strict-errors" description:"treat recoverable extraction errors as fatal"`
	IgnoreErrors bool `long:"ignore-errors" description:"downgrade file-create/xattr failures to warnings, even under -strict-errors"`
	NoExitCode   bool `long:"no-exit-code" description:"always exit 0 unless a fatal error occurred"`

	Version bool `long:"version" short:"v" description:"print the version and exit"`

	Debug bool `long:"debug" description:"enable verbose internal tracing"`

	Positional struct {
		Image string   `positional-arg-name:"filesystem" description:"squashfs image to read"`
		Paths []string `positional-arg-name:"paths" description:"paths to extract or exclude"`
	} `positional-args:"yes"`
}

const version = "unsquashfs (sqfsx) 4.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var opts cliOptions
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		if flags.WroteHelp(err) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if opts.Version {
		fmt.Println(version)
		return 0
	}
	if opts.Positional.Image == "" {
		fmt.Fprintln(os.Stderr, "unsquashfs: missing filesystem argument")
		return 1
	}

	xlog.SetDebug(opts.Debug)
	xlog.SetQuiet(opts.Quiet)

	offset, err := parseOffset(opts.Offset)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unsquashfs:", err)
		return 1
	}

	sb, err := squashfs.Open(opts.Positional.Image, offset)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unsquashfs: open:", err)
		return 1
	}
	defer sb.Close()

	if opts.Stat {
		printStat(sb, opts.UTC)
		return 0
	}
	if opts.MkfsTime || opts.FsTime {
		fmt.Println(sb.ModTime)
		return 0
	}

	if opts.List || opts.ListLong || opts.ListLongNum || opts.ListCrc || opts.ListLongCrc {
		return runList(sb, opts, opts.UTC)
	}

	extractTree, excludeTree, err := buildFilters(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "unsquashfs:", err)
		return 1
	}

	eopts := extract.Options{
		Dest:                 opts.Dest,
		Force:                opts.Force,
		MaxDepth:             opts.MaxDepth,
		Processors:           opts.Processors,
		// BlockCache holds both data and fragment blocks in one arena
		// (spec §4.3), so -data-queue and -frag-queue share one budget.
		DataQueueMB:          opts.DataQueueMB + opts.FragQueueMB,
		FollowSymlinks:       opts.FollowSymlinks,
		MissingSymlinksFatal: opts.MissingSymlinks,
		Extract:              extractTree,
		Exclude:              excludeTree,
		NoXattrs:             opts.NoXattrs,
		UserXattrsOnly:       opts.UserXattrs,
		StrictErrors:         opts.StrictErrors,
		IgnoreErrors:         opts.IgnoreErrors,
		NoExitCode:           opts.NoExitCode,
		Quiet:                opts.Quiet,
		NoProgress:           opts.NoProgress,
		Info:                 opts.Info || opts.LinkInfo,
	}

	if opts.FollowSymlinks {
		if err := expandSymlinkTargets(sb, &opts, extractTree); err != nil {
			fmt.Fprintln(os.Stderr, "unsquashfs:", err)
			return 1
		}
	}

	if err := os.MkdirAll(opts.Dest, 0700); err != nil && !os.IsExist(err) {
		fmt.Fprintln(os.Stderr, "unsquashfs: mkdir dest:", err)
		return 1
	}

	ctx := extract.New(sb, eopts)
	return ctx.Run()
}

// parseOffset parses the -offset BYTES[K|M|G] CLI value (spec §6).
func parseOffset(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'K', 'k':
		mult = 1024
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1024 * 1024
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1024 * 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid -offset %q: %w", s, err)
	}
	return n * mult, nil
}

// buildFilters assembles the extract/exclude pathfilter.Tree values from
// -extract-file/-exclude-file/-exclude-list/positional arguments (spec
// §6, §4.7).
func buildFilters(opts cliOptions) (extractTree, excludeTree *pathfilter.Tree, err error) {
	mode := pathfilter.ModeGlob
	if opts.Regex {
		mode = pathfilter.ModeRegex
	} else if opts.NoWildcards {
		mode = pathfilter.ModeLiteral
	}

	var extractPaths, excludePaths []string
	if opts.Excludes {
		excludePaths = append(excludePaths, opts.Positional.Paths...)
	} else {
		extractPaths = append(extractPaths, opts.Positional.Paths...)
	}
	excludePaths = append(excludePaths, opts.ExcludeList...)

	if opts.ExtractFile != "" {
		lines, err := readLines(opts.ExtractFile)
		if err != nil {
			return nil, nil, err
		}
		extractPaths = append(extractPaths, lines...)
	}
	if opts.ExcludeFile != "" {
		lines, err := readLines(opts.ExcludeFile)
		if err != nil {
			return nil, nil, err
		}
		excludePaths = append(excludePaths, lines...)
	}

	if len(extractPaths) > 0 {
		extractTree = pathfilter.New(mode)
		for _, p := range extractPaths {
			if err := extractTree.Add(p, pathfilter.KindExtract); err != nil {
				return nil, nil, err
			}
		}
	}
	if len(excludePaths) > 0 {
		excludeTree = pathfilter.New(mode)
		for _, p := range excludePaths {
			if err := excludeTree.Add(p, pathfilter.KindExclude); err != nil {
				return nil, nil, err
			}
		}
	}
	return extractTree, excludeTree, nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// expandSymlinkTargets resolves -follow-symlinks arguments and folds
// both the link and its ultimate target into the extract tree (spec
// §4.8's follow_path, scenario 4).
func expandSymlinkTargets(sb *squashfs.Superblock, opts *cliOptions, extractTree *pathfilter.Tree) error {
	if extractTree == nil {
		return nil
	}
	for _, p := range opts.Positional.Paths {
		resolved, traversed, err := extract.FollowPath(sb, p, opts.MissingSymlinks)
		if err != nil {
			return err
		}
		for _, t := range traversed {
			if err := extractTree.Add(t, pathfilter.KindExtract); err != nil {
				return err
			}
		}
		if resolved != "" {
			if err := extractTree.Add(resolved, pathfilter.KindExtract); err != nil {
				return err
			}
		}
	}
	return nil
}

func printStat(sb *squashfs.Superblock, utc bool) {
	t := time.Unix(int64(sb.ModTime), 0)
	if utc {
		t = t.UTC()
	}
	fmt.Printf("Filesystem version: %d.%d\n", sb.VMajor, sb.VMinor)
	fmt.Printf("Creation or last append time: %s\n", t.Format(time.RFC1123))
	fmt.Printf("Block size: %d\n", sb.BlockSize)
	fmt.Printf("Compression: %s\n", sb.Comp)
	fmt.Printf("Flags: %s\n", sb.Flags)
	fmt.Printf("Filesystem size: %d bytes\n", sb.BytesUsed)
	fmt.Printf("Inode count: %d\n", sb.InodeCnt)
	fmt.Printf("Fragment count: %d\n", sb.FragCount)
	fmt.Printf("Id count: %d\n", sb.IdCount)
}

func runList(sb *squashfs.Superblock, opts cliOptions, utc bool) int {
	root := "."
	if len(opts.Positional.Paths) > 0 {
		root = opts.Positional.Paths[0]
	}
	long := opts.ListLong || opts.ListLongNum || opts.ListLongCrc
	crc := opts.ListCrc || opts.ListLongCrc

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fs.ReadDir(sb, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			display := e.Name()
			if dir != "." {
				display = dir + "/" + e.Name()
			}
			info, err := e.Info()
			if err != nil {
				fmt.Fprintf(os.Stderr, "unsquashfs: %s: %s\n", display, err)
				continue
			}
			printEntry(display, info, long, crc, utc)
			if e.IsDir() {
				if err := walk(display); err != nil {
					fmt.Fprintf(os.Stderr, "unsquashfs: %s: %s\n", display, err)
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		fmt.Fprintln(os.Stderr, "unsquashfs:", err)
		return 1
	}
	return 0
}

// printEntry renders one directory listing line. Uid/gid are always
// numeric (no nss lookup is wired), so -ll and -lln render identically.
func printEntry(path string, info fs.FileInfo, long, crc, utc bool) {
	if !long {
		if ino, ok := info.Sys().(*squashfs.Inode); ok && crc && len(ino.Blocks) > 0 {
			fmt.Printf("%s [%d blocks]\n", path, len(ino.Blocks))
			return
		}
		fmt.Println(path)
		return
	}

	ino := info.Sys().(*squashfs.Inode)
	typeChar := byte('-')
	switch {
	case info.IsDir():
		typeChar = 'd'
	case info.Mode()&fs.ModeSymlink != 0:
		typeChar = 'l'
	case ino.IsDevice():
		typeChar = 'c'
		if squashfs.Type(ino.Type).Basic() == squashfs.BlockDevType {
			typeChar = 'b'
		}
	case ino.IsFifo():
		typeChar = 'p'
	case ino.IsSocket():
		typeChar = 's'
	}

	owner := fmt.Sprintf("%d/%d", ino.GetUid(), ino.GetGid())

	size := fmt.Sprintf("%8d", info.Size())
	if info.IsDir() {
		size = "       -"
	}

	mtime := info.ModTime()
	if utc {
		mtime = mtime.UTC()
	}
	line := fmt.Sprintf("%c%s %s %s %s %s", typeChar, info.Mode().String()[1:], owner, size,
		mtime.Format("2006-01-02 15:04"), path)
	if crc && len(ino.Blocks) > 0 {
		line += fmt.Sprintf(" [%d blocks]", len(ino.Blocks))
	}
	fmt.Println(line)
}
