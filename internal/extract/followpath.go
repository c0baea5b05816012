package extract

import (
	"fmt"
	"strings"

	"github.com/sqfsx/unsquashfs"
)

// MaxFollowSymlinks bounds follow_path's dereference count (spec §4.8),
// mirroring unsquashfs.c's own fixed cap against symlink cycles.
const MaxFollowSymlinks = 40

// FollowPath resolves path (slash-separated, relative to the image root)
// to its canonical in-image form, dereferencing every symlink component
// encountered along the way. It returns the canonical path and the list
// of symlink paths dereferenced to get there, which the caller folds into
// the extraction set too (spec §4.8: "-follow-symlinks /link" extracts
// both the link and its target). A component that doesn't resolve is a
// soft failure (resolved=="", err==nil) unless missingFatal is set.
func FollowPath(sb *squashfs.Superblock, path string, missingFatal bool) (resolved string, traversed []string, err error) {
	pending := splitComponents(path)
	var stack []string
	depth := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]

		switch name {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		dir, werr := walkInode(sb, stack)
		if werr != nil {
			return "", traversed, werr
		}
		child, lerr := dir.LookupRelativeInode(nil, name)
		if lerr != nil {
			if missingFatal {
				return "", traversed, fmt.Errorf("missing path component %q: %w", name, lerr)
			}
			return "", traversed, nil
		}

		if child.IsSymlink() {
			depth++
			if depth > MaxFollowSymlinks {
				return "", traversed, squashfs.ErrTooManySymlinks
			}
			target, _ := child.Readlink()
			t := string(target)
			here := strings.Join(append(append([]string{}, stack...), name), "/")
			if strings.HasPrefix(t, "/") {
				return "", traversed, fmt.Errorf("symlink %q escapes image root", here)
			}
			traversed = append(traversed, here)
			pending = append(splitComponents(t), pending...)
			continue
		}

		stack = append(stack, name)
	}
	return strings.Join(stack, "/"), traversed, nil
}

func walkInode(sb *squashfs.Superblock, stack []string) (*squashfs.Inode, error) {
	cur := sb.Root()
	for _, s := range stack {
		next, err := cur.LookupRelativeInode(nil, s)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func splitComponents(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}
