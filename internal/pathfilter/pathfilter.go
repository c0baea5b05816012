// Package pathfilter implements the PathFilter component (spec §4.7):
// independent include/exclude tries of path components, matched literally,
// as shell globs (via doublestar, the closest ecosystem analogue to
// fnmatch(PATHNAME|PERIOD|EXTMATCH) named in the spec), or as POSIX
// extended regexes. Grounded on unsquashfs.c's add_path/extract_matches/
// exclude_matches.
package pathfilter

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind is what a leaf node in the trie means once matched.
type Kind int

const (
	// KindLink marks a non-leaf node: matching it continues matching
	// against its children rather than deciding inclusion/exclusion.
	KindLink Kind = iota
	KindExtract
	KindExclude
)

// Mode selects how a path component string is interpreted.
type Mode int

const (
	ModeGlob Mode = iota
	ModeRegex
	ModeLiteral
)

// Node is one component of an include or exclude path.
type Node struct {
	Name     string
	Kind     Kind
	Children []*Node

	re *regexp.Regexp
}

func (n *Node) matches(mode Mode, name string) bool {
	switch mode {
	case ModeLiteral:
		return n.Name == name
	case ModeRegex:
		if n.re == nil {
			return false
		}
		return n.re.MatchString(name)
	default: // ModeGlob
		ok, err := doublestar.Match(n.Name, name)
		return err == nil && ok
	}
}

// Tree is one of the two independent filter trees (extracts, excludes).
type Tree struct {
	Mode  Mode
	Roots []*Node
}

// New creates an empty Tree matching components the given way.
func New(mode Mode) *Tree {
	return &Tree{Mode: mode}
}

// Add inserts path (split on '/') into the tree with the given leaf
// kind. Re-adding the same component sequence is idempotent. Inserting
// a shorter path at an existing leaf-or-link node discards whatever
// descendants that node had (the shorter path now covers everything
// under it); inserting a longer path under an existing leaf is a no-op,
// since the leaf already covers that subtree.
func (t *Tree) Add(path string, leafKind Kind) error {
	comps := splitPath(path)
	if len(comps) == 0 {
		return nil
	}
	var err error
	t.Roots, err = insert(t.Roots, comps, leafKind, t.Mode)
	return err
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func insert(nodes []*Node, comps []string, leafKind Kind, mode Mode) ([]*Node, error) {
	name := comps[0]
	rest := comps[1:]

	for _, n := range nodes {
		if n.Name != name {
			continue
		}
		if n.Kind != KindLink {
			// existing leaf: a longer path underneath it is redundant,
			// a same-length re-add is idempotent.
			if len(rest) == 0 {
				return nodes, nil
			}
			return nodes, nil
		}
		if len(rest) == 0 {
			// shorter path now covers this node's whole subtree
			n.Kind = leafKind
			n.Children = nil
			return nodes, nil
		}
		var err error
		n.Children, err = insert(n.Children, rest, leafKind, mode)
		return nodes, err
	}

	n := &Node{Name: name}
	if mode == ModeRegex {
		re, err := regexp.Compile(name)
		if err != nil {
			return nodes, err
		}
		n.re = re
	}
	if len(rest) == 0 {
		n.Kind = leafKind
	} else {
		n.Kind = KindLink
		var err error
		n.Children, err = insert(nil, rest, leafKind, mode)
		if err != nil {
			return nodes, err
		}
	}
	return append(nodes, n), nil
}

// Matches implements both extract_matches and exclude_matches (spec
// §4.7): they are symmetric, differing only in what the caller does
// with a true result (include vs skip the entry). active is the set of
// nodes currently in play at this directory depth; nil active (no
// filter configured, or already inside a fully-matched subtree) means
// "everything matches" and must be handled by the caller before calling
// Matches, since that case needs no tree at all.
func Matches(active []*Node, mode Mode, name string) (matched bool, next []*Node) {
	for _, n := range active {
		if !n.matches(mode, name) {
			continue
		}
		if n.Kind != KindLink {
			return true, nil
		}
		next = append(next, n.Children...)
	}
	return false, next
}
