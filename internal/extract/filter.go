package extract

import "github.com/sqfsx/unsquashfs/internal/pathfilter"

// activeState is one tree's "active set" at the current directory depth
// (spec §4.7's Active set), generalized with an explicit "all" flag so the
// two cases the spec calls out as distinct — "no filter configured" and "a
// leaf matched, everything underneath is implicitly included" — collapse
// into the same representation instead of needing separate code paths at
// every call site.
type activeState struct {
	nodes []*pathfilter.Node
	all   bool
}

func startState(t *pathfilter.Tree) activeState {
	if t == nil {
		return activeState{all: true}
	}
	return activeState{nodes: t.Roots}
}

// step matches name against the active set and returns whether it matched
// a leaf outright, plus the active set children of name should inherit.
func (s activeState) step(mode pathfilter.Mode, name string) (matched bool, next activeState) {
	if s.all {
		return false, activeState{all: true}
	}
	m, nxt := pathfilter.Matches(s.nodes, mode, name)
	if m {
		return true, activeState{all: true}
	}
	return false, activeState{nodes: nxt}
}

// decide applies extract/exclude trees to one directory entry and returns
// whether it should be processed, and the active states its children (if
// any) should inherit.
func (c *Context) decide(exSt, exclSt activeState, name string, isDir bool) (include bool, childEx, childExcl activeState) {
	include = true
	childEx = activeState{all: true}
	if c.Opts.Extract != nil && !exSt.all {
		matched, next := exSt.step(c.Opts.Extract.Mode, name)
		switch {
		case matched:
			childEx = activeState{all: true}
		case isDir && len(next.nodes) > 0:
			childEx = next
		default:
			include = false
		}
	}
	if !include {
		return false, activeState{}, activeState{}
	}

	childExcl = activeState{all: true}
	if c.Opts.Exclude != nil {
		matched, next := exclSt.step(c.Opts.Exclude.Mode, name)
		if matched {
			return false, activeState{}, activeState{}
		}
		childExcl = next
	}
	return true, childEx, childExcl
}
