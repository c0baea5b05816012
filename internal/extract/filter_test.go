package extract

import (
	"testing"

	"github.com/sqfsx/unsquashfs/internal/pathfilter"
)

func newCtx(extract, exclude *pathfilter.Tree) *Context {
	return &Context{Opts: Options{Extract: extract, Exclude: exclude}}
}

func TestDecideNoFiltersIncludesEverything(t *testing.T) {
	c := newCtx(nil, nil)
	include, _, _ := c.decide(startState(nil), startState(nil), "anything", false)
	if !include {
		t.Fatal("expected include=true with no filters configured")
	}
}

func TestDecideExtractTreePrunesNonMatches(t *testing.T) {
	tree := pathfilter.New(pathfilter.ModeLiteral)
	tree.Add("etc/conf.d", pathfilter.KindExtract)

	c := newCtx(tree, nil)
	exSt := startState(tree)

	include, childEx, _ := c.decide(exSt, startState(nil), "etc", true)
	if !include {
		t.Fatal("expected etc (a prefix of the extract path) to be included")
	}
	if childEx.all {
		t.Fatal("expected childEx to still be constrained after matching a link node")
	}

	include, _, _ = c.decide(exSt, startState(nil), "var", true)
	if include {
		t.Fatal("expected var (not on the extract path) to be excluded")
	}

	// Descend into etc's child state and confirm conf.d matches as a leaf.
	include, childEx2, _ := c.decide(childEx, startState(nil), "conf.d", true)
	if !include {
		t.Fatal("expected conf.d to match the extract leaf")
	}
	if !childEx2.all {
		t.Fatal("expected everything under a matched leaf to be included (all=true)")
	}

	// Once under a fully-matched leaf, further descendants are all included.
	include, grandchild, _ := c.decide(childEx2, startState(nil), "app.conf", false)
	if !include || !grandchild.all {
		t.Fatal("expected a file under a matched leaf directory to be included with all=true")
	}
}

func TestDecideExcludeTreePrunesMatches(t *testing.T) {
	tree := pathfilter.New(pathfilter.ModeLiteral)
	tree.Add("var/cache", pathfilter.KindExclude)

	c := newCtx(nil, tree)
	exclSt := startState(tree)

	include, _, childExcl := c.decide(startState(nil), exclSt, "var", true)
	if !include {
		t.Fatal("expected var (a prefix of the exclude path) to still be included")
	}

	include, _, _ = c.decide(startState(nil), childExcl, "cache", true)
	if include {
		t.Fatal("expected var/cache to be excluded")
	}

	include, _, _ = c.decide(startState(nil), childExcl, "other", true)
	if !include {
		t.Fatal("expected var/other to remain included")
	}
}

func TestDecideExtractAndExcludeCombine(t *testing.T) {
	extractTree := pathfilter.New(pathfilter.ModeLiteral)
	extractTree.Add("etc", pathfilter.KindExtract)

	excludeTree := pathfilter.New(pathfilter.ModeLiteral)
	excludeTree.Add("etc/secret.conf", pathfilter.KindExclude)

	c := newCtx(extractTree, excludeTree)
	exSt := startState(extractTree)
	exclSt := startState(excludeTree)

	include, childEx, childExcl := c.decide(exSt, exclSt, "etc", true)
	if !include {
		t.Fatal("expected etc to be included (matches the extract leaf)")
	}
	if !childEx.all {
		t.Fatal("expected childEx.all once etc itself matched the extract leaf")
	}

	include, _, _ = c.decide(childEx, childExcl, "secret.conf", false)
	if include {
		t.Fatal("expected etc/secret.conf to be excluded even though etc is fully extracted")
	}

	include, _, _ = c.decide(childEx, childExcl, "app.conf", false)
	if !include {
		t.Fatal("expected etc/app.conf to remain included")
	}
}

func TestStepAllStaysAll(t *testing.T) {
	s := activeState{all: true}
	matched, next := s.step(pathfilter.ModeLiteral, "anything")
	if matched {
		t.Fatal("all=true state should never report a leaf match")
	}
	if !next.all {
		t.Fatal("all=true state should propagate all=true")
	}
}
