package pathfilter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func namesOf(nodes []*Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func treeShape(t *testing.T, tree *Tree) map[string]any {
	t.Helper()
	var walk func(nodes []*Node) map[string]any
	walk = func(nodes []*Node) map[string]any {
		m := map[string]any{}
		for _, n := range nodes {
			if n.Kind == KindLink {
				m[n.Name] = walk(n.Children)
			} else {
				m[n.Name] = n.Kind
			}
		}
		return m
	}
	return walk(tree.Roots)
}

func TestTreeAddIdempotent(t *testing.T) {
	a := New(ModeLiteral)
	a.Add("etc/conf.d/app.conf", KindExtract)

	b := New(ModeLiteral)
	b.Add("etc/conf.d/app.conf", KindExtract)
	b.Add("etc/conf.d/app.conf", KindExtract)

	if diff := cmp.Diff(treeShape(t, a), treeShape(t, b)); diff != "" {
		t.Fatalf("adding the same path twice changed the tree (-once +twice):\n%s", diff)
	}
}

func TestTreeAddDominance(t *testing.T) {
	// A leaf at a prefix ("etc") must subsume a longer path added either
	// before or after it ("etc/conf.d/app.conf").
	short := New(ModeLiteral)
	short.Add("etc/conf.d/app.conf", KindExtract)
	short.Add("etc", KindExtract)

	direct := New(ModeLiteral)
	direct.Add("etc", KindExtract)

	if diff := cmp.Diff(treeShape(t, direct), treeShape(t, short)); diff != "" {
		t.Fatalf("shorter path did not collapse the longer sibling's subtree (-direct +short):\n%s", diff)
	}
}

func TestTreeAddLongerUnderLeafIsNoOp(t *testing.T) {
	a := New(ModeLiteral)
	a.Add("etc", KindExtract)

	b := New(ModeLiteral)
	b.Add("etc", KindExtract)
	b.Add("etc/conf.d/app.conf", KindExtract)

	if diff := cmp.Diff(treeShape(t, a), treeShape(t, b)); diff != "" {
		t.Fatalf("adding a longer path under an existing leaf changed the tree (-leaf-only +with-longer):\n%s", diff)
	}
}

func TestMatchesLiteral(t *testing.T) {
	tree := New(ModeLiteral)
	tree.Add("etc/conf.d", KindExtract)

	matched, next := Matches(tree.Roots, ModeLiteral, "etc")
	if matched {
		t.Fatal("matched=true at a non-leaf link node")
	}
	if diff := cmp.Diff([]string{"conf.d"}, namesOf(next)); diff != "" {
		t.Fatalf("next active set mismatch (-want +got):\n%s", diff)
	}

	matched, _ = Matches(next, ModeLiteral, "conf.d")
	if !matched {
		t.Fatal("expected conf.d to match the leaf node")
	}
}

func TestMatchesGlob(t *testing.T) {
	tree := New(ModeGlob)
	tree.Add("etc/*.conf", KindExtract)

	_, next := Matches(tree.Roots, ModeGlob, "etc")
	matched, _ := Matches(next, ModeGlob, "a.conf")
	if !matched {
		t.Fatal("expected a.conf to match *.conf")
	}
	matched, _ = Matches(next, ModeGlob, "b.cfg")
	if matched {
		t.Fatal("b.cfg unexpectedly matched *.conf")
	}
	// doublestar glob is path-separator-aware: * must not cross '/'.
	matched, _ = Matches(next, ModeGlob, "sub/c.conf")
	if matched {
		t.Fatal("*.conf unexpectedly matched across a path separator")
	}
}

func TestMatchesRegex(t *testing.T) {
	tree := New(ModeRegex)
	tree.Add(`^[a-z]+\.conf$`, KindExtract)

	matched, _ := Matches(tree.Roots, ModeRegex, "app.conf")
	if !matched {
		t.Fatal("expected app.conf to match the regex leaf")
	}
	matched, _ = Matches(tree.Roots, ModeRegex, "App.conf")
	if matched {
		t.Fatal("App.conf unexpectedly matched a lowercase-only regex")
	}
}

func TestMatchesNoneActive(t *testing.T) {
	matched, next := Matches(nil, ModeLiteral, "anything")
	if matched || next != nil {
		t.Fatalf("Matches(nil, ...) = (%v, %v), want (false, nil)", matched, next)
	}
}

func TestAddRegexInvalidPattern(t *testing.T) {
	tree := New(ModeRegex)
	if err := tree.Add("(unterminated", KindExtract); err == nil {
		t.Fatal("expected an error adding an invalid regex pattern")
	}
}
