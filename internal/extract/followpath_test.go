package extract

import (
	"testing"
)

// FollowPath itself walks a *squashfs.Superblock, so exercising its
// symlink-dereference and cycle-guard logic needs a live image; splitComponents
// is the pure part of it and is covered directly here.

func TestSplitComponentsTrimsSlashes(t *testing.T) {
	cases := map[string][]string{
		"etc/conf.d/app.conf": {"etc", "conf.d", "app.conf"},
		"/etc/conf.d":         {"etc", "conf.d"},
		"etc/conf.d/":         {"etc", "conf.d"},
		"/":                   {""},
		"":                    {""},
	}
	for in, want := range cases {
		got := splitComponents(in)
		if len(got) != len(want) {
			t.Fatalf("splitComponents(%q) = %v, want %v", in, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("splitComponents(%q) = %v, want %v", in, got, want)
			}
		}
	}
}

func TestSplitComponentsSingleName(t *testing.T) {
	got := splitComponents("etc")
	if len(got) != 1 || got[0] != "etc" {
		t.Fatalf("splitComponents(%q) = %v, want [etc]", "etc", got)
	}
}
