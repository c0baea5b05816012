package xattr

import (
	"os"
	"path/filepath"
	"testing"

	pkgxattr "github.com/pkg/xattr"
)

func TestUserOnly(t *testing.T) {
	cases := map[string]bool{
		"user.comment":    true,
		"security.selinux": false,
		"system.posix_acl_access": false,
		"trusted.overlay.origin":  false,
	}
	for name, want := range cases {
		if got := UserOnly(name); got != want {
			t.Errorf("UserOnly(%q) = %v, want %v", name, got, want)
		}
	}
}

// newTestFile returns a path whose filesystem is skipped entirely if it
// turns out not to support extended attributes (e.g. an overlay tmpdir
// in a restricted sandbox), rather than failing the whole suite on
// something this package's callers have no control over.
func newTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := pkgxattr.LSet(path, "user.probe", []byte("1")); err != nil {
		t.Skipf("filesystem does not support extended attributes: %v", err)
	}
	return path
}

func TestApplySetsUserXattr(t *testing.T) {
	path := newTestFile(t)

	err := Apply(path, map[string][]byte{"user.comment": []byte("hello")}, false)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := pkgxattr.LGet(path, "user.comment")
	if err != nil {
		t.Fatalf("LGet: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("xattr value = %q, want %q", got, "hello")
	}
}

func TestApplyUserOnlyFiltersNamespaces(t *testing.T) {
	path := newTestFile(t)

	attrs := map[string][]byte{
		"user.comment":     []byte("kept"),
		"security.selinux": []byte("dropped"),
	}
	// security.* typically requires CAP_SYS_ADMIN/a LSM to actually
	// apply; userOnly=true must skip it before ever attempting the
	// syscall, so this must succeed regardless of privilege.
	if err := Apply(path, attrs, true); err != nil {
		t.Fatalf("Apply with userOnly=true: %v", err)
	}

	got, err := pkgxattr.LGet(path, "user.comment")
	if err != nil {
		t.Fatalf("LGet(user.comment): %v", err)
	}
	if string(got) != "kept" {
		t.Fatalf("user.comment = %q, want %q", got, "kept")
	}

	if _, err := pkgxattr.LGet(path, "security.selinux"); err == nil {
		t.Fatal("security.selinux should not have been applied under userOnly=true")
	}
}
