// Package xattr implements the assumed write-xattr capability named by
// spec §1 ("xattr decoding and application... a write-xattr capability
// is assumed"): given a path and a resolved set of name/value pairs, it
// applies them to the filesystem. Decoding the image's on-disk xattr
// table is out of scope; callers are responsible for resolving whatever
// they want applied here.
package xattr

import (
	"strings"

	"github.com/pkg/xattr"
)

// UserOnly reports whether name is in the user.* namespace, used to
// implement -user-xattrs (apply only user.* attributes, skip
// security.*/system.*/trusted.*).
func UserOnly(name string) bool {
	return strings.HasPrefix(name, "user.")
}

// Apply sets each name/value pair in attrs on path. userOnly restricts
// application to the user.* namespace (-user-xattrs); the default
// (-xattrs) applies every namespace present.
func Apply(path string, attrs map[string][]byte, userOnly bool) error {
	var firstErr error
	for name, value := range attrs {
		if userOnly && !UserOnly(name) {
			continue
		}
		if err := xattr.LSet(path, name, value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
