package squashfs

import (
	"errors"
	"fmt"
)

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidFile is returned when the file format is not recognized as SquashFS
	ErrInvalidFile = errors.New("invalid file, squashfs signature not found")

	// ErrInvalidSuper is returned when the superblock data is corrupted or invalid
	ErrInvalidSuper = errors.New("invalid squashfs superblock")

	// ErrInvalidVersion is returned when the SquashFS version is not 4.0
	// This library only supports SquashFS 4.0 format
	ErrInvalidVersion = errors.New("invalid file version, expected squashfs 4.0")

	// ErrInodeNotExported is returned when trying to access an inode that isn't in the export table
	ErrInodeNotExported = errors.New("unknown squashfs inode and no NFS export table")

	// ErrNotDirectory is returned when attempting to perform directory operations on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrTooManySymlinks is returned when symlink resolution exceeds the maximum depth
	// This prevents infinite loops in symlink resolution
	ErrTooManySymlinks = errors.New("too many levels of symbolic links")

	// ErrCorruptMetadata is returned when a metadata block header is malformed
	// or would read past the bounds of its stream.
	ErrCorruptMetadata = errors.New("corrupt squashfs metadata block")

	// ErrUnsupportedCompressor is returned when the superblock names a
	// compressor for which no decompressor has been registered.
	ErrUnsupportedCompressor = errors.New("unsupported squashfs compressor")
)

// Kind classifies an ExtractError for the propagation policy described in
// the error handling design: some kinds are always fatal, some are
// fatal only under -strict-errors, some can be suppressed from the exit
// code entirely under -no-exit-code.
type Kind int

const (
	KindCorruptFormat Kind = iota
	KindUnsupportedCompressor
	KindIO
	KindDecompressFailed
	KindFsCreatePermission
	KindFsCreateExists
	KindFsCreateOther
	KindXattrFailed
	KindInvalidArgs
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindCorruptFormat:
		return "corrupt-format"
	case KindUnsupportedCompressor:
		return "unsupported-compressor"
	case KindIO:
		return "io"
	case KindDecompressFailed:
		return "decompress-failed"
	case KindFsCreatePermission:
		return "fs-create-permission"
	case KindFsCreateExists:
		return "fs-create-exists"
	case KindFsCreateOther:
		return "fs-create-other"
	case KindXattrFailed:
		return "xattr-failed"
	case KindInvalidArgs:
		return "invalid-args"
	case KindResourceExhausted:
		return "resource-exhausted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ExtractError carries one of the Kind values from spec §7 plus the path
// and cause it occurred on, so callers (the writer, the traversal) can
// apply the strict/ignore-errors propagation policy without re-deriving
// the kind from the wrapped error's type.
type ExtractError struct {
	Kind  Kind
	Path  string
	Cause error
}

func (e *ExtractError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Cause)
}

func (e *ExtractError) Unwrap() error { return e.Cause }

func newExtractError(kind Kind, path string, cause error) *ExtractError {
	return &ExtractError{Kind: kind, Path: path, Cause: cause}
}

// NewExtractError builds an ExtractError for callers outside the package
// (the traversal and writer layers in internal/extract), which need to
// classify their own filesystem-create/xattr failures using the same
// Kind vocabulary as the format-decoding errors raised in here.
func NewExtractError(kind Kind, path string, cause error) *ExtractError {
	return newExtractError(kind, path, cause)
}

// Fatal reports whether this error must abort the whole run rather than
// just the current entry, per spec §7's propagation policy. strict
// reflects whether -strict-errors was requested, which upgrades
// otherwise-recoverable filesystem-create/xattr failures to fatal;
// ignore overrides that upgrade back down, since -ignore-errors
// downgrades file-create failures to warnings regardless of -strict-errors.
func (e *ExtractError) Fatal(strict, ignore bool) bool {
	switch e.Kind {
	case KindCorruptFormat, KindUnsupportedCompressor, KindIO:
		return true
	case KindFsCreatePermission, KindFsCreateExists, KindFsCreateOther, KindXattrFailed:
		if ignore {
			return false
		}
		return strict
	default:
		return false
	}
}

// SetsExitCode reports whether this error should cause a non-zero (2)
// process exit code even though it did not abort the run, unless
// -no-exit-code was requested by the caller.
func (e *ExtractError) SetsExitCode() bool {
	switch e.Kind {
	case KindInvalidArgs:
		return false
	default:
		return true
	}
}
