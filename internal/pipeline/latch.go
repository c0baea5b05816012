package pipeline

import "sync"

// ErrKind classifies the cause of a write-path failure latched by
// ErrorLatch, so the caller (internal/extract's Run) can apply spec
// §7's fatal/non-fatal propagation policy to the real cause — a
// permission-denied chmod, a decompress failure, a failed xattr
// application — instead of folding every writer-side failure into one
// generic I/O kind.
type ErrKind int

const (
	ErrKindIO ErrKind = iota
	ErrKindDecompressFailed
	ErrKindFsCreatePermission
	ErrKindFsCreateExists
	ErrKindFsCreateOther
	ErrKindXattrFailed
)

// WriteError is what ErrorLatch stores and Writer.Run/Pipeline.Shutdown
// ultimately return: the classified cause of the first write-path
// failure, plus the path it occurred on.
type WriteError struct {
	Kind ErrKind
	Path string
	Err  error
}

func (e *WriteError) Error() string { return e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// ErrorLatch is the run-level error flag the writer accumulates and
// publishes to the main thread on Shutdown (spec §4.5/§5): once any
// non-fatal failure occurs, the process should still finish extraction
// but exit with a non-zero code unless the caller asked to suppress it.
type ErrorLatch struct {
	mu  sync.Mutex
	err *WriteError
}

// Set records (kind, err) at path if this is the first failure latched.
func (l *ErrorLatch) Set(kind ErrKind, path string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	if l.err == nil {
		l.err = &WriteError{Kind: kind, Path: path, Err: err}
	}
	l.mu.Unlock()
}

// Err returns the first latched failure as an error (nil if none
// occurred); callers that need the classification type-assert to
// *WriteError.
func (l *ErrorLatch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err == nil {
		return nil
	}
	return l.err
}
