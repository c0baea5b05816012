// Package xlog centralizes the ad hoc log.Printf calls the teacher
// library sprinkles through super.go/inode.go/inodereader.go behind a
// single *log.Logger whose verbosity can be gated by the CLI's
// -q/-quiet and -debug flags, without touching every call site.
package xlog

import (
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "", 0)
	debug  = false
	quiet  = false
)

// SetDebug toggles verbose internal tracing (the teacher's commented-out
// log.Printf calls, promoted to a real flag instead of being deleted).
func SetDebug(v bool) { debug = v }

// SetQuiet suppresses Infof output (-q/-quiet).
func SetQuiet(v bool) { quiet = v }

func Debugf(format string, args ...any) {
	if debug {
		logger.Printf("squashfs: "+format, args...)
	}
}

func Infof(format string, args ...any) {
	if !quiet {
		logger.Printf(format, args...)
	}
}

func Warnf(format string, args ...any) {
	logger.Printf("squashfs: warning: "+format, args...)
}

func Errorf(format string, args ...any) {
	logger.Printf("squashfs: error: "+format, args...)
}
