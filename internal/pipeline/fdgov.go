package pipeline

import (
	"os"
	"sync"
)

// FdGovernor is the OpenFdGovernor component (spec §4.9): a purely
// counting limiter on the number of output files open at once, so a
// wide tree with many regular files can't exhaust the process's file
// descriptor rlimit. It does not track which fds are open, only how
// many slots remain.
type FdGovernor struct {
	mu        sync.Mutex
	cond      *sync.Cond
	free      int
	unlimited bool
}

// NewFdGovernor creates a governor allowing up to maxOpen simultaneous
// output files. maxOpen <= 0 means unlimited.
func NewFdGovernor(maxOpen int) *FdGovernor {
	g := &FdGovernor{free: maxOpen, unlimited: maxOpen <= 0}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// OpenWait blocks until a slot is available (no-op when unlimited), then
// opens path with the given flags/mode.
func (g *FdGovernor) OpenWait(path string, flags int, mode os.FileMode) (*os.File, error) {
	g.acquire()
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		g.release()
		return nil, err
	}
	return f, nil
}

// CloseWake closes f and releases its slot, waking one waiter in OpenWait.
func (g *FdGovernor) CloseWake(f *os.File) error {
	err := f.Close()
	g.release()
	return err
}

func (g *FdGovernor) acquire() {
	if g.unlimited {
		return
	}
	g.mu.Lock()
	for g.free == 0 {
		g.cond.Wait()
	}
	g.free--
	g.mu.Unlock()
}

func (g *FdGovernor) release() {
	if g.unlimited {
		return
	}
	g.mu.Lock()
	g.free++
	g.cond.Signal()
	g.mu.Unlock()
}
