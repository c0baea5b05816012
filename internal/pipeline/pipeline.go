// Package pipeline implements the Pipeline component (spec §4.5): the
// reader/inflator/writer worker model that turns BlockCache requests
// into extracted file contents, plus the OpenFdGovernor (spec §4.9)
// that bounds how many output files are open at once. Grounded on
// unsquashfs.c's init_threads/reader/inflator/writer, translated from
// pthreads into goroutines and the project's own Queue/blockcache types.
package pipeline

import (
	"github.com/sqfsx/unsquashfs/internal/blockcache"
	"github.com/sqfsx/unsquashfs/internal/queue"
)

// Config bundles everything needed to stand up one pipeline instance.
type Config struct {
	BlockSize  int
	MaxBuffers int
	Processors int // number of Inflator goroutines, >= 1
	MaxOpenFds int // <= 0 means unlimited

	Read       ReadAtFunc
	Decompress DecompressFunc
	ApplyXattr ApplyXattrFunc
	IsRoot     bool
}

// Pipeline owns the queues, cache and worker goroutines for one
// extraction run.
type Pipeline struct {
	Cache    *blockcache.Cache
	ToWriter *queue.Queue[*WriterTask]
	FdGov    *FdGovernor

	toReader  *queue.Queue[*blockcache.Entry]
	toInflate *queue.Queue[*blockcache.Entry]
	fromWriter *queue.Queue[error]
	writer    *Writer
	errLatch  *ErrorLatch
	done      chan struct{}
}

// Start builds the queues/cache and launches the reader, N inflator and
// writer goroutines described by cfg. Call Shutdown to drain and stop.
func Start(cfg Config) *Pipeline {
	if cfg.Processors < 1 {
		cfg.Processors = 1
	}

	p := &Pipeline{
		toReader:   queue.New[*blockcache.Entry](64),
		toInflate:  queue.New[*blockcache.Entry](64),
		ToWriter:   queue.New[*WriterTask](256),
		fromWriter: queue.New[error](1),
		FdGov:      NewFdGovernor(cfg.MaxOpenFds),
		errLatch:   &ErrorLatch{},
		done:       make(chan struct{}),
	}
	p.Cache = blockcache.New(cfg.BlockSize, cfg.MaxBuffers, p.toReader)

	go RunReader(p.toReader, p.toInflate, p.Cache, cfg.Read, p.done)
	for i := 0; i < cfg.Processors; i++ {
		go RunInflator(p.toInflate, p.Cache, cfg.Decompress, p.done)
	}
	p.writer = NewWriter(p.ToWriter, p.Cache, p.FdGov, cfg.ApplyXattr, cfg.IsRoot, p.errLatch)
	go p.writer.Run(p.fromWriter)

	return p
}

// Shutdown enqueues the Shutdown sentinel to the writer and blocks until
// it acknowledges, returning the accumulated run-level error (if any).
// Reader/inflator goroutines are left blocked on empty queues, which is
// fine: the process exits shortly after Shutdown returns.
func (p *Pipeline) Shutdown() error {
	p.ToWriter.Put(&WriterTask{Kind: TaskShutdown})
	err := p.fromWriter.Get()
	close(p.done)
	return err
}
