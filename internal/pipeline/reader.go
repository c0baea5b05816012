package pipeline

import (
	"github.com/sqfsx/unsquashfs/internal/blockcache"
	"github.com/sqfsx/unsquashfs/internal/queue"
)

// ReadAtFunc reads the on-disk bytes for one block (spec's BlockIO
// capability, already offset-shifted and position-locked by the caller).
type ReadAtFunc func(offset int64, buf []byte) error

// RunReader is the Reader worker (spec §4.5): it pulls entries off in,
// reads their raw on-disk bytes via read, and either hands compressed
// entries to toInflate or marks uncompressed ones ready immediately.
// Runs until in is closed by draining a nil entry; callers stop it by
// sending a Shutdown-adjacent sentinel through their own control path,
// since Queue itself has no close signal.
func RunReader(in *queue.Queue[*blockcache.Entry], toInflate *queue.Queue[*blockcache.Entry], cache *blockcache.Cache, read ReadAtFunc, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		e := in.Get()
		if e == nil {
			return
		}
		buf := make([]byte, e.Size)
		if err := read(e.Offset, buf); err != nil {
			cache.Ready(e, nil, err)
			continue
		}
		if e.Compressed {
			e.Data = buf
			toInflate.Put(e)
			continue
		}
		cache.Ready(e, buf, nil)
	}
}
