package pipeline

import (
	"github.com/sqfsx/unsquashfs/internal/blockcache"
	"github.com/sqfsx/unsquashfs/internal/queue"
)

// DecompressFunc decompresses one block's on-disk payload. Supplied by
// the caller (the root squashfs package's compressor registry) so this
// package stays format-agnostic.
type DecompressFunc func(buf []byte) ([]byte, error)

// RunInflator is one Inflator worker (spec §4.5): N of these run
// concurrently (N = -processors), each pulling compressed entries off
// toInflate and handing the cache the freshly allocated slice that
// decompress returns, so no output buffer is shared between goroutines
// or with the reader.
func RunInflator(toInflate *queue.Queue[*blockcache.Entry], cache *blockcache.Cache, decompress DecompressFunc, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}
		e := toInflate.Get()
		if e == nil {
			return
		}
		out, err := decompress(e.Data)
		cache.Ready(e, out, err)
	}
}
