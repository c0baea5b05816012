// Package blockcache implements the BlockCache component (spec §4.3): a
// bounded cache of pending/ready data and fragment blocks, with hash
// lookup and a free list for reuse once capacity is reached. Grounded on
// unsquashfs.c's cache_init/cache_get/cache_block_ready/cache_wait/
// cache_block_put, translated from its intrusive hash-chain + free-list
// arena into a map plus container/list, which is the idiomatic Go
// equivalent the rest of the retrieval pack reaches for.
package blockcache

import (
	"container/list"
	"sync"

	"github.com/sqfsx/unsquashfs/internal/queue"
)

// Entry is a single cached block: its on-disk location, whether its
// on-disk payload is compressed, and the buffer the reader/inflator fill
// in before marking it ready. Fields other than Data/Compressed/Offset
// are cache-internal bookkeeping and are not safe to read without going
// through Wait first.
type Entry struct {
	Offset     int64
	Size       uint32
	Compressed bool

	Data []byte
	Err  error

	mu      sync.Mutex
	cond    *sync.Cond
	pending bool
	used    int
	elem    *list.Element // free-list element, valid only when used == 0
}

// Cache is the BlockCache: up to maxBuffers in-flight/ready blocks,
// addressed by on-disk offset, with LRU-ish reuse of unreferenced
// entries once capacity is reached.
type Cache struct {
	blockSize  int
	maxBuffers int
	reader     *queue.Queue[*Entry]

	mu      sync.Mutex
	cond    *sync.Cond
	byOfft  map[int64]*Entry
	free    *list.List // least-recently-freed at Front, most-recent at Back
	count   int
}

// New creates a Cache holding up to maxBuffers blockSize-byte buffers.
// Newly materialized entries (cache miss, or an evicted slot reused for
// a different offset) are enqueued onto reader for the BlockIO/inflator
// pipeline to fill in.
func New(blockSize, maxBuffers int, reader *queue.Queue[*Entry]) *Cache {
	c := &Cache{
		blockSize:  blockSize,
		maxBuffers: maxBuffers,
		reader:     reader,
		byOfft:     make(map[int64]*Entry),
		free:       list.New(),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Get returns the handle for the block at offset, materializing it (and
// queuing it to the reader) if it is not already cached. size and
// compressed describe the on-disk payload and are only consulted the
// first time an offset is seen.
func (c *Cache) Get(offset int64, size uint32, compressed bool) *Entry {
	c.mu.Lock()

	if e, ok := c.byOfft[offset]; ok {
		if e.elem != nil {
			c.free.Remove(e.elem)
			e.elem = nil
		}
		e.used++
		c.mu.Unlock()
		return e
	}

	var e *Entry
	if c.count < c.maxBuffers {
		e = &Entry{}
		e.cond = sync.NewCond(&e.mu)
		c.count++
	} else {
		for c.free.Len() == 0 {
			c.cond.Wait()
		}
		front := c.free.Front()
		e = front.Value.(*Entry)
		c.free.Remove(front)
		e.elem = nil
		// entry may have belonged to a different key; unlink it.
		for k, v := range c.byOfft {
			if v == e {
				delete(c.byOfft, k)
				break
			}
		}
	}

	e.Offset = offset
	e.Size = size
	e.Compressed = compressed
	e.Data = nil
	e.Err = nil
	e.pending = true
	e.used = 1

	c.byOfft[offset] = e
	c.mu.Unlock()

	c.reader.Put(e)
	return e
}

// Ready marks e as no longer pending, latching err (nil on success), and
// wakes every goroutine blocked in Wait(e). Called at most once per
// materialization, by the reader (I/O failure) or an inflator
// (decompress failure/success).
func (c *Cache) Ready(e *Entry, data []byte, err error) {
	e.mu.Lock()
	e.Data = data
	e.Err = err
	e.pending = false
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Wait blocks until e is no longer pending and returns its terminal
// error, if any.
func (c *Cache) Wait(e *Entry) error {
	e.mu.Lock()
	for e.pending {
		e.cond.Wait()
	}
	err := e.Err
	e.mu.Unlock()
	return err
}

// Put releases the caller's reference to e. Once the last reference is
// released the entry moves to the free-list tail (still hash-reachable
// until some future Get evicts it for a different offset) and one
// waiter blocked on capacity in Get is woken.
func (c *Cache) Put(e *Entry) {
	c.mu.Lock()
	e.used--
	if e.used == 0 {
		e.elem = c.free.PushBack(e)
		c.cond.Signal()
	}
	c.mu.Unlock()
}
