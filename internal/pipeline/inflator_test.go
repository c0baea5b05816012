package pipeline

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sqfsx/unsquashfs/internal/blockcache"
	"github.com/sqfsx/unsquashfs/internal/queue"
)

// xorEntry materializes a cache entry and drains the cache's own
// auto-enqueue onto reader so the test can drive RunInflator directly
// instead of going through RunReader first.
func xorEntry(cache *blockcache.Cache, reader *queue.Queue[*blockcache.Entry], raw []byte) *blockcache.Entry {
	e := cache.Get(0, uint32(len(raw)), true)
	_ = reader.Get()
	e.Data = raw
	return e
}

func TestRunInflatorDecompressesSuccessfully(t *testing.T) {
	reader := queue.New[*blockcache.Entry](4)
	cache := blockcache.New(8, 4, reader)
	toInflate := queue.New[*blockcache.Entry](4)

	e := xorEntry(cache, reader, []byte{0x00, 0xFF})
	toInflate.Put(e)

	decompress := func(buf []byte) ([]byte, error) {
		out := make([]byte, len(buf))
		for i, b := range buf {
			out[i] = b ^ 0xFF
		}
		return out, nil
	}

	done := make(chan struct{})
	go RunInflator(toInflate, cache, decompress, done)

	if err := cache.Wait(e); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !bytes.Equal(e.Data, []byte{0xFF, 0x00}) {
		t.Fatalf("Data = %v, want %v", e.Data, []byte{0xFF, 0x00})
	}

	toInflate.Put(nil)
}

func TestRunInflatorDecompressFailureLatchesError(t *testing.T) {
	reader := queue.New[*blockcache.Entry](4)
	cache := blockcache.New(8, 4, reader)
	toInflate := queue.New[*blockcache.Entry](4)

	e := xorEntry(cache, reader, []byte{0x01})
	toInflate.Put(e)

	wantErr := errors.New("corrupt block")
	decompress := func(buf []byte) ([]byte, error) { return nil, wantErr }

	done := make(chan struct{})
	go RunInflator(toInflate, cache, decompress, done)

	if err := cache.Wait(e); err != wantErr {
		t.Fatalf("Wait err = %v, want %v", err, wantErr)
	}

	toInflate.Put(nil)
}
