package pipeline

import (
	"errors"
	"testing"

	"github.com/sqfsx/unsquashfs/internal/blockcache"
	"github.com/sqfsx/unsquashfs/internal/queue"
)

func TestRunReaderUncompressedEntryReady(t *testing.T) {
	in := queue.New[*blockcache.Entry](4)
	toInflate := queue.New[*blockcache.Entry](4)
	cache := blockcache.New(8, 4, in)

	read := func(offset int64, buf []byte) error {
		copy(buf, []byte("data"))
		return nil
	}

	done := make(chan struct{})
	go RunReader(in, toInflate, cache, read, done)

	e := cache.Get(0, 4, false)
	if err := cache.Wait(e); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(e.Data) != "data" {
		t.Fatalf("Data = %q, want %q", e.Data, "data")
	}
	if toInflate.Len() != 0 {
		t.Fatal("an uncompressed entry should never reach toInflate")
	}

	in.Put(nil)
}

func TestRunReaderCompressedEntryForwardedToInflate(t *testing.T) {
	in := queue.New[*blockcache.Entry](4)
	toInflate := queue.New[*blockcache.Entry](4)
	cache := blockcache.New(8, 4, in)

	read := func(offset int64, buf []byte) error {
		copy(buf, []byte("zzzz"))
		return nil
	}

	done := make(chan struct{})
	go RunReader(in, toInflate, cache, read, done)

	e := cache.Get(0, 4, true)
	got := toInflate.Get()
	if got != e {
		t.Fatal("expected the same entry to be forwarded to toInflate")
	}
	if string(got.Data) != "zzzz" {
		t.Fatalf("Data = %q, want %q (raw on-disk bytes, not yet decompressed)", got.Data, "zzzz")
	}

	in.Put(nil)
}

func TestRunReaderIOErrorMarksEntryReady(t *testing.T) {
	in := queue.New[*blockcache.Entry](4)
	toInflate := queue.New[*blockcache.Entry](4)
	cache := blockcache.New(8, 4, in)

	wantErr := errors.New("disk fell over")
	read := func(offset int64, buf []byte) error { return wantErr }

	done := make(chan struct{})
	go RunReader(in, toInflate, cache, read, done)

	e := cache.Get(0, 4, false)
	if err := cache.Wait(e); err != wantErr {
		t.Fatalf("Wait err = %v, want %v", err, wantErr)
	}

	in.Put(nil)
}
