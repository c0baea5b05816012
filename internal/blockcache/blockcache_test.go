package blockcache

import (
	"sync"
	"testing"
	"time"

	"github.com/sqfsx/unsquashfs/internal/queue"
)

func TestCacheGetDedupesByOffset(t *testing.T) {
	q := queue.New[*Entry](8)
	c := New(4096, 4, q)

	e1 := c.Get(100, 4096, true)
	e2 := c.Get(100, 4096, true)
	if e1 != e2 {
		t.Fatalf("Get with the same offset returned different entries")
	}
	if q.Len() != 1 {
		t.Fatalf("expected exactly one reader enqueue for a repeated offset, got %d", q.Len())
	}
}

func TestCacheWaitBlocksUntilReady(t *testing.T) {
	q := queue.New[*Entry](8)
	c := New(4096, 4, q)

	e := c.Get(0, 4096, false)

	done := make(chan error, 1)
	go func() {
		done <- c.Wait(e)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Ready was called")
	case <-time.After(20 * time.Millisecond):
	}

	c.Ready(e, []byte("payload"), nil)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait returned error %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after Ready")
	}
	if string(e.Data) != "payload" {
		t.Fatalf("Data = %q, want %q", e.Data, "payload")
	}
}

func TestCacheEvictsOnlyUnreferencedEntries(t *testing.T) {
	q := queue.New[*Entry](16)
	c := New(4096, 2, q)

	a := c.Get(0, 4096, false)
	b := c.Get(4096, 4096, false)
	c.Ready(a, []byte("a"), nil)
	c.Ready(b, []byte("b"), nil)

	// a is still referenced (not Put back); only b is free to evict.
	got := make(chan *Entry, 1)
	go func() {
		got <- c.Get(8192, 4096, false)
	}()

	select {
	case <-got:
		t.Fatal("Get(8192) returned before any slot was freed")
	case <-time.After(20 * time.Millisecond):
	}

	c.Put(b)

	select {
	case e := <-got:
		if e.Offset != 8192 {
			t.Fatalf("Offset = %d, want 8192", e.Offset)
		}
	case <-time.After(time.Second):
		t.Fatal("Get(8192) never unblocked after Put(b) freed a slot")
	}

	c.Put(a)
}

func TestCachePutAllowsReuseOnce(t *testing.T) {
	q := queue.New[*Entry](16)
	c := New(4096, 1, q)

	a := c.Get(0, 4096, false)
	c.Ready(a, nil, nil)
	c.Put(a)

	b := c.Get(4096, 4096, false)
	if b.Offset != 4096 {
		t.Fatalf("Offset = %d, want 4096", b.Offset)
	}
	if _, ok := c.byOfft[0]; ok {
		t.Fatal("evicted entry's old offset is still indexed")
	}
}

func TestCacheConcurrentGetsOfSameOffset(t *testing.T) {
	q := queue.New[*Entry](64)
	c := New(4096, 8, q)

	var wg sync.WaitGroup
	results := make([]*Entry, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(1000, 4096, true)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different entry than goroutine 0", i)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("expected one reader enqueue across all concurrent Gets, got %d", q.Len())
	}
}
