package clock

import (
	"sync"
	"testing"
)

func TestOrderClock_NextIsStrictlyIncreasing(t *testing.T) {
	oc := NewOrder(0)

	const workers, perWorker = 8, 1000
	seen := make(chan uint64, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				seen <- uint64(oc.Next())
			}
		}()
	}
	wg.Wait()
	close(seen)

	uniq := make(map[uint64]struct{}, workers*perWorker)
	for v := range seen {
		if _, dup := uniq[v]; dup {
			t.Fatalf("order index %d handed out twice", v)
		}
		uniq[v] = struct{}{}
	}
	if got := uint64(oc.Val()); got != workers*perWorker {
		t.Fatalf("expected clock at %d, got %d", workers*perWorker, got)
	}
}
