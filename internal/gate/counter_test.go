package gate

import (
	"sync"
	"testing"
)

func TestAttemptCounterTrips(t *testing.T) {
	c := NewAttemptCounter(3)

	for i := 1; i < 3; i++ {
		count, tripped := c.Fail("203.0.113.9")
		if tripped {
			t.Fatalf("tripped early at %d", i)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
	}

	count, tripped := c.Fail("203.0.113.9")
	if !tripped || count != 3 {
		t.Fatalf("Fail() = (%d, %v), want (3, true)", count, tripped)
	}
	if c.Tracked("203.0.113.9") {
		t.Error("counter should be cleared after tripping")
	}
}

func TestAttemptCounterReset(t *testing.T) {
	c := NewAttemptCounter(3)
	c.Fail("10.0.0.1")
	c.Fail("10.0.0.1")
	c.Fail("10.0.0.2")

	c.Reset("10.0.0.1")

	if c.Count("10.0.0.1") != 0 {
		t.Errorf("Count after reset = %d, want 0", c.Count("10.0.0.1"))
	}
	if c.Count("10.0.0.2") != 1 {
		t.Errorf("other IP count = %d, want 1", c.Count("10.0.0.2"))
	}
}

func TestAttemptCounterMinimumThreshold(t *testing.T) {
	c := NewAttemptCounter(0)
	if c.Threshold() != 1 {
		t.Errorf("Threshold() = %d, want 1", c.Threshold())
	}
	if _, tripped := c.Fail("10.0.0.1"); !tripped {
		t.Error("threshold of 1 should trip on first failure")
	}
}

func TestAttemptCounterConcurrent(t *testing.T) {
	const (
		threshold = 3
		workers   = 30
	)
	c := NewAttemptCounter(threshold)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		trips int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, tripped := c.Fail("198.51.100.7"); tripped {
				mu.Lock()
				trips++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if trips != workers/threshold {
		t.Errorf("trips = %d, want %d", trips, workers/threshold)
	}
	if c.Tracked("198.51.100.7") {
		t.Error("counter should be cleared after an exact multiple of the threshold")
	}
}
