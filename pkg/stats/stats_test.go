package stats

import (
	"sync"
	"testing"
)

func TestCollector_SnapshotReflectsIncrements(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	c.IncRequests()
	c.IncRequests()
	c.IncJSONRPCRequests()
	c.IncToolCalls()
	c.IncRegistrations()
	c.IncWSConnections()
	c.IncWSMessages()
	c.IncErrors()

	snap := c.Snapshot()
	if snap.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", snap.TotalRequests)
	}
	if snap.JSONRPCRequests != 1 || snap.ToolCalls != 1 || snap.ServerRegistrations != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.WSConnections != 1 || snap.WSMessages != 1 || snap.Errors != 1 {
		t.Errorf("unexpected ws/error counters: %+v", snap)
	}
}

func TestCollector_ConcurrentIncrements_NoLostUpdates(t *testing.T) {
	t.Parallel()

	c := NewCollector()
	const goroutines = 50
	const perGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.IncRequests()
				c.IncToolCalls()
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	want := int64(goroutines * perGoroutine)
	if snap.TotalRequests != want {
		t.Errorf("TotalRequests = %d, want %d", snap.TotalRequests, want)
	}
	if snap.ToolCalls != want {
		t.Errorf("ToolCalls = %d, want %d", snap.ToolCalls, want)
	}
}
