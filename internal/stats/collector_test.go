package stats

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_RequestAggregates(t *testing.T) {
	c := NewCollector()
	c.RecordRequest(200, 10*time.Millisecond)
	c.RecordRequest(200, 30*time.Millisecond)
	c.RecordRequest(429, 5*time.Millisecond)

	snap := c.Snapshot()
	if snap.RequestsByStatus[200] != 2 || snap.RequestsByStatus[429] != 1 {
		t.Errorf("byStatus = %v", snap.RequestsByStatus)
	}
	if snap.RequestMaxMs != 30 {
		t.Errorf("max = %d, want 30", snap.RequestMaxMs)
	}
	if snap.RequestAvgMs != 15 {
		t.Errorf("avg = %v, want 15", snap.RequestAvgMs)
	}
}

func TestCollector_RunAggregates(t *testing.T) {
	c := NewCollector()
	c.RecordRunStarted()
	c.RecordRunStarted()
	c.RecordRunFinished(false, 7)
	c.RecordRunFinished(true, 0)

	snap := c.Snapshot()
	if snap.RunsStarted != 2 || snap.RunsCompleted != 1 || snap.RunsFailed != 1 {
		t.Errorf("run counts = %d/%d/%d", snap.RunsStarted, snap.RunsCompleted, snap.RunsFailed)
	}
	if snap.DocumentsNew != 7 {
		t.Errorf("documentsNew = %d, want 7", snap.DocumentsNew)
	}
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordRequest(200, time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if got := c.Snapshot().RequestsByStatus[200]; got != 2000 {
		t.Errorf("count = %d, want 2000", got)
	}
}

func TestSnapshot_EmptyCollector(t *testing.T) {
	snap := NewCollector().Snapshot()
	if snap.RequestAvgMs != 0 || snap.RequestMaxMs != 0 {
		t.Errorf("empty collector should report zeros, got %+v", snap)
	}
}
