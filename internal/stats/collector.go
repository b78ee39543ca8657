// Package stats provides in-memory runtime statistics collection.
package stats

import (
	"math"
	"sync"
	"time"
)

// Snapshot is the operator-visible view served on the stats surface.
type Snapshot struct {
	UptimeSeconds    float64       `json:"uptimeSeconds"`
	RequestsByStatus map[int]int64 `json:"requestsByStatus"`
	RequestAvgMs     float64       `json:"requestAvgMs"`
	RequestMaxMs     int64         `json:"requestMaxMs"`
	RunsStarted      int64         `json:"runsStarted"`
	RunsCompleted    int64         `json:"runsCompleted"`
	RunsFailed       int64         `json:"runsFailed"`
	DocumentsNew     int64         `json:"documentsNew"`
}

// Collector aggregates registry-request and run statistics. All methods are
// thread-safe.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time

	byStatus  map[int]int64
	reqCount  int64
	totalTime time.Duration
	maxTime   time.Duration

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64
	documentsNew  int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		byStatus:  make(map[int]int64),
	}
}

// RecordRequest records one outbound registry request.
func (c *Collector) RecordRequest(status int, latency time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byStatus[status]++
	c.reqCount++
	c.totalTime += latency
	if latency > c.maxTime {
		c.maxTime = latency
	}
}

// RecordRunStarted counts a run transition into running.
func (c *Collector) RecordRunStarted() {
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// RecordRunFinished counts a terminal run with its new-document tally.
func (c *Collector) RecordRunFinished(failed bool, documentsNew int) {
	c.mu.Lock()
	if failed {
		c.runsFailed++
	} else {
		c.runsCompleted++
	}
	c.documentsNew += int64(documentsNew)
	c.mu.Unlock()
}

// Snapshot returns computed statistics at a point in time.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	byStatus := make(map[int]int64, len(c.byStatus))
	for k, v := range c.byStatus {
		byStatus[k] = v
	}

	avg := 0.0
	if c.reqCount > 0 {
		avg = float64(c.totalTime.Milliseconds()) / float64(c.reqCount)
	}

	return Snapshot{
		UptimeSeconds:    math.Round(time.Since(c.startTime).Seconds()),
		RequestsByStatus: byStatus,
		RequestAvgMs:     avg,
		RequestMaxMs:     c.maxTime.Milliseconds(),
		RunsStarted:      c.runsStarted,
		RunsCompleted:    c.runsCompleted,
		RunsFailed:       c.runsFailed,
		DocumentsNew:     c.documentsNew,
	}
}
