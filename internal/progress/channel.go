// Package progress is the process-wide broadcast of run status to live
// observers, with a bounded history of recent results for late subscribers.
package progress

import (
	"context"
	"sync"
	"time"

	"prospector/internal/domain"
)

// EventType enumerates pipeline progress events.
type EventType string

const (
	EventStarted       EventType = "started"
	EventDocumentFound EventType = "documentFound"
	EventHeartbeat     EventType = "heartbeat"
	EventCompleted     EventType = "completed"
	EventFailed        EventType = "failed"
)

// Event is one progress notification. Payload is an ExtractedDocument for
// documentFound, a RunRecord for started/completed, a reason string for
// failed, and nil for heartbeats.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

const subscriberBuffer = 64

// Channel is a single-process pub/sub hub. Multiple subscribers may attach
// mid-run; delivery of events emitted before subscription is limited to the
// documentFound ring buffer.
type Channel struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	ring    []domain.ExtractedDocument
	ringPos int
	ringLen int
	period  time.Duration
}

// NewChannel builds a hub with the given documentFound history capacity and
// heartbeat period.
func NewChannel(historySize int, heartbeat time.Duration) *Channel {
	if historySize <= 0 {
		historySize = 50
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Channel{
		subs:   make(map[chan Event]struct{}),
		ring:   make([]domain.ExtractedDocument, historySize),
		period: heartbeat,
	}
}

// HeartbeatPeriod returns the configured keep-alive period so the transport
// layer can derive its dead-producer threshold.
func (c *Channel) HeartbeatPeriod() time.Duration { return c.period }

// Publish broadcasts the event to all current subscribers. documentFound
// payloads are also recorded in the ring buffer, evicting the oldest entry
// once capacity is reached. A slow subscriber's full buffer drops the event
// for that subscriber rather than blocking the pipeline.
func (c *Channel) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	c.mu.Lock()
	if ev.Type == EventDocumentFound {
		if doc, ok := ev.Payload.(domain.ExtractedDocument); ok {
			c.ring[c.ringPos] = doc
			c.ringPos = (c.ringPos + 1) % len(c.ring)
			if c.ringLen < len(c.ring) {
				c.ringLen++
			}
		}
	}
	targets := make([]chan Event, 0, len(c.subs))
	for ch := range c.subs {
		targets = append(targets, ch)
	}
	c.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe attaches a live observer. The returned cancel function detaches
// it and closes the stream.
func (c *Channel) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// History returns the retained documentFound payloads, oldest first.
func (c *Channel) History() []domain.ExtractedDocument {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.ExtractedDocument, 0, c.ringLen)
	if c.ringLen < len(c.ring) {
		out = append(out, c.ring[:c.ringLen]...)
		return out
	}
	out = append(out, c.ring[c.ringPos:]...)
	out = append(out, c.ring[:c.ringPos]...)
	return out
}

// StartHeartbeat emits heartbeat events on the fixed period until ctx is
// cancelled. The period is independent of document throughput: heartbeats
// keep push connections alive, nothing more.
func (c *Channel) StartHeartbeat(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				c.Publish(Event{Type: EventHeartbeat, At: t.UTC()})
			}
		}
	}()
}
