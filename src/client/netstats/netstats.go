// Package netstats measures the latency and throughput of client requests.
//
// It only knows when a request left and when its response was fully read,
// so it works the same for every transport.
package netstats

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// One finished request.
type Sample struct {
	SentAt time.Time
	RecvAt time.Time
	Bytes  int64
	Delay  time.Duration

	// Bytes per second.
	Throughput float64
}

// Collector keeps in-flight requests by ID and the throughput of the last
// window finished ones.
type Collector struct {
	mu      sync.Mutex
	pending map[uuid.UUID]time.Time
	window  []float64
	next    int
	filled  int
	total   Totals
}

type Totals struct {
	Completed int
	Failed    int
	Bytes     int64
	DelaySum  time.Duration
}

func (t Totals) AvgDelay() time.Duration {
	if t.Completed == 0 {
		return 0
	}
	return t.DelaySum / time.Duration(t.Completed)
}

// New returns a collector that averages throughput over window samples.
func New(window int) *Collector {
	if window < 1 {
		window = 1
	}
	return &Collector{
		pending: make(map[uuid.UUID]time.Time),
		window:  make([]float64, window),
	}
}

func (c *Collector) RecordSend(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[id] = time.Now()
}

// RecordRecv finishes request id. Unknown IDs are ignored and return ok
// false.
func (c *Collector) RecordRecv(id uuid.UUID, bytes int64) (s Sample, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sentAt, ok := c.pending[id]
	if !ok {
		return Sample{}, false
	}
	delete(c.pending, id)

	s = Sample{SentAt: sentAt, RecvAt: time.Now(), Bytes: bytes}
	s.Delay = s.RecvAt.Sub(s.SentAt)
	if s.Delay > 0 {
		s.Throughput = float64(bytes) / s.Delay.Seconds()
	}

	c.window[c.next] = s.Throughput
	c.next = (c.next + 1) % len(c.window)
	if c.filled < len(c.window) {
		c.filled++
	}

	c.total.Completed++
	c.total.Bytes += bytes
	c.total.DelaySum += s.Delay
	return s, true
}

// RecordFailure drops request id without a sample.
func (c *Collector) RecordFailure(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.total.Failed++
	}
}

// Mean throughput of the samples in the window, in bytes per second.
func (c *Collector) AvgThroughput() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.filled == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range c.window[:c.filled] {
		sum += v
	}
	return sum / float64(c.filled)
}

func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Collector) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}
