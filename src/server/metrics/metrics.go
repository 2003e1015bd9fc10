package metrics

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
	"wserver/src/server/conn"

	"github.com/pkg/errors"
)

// -------- counters --------

type Counters struct {
	Enqueued, Started, Completed, Failed int64

	// Deepest queue seen right after an enqueue.
	MaxQueueLen int

	QueueDelaySum, ServiceTimeSum time.Duration
}

func (c Counters) AvgQueueDelay() time.Duration {
	if c.Started == 0 {
		return 0
	}
	return c.QueueDelaySum / time.Duration(c.Started)
}

func (c Counters) AvgServiceTime() time.Duration {
	if done := c.Completed + c.Failed; done > 0 {
		return c.ServiceTimeSum / time.Duration(done)
	}
	return 0
}

// -------- CSV writer --------

type csvOut struct {
	f  *os.File
	w  *csv.Writer
	mu sync.Mutex
}

func (c *csvOut) open(path string, hdr []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if st, _ := f.Stat(); st != nil && st.Size() == 0 {
		_ = w.Write(hdr)
		w.Flush()
	}
	c.mu.Lock()
	c.f, c.w = f, w
	c.mu.Unlock()
	return nil
}

func (c *csvOut) write(row []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return
	}
	_ = c.w.Write(row)
	c.w.Flush()
}

func (c *csvOut) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	c.w.Flush()
	err := c.f.Close()
	c.f, c.w = nil, nil
	return err
}

// -------- Metrics --------

// Request accounting for the server.
//
// All methods are safe for concurrent use and do nothing on a nil *Metrics,
// so callers never need to check whether metrics are enabled.
type Metrics struct {
	mu sync.Mutex
	c  Counters

	requests csvOut
	wc       *workConserving
}

// New returns metrics for a pool of the given number of workers.
func New(workers int) *Metrics {
	return &Metrics{wc: newWorkConserving(workers, time.Now())}
}

// Appends one row per finished request to the CSV file at path.
func (m *Metrics) OpenCSV(path string) error {
	if m == nil {
		return nil
	}
	err := m.requests.open(path, []string{
		"ts",
		"conn",
		"remote",
		"size_hint",
		"queue_delay_ms",
		"service_time_ms",
		"outcome", // ok | error
	})
	return errors.Wrapf(err, "metrics csv %s", path)
}

// Writes the busy and idle time of the pool to path once per interval.
func (m *Metrics) StartWorkConserving(path string, interval time.Duration) error {
	if m == nil {
		return nil
	}
	return errors.Wrapf(m.wc.start(path, interval), "metrics csv %s", path)
}

// Ends the current work-conserving window and returns it.
func (m *Metrics) WorkConserving(now time.Time) WorkConservingWindow {
	if m == nil {
		return WorkConservingWindow{}
	}
	return m.wc.flush(now)
}

func (m *Metrics) Close() error {
	if m == nil {
		return nil
	}
	wcErr := m.wc.close()
	if err := m.requests.close(); err != nil {
		return err
	}
	return wcErr
}

func (m *Metrics) OnEnqueue(queueLen int) {
	if m == nil {
		return
	}
	m.wc.update(time.Now(), 1, 0)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Enqueued++
	if queueLen > m.c.MaxQueueLen {
		m.c.MaxQueueLen = queueLen
	}
}

// Called by a worker right after it dequeued c.
func (m *Metrics) OnStart(c *conn.Conn, now time.Time) {
	if m == nil {
		return
	}
	m.wc.update(now, -1, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Started++
	m.c.QueueDelaySum += now.Sub(c.EnqueuedAt)
}

// Called by a worker once it is done with c. err is what the handler
// returned, or the recovered panic.
func (m *Metrics) OnComplete(c *conn.Conn, startedAt time.Time, err error) {
	if m == nil {
		return
	}
	now := time.Now()
	service := now.Sub(startedAt)
	m.wc.update(now, 0, -1)

	m.mu.Lock()
	outcome := "ok"
	if err != nil {
		m.c.Failed++
		outcome = "error"
	} else {
		m.c.Completed++
	}
	m.c.ServiceTimeSum += service
	m.mu.Unlock()

	m.requests.write([]string{
		now.Format(time.RFC3339Nano),
		c.ID.String(),
		c.RemoteAddr,
		strconv.FormatUint(c.SizeHint, 10),
		ms(startedAt.Sub(c.EnqueuedAt)),
		ms(service),
		outcome,
	})
}

func (m *Metrics) Snapshot() Counters {
	if m == nil {
		return Counters{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c
}

func ms(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', 3, 64)
}
