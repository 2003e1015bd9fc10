package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Measures how well the pool keeps up while connections are waiting.
//
// Time with a non-empty backlog is split into busy time, when every worker
// is serving, and idle time, when at least one worker is free although work
// is queued. A work-conserving pool has no idle time beyond the short gap
// between Enqueue and a waiting worker waking up.
type workConserving struct {
	mu      sync.Mutex
	workers int
	last    time.Time

	backlog int
	busy    int

	winBusy    time.Duration
	winIdle    time.Duration
	winBacklog time.Duration

	out    csvOut
	ticker *time.Ticker
	stop   chan struct{}
	done   sync.WaitGroup
}

type WorkConservingWindow struct {
	Busy    time.Duration
	Idle    time.Duration
	Backlog time.Duration
}

// Share of backlog time during which no worker was idle. 1 without backlog.
func (w WorkConservingWindow) Ratio() float64 {
	if w.Busy+w.Idle == 0 {
		return 1
	}
	return float64(w.Busy) / float64(w.Busy+w.Idle)
}

func newWorkConserving(workers int, now time.Time) *workConserving {
	return &workConserving{workers: workers, last: now}
}

// Writes one row per interval to path until stopped.
func (w *workConserving) start(path string, interval time.Duration) error {
	if err := w.out.open(path, []string{"ts", "busy_ms", "idle_ms", "backlog_ms", "ratio"}); err != nil {
		return err
	}
	w.ticker = time.NewTicker(interval)
	w.stop = make(chan struct{})
	w.done.Add(1)
	go w.loop()
	return nil
}

func (w *workConserving) loop() {
	defer w.done.Done()
	for {
		select {
		case <-w.stop:
			return
		case now := <-w.ticker.C:
			win := w.flush(now)
			w.out.write([]string{
				now.Format(time.RFC3339Nano),
				ms(win.Busy), ms(win.Idle), ms(win.Backlog),
				strconv.FormatFloat(win.Ratio(), 'f', 4, 64),
			})
		}
	}
}

func (w *workConserving) close() error {
	if w.stop == nil {
		return nil
	}
	w.ticker.Stop()
	close(w.stop)
	w.done.Wait()
	w.stop = nil
	return w.out.close()
}

func (w *workConserving) update(now time.Time, backlog, busy int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tickLocked(now)
	w.backlog += backlog
	w.busy += busy
}

// Accumulates the time since w.last according to the current state.
func (w *workConserving) tickLocked(now time.Time) {
	dt := now.Sub(w.last)
	if dt < 0 {
		return
	}
	w.last = now
	if w.backlog <= 0 {
		return
	}
	w.winBacklog += dt
	if w.busy >= w.workers {
		w.winBusy += dt
	} else {
		w.winIdle += dt
	}
}

// Closes the current window and starts a new one.
func (w *workConserving) flush(now time.Time) WorkConservingWindow {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tickLocked(now)
	win := WorkConservingWindow{Busy: w.winBusy, Idle: w.winIdle, Backlog: w.winBacklog}
	w.winBusy, w.winIdle, w.winBacklog = 0, 0, 0
	return win
}
