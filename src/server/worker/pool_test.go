package worker_test

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	"wserver/src/server/conn"
	"wserver/src/server/metrics"
	"wserver/src/server/scheduler"
	"wserver/src/server/workqueue"
	"wserver/src/server/worker"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	bytes.Buffer
	closes atomic.Int32
}

func (c *countingTransport) Close() error {
	c.closes.Add(1)
	return nil
}

func newQueue(t *testing.T, capacity int) *workqueue.WorkQueue[*conn.Conn] {
	t.Helper()
	q, err := workqueue.New[*conn.Conn](capacity, scheduler.NewFIFO())
	require.NoError(t, err)
	return q
}

func TestNewPool_InvalidSize(t *testing.T) {
	logger, _ := test.NewNullLogger()
	noop := worker.HandlerFunc(func(*conn.Conn) error { return nil })

	for _, size := range []int{0, -3} {
		p, err := worker.NewPool(size, newQueue(t, 1), noop, logger, nil)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, worker.ErrInvalidSize)
	}
}

// Test if every connection is handled and closed exactly once, even when the
// handler fails, panics or closes the connection itself.
func TestPool_ClosesExactlyOnce(t *testing.T) {
	const n = 60
	logger, hook := test.NewNullLogger()
	q := newQueue(t, 4)
	m := metrics.New(4)

	var handled atomic.Int32
	h := worker.HandlerFunc(func(c *conn.Conn) error {
		i := handled.Add(1)
		switch {
		case i%5 == 0:
			panic("injected panic")
		case i%3 == 0:
			return errors.New("injected failure")
		case i%2 == 0:
			return c.Close()
		}
		return nil
	})

	p, err := worker.NewPool(3, q, h, logger, m)
	require.NoError(t, err)
	p.Start()

	transports := make([]*countingTransport, n)
	for i := range transports {
		transports[i] = &countingTransport{}
		c := conn.New(transports[i], "")
		c.EnqueuedAt = time.Now()
		q.Enqueue(c, 0)
	}

	assert.Eventually(t, func() bool {
		s := m.Snapshot()
		return s.Completed+s.Failed == n
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(n), handled.Load())
	for i, tr := range transports {
		assert.Equal(t, int32(1), tr.closes.Load(), "connection %d", i)
	}

	// 12 panics and 16 injected errors among 60 requests.
	s := m.Snapshot()
	assert.Equal(t, int64(28), s.Failed)
	assert.Equal(t, int64(32), s.Completed)

	failures := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "request failed" {
			failures++
		}
	}
	assert.Equal(t, 28, failures)
}

// Test if the workers keep draining the queue after the queue ran empty.
func TestPool_KeepsRunning(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := newQueue(t, 1)

	served := make(chan struct{}, 2)
	h := worker.HandlerFunc(func(c *conn.Conn) error {
		served <- struct{}{}
		return nil
	})
	p, err := worker.NewPool(1, q, h, logger, nil)
	require.NoError(t, err)
	p.Start()

	for round := 0; round < 2; round++ {
		q.Enqueue(conn.New(&countingTransport{}, ""), 0)
		select {
		case <-served:
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d was not served", round)
		}
	}
}
