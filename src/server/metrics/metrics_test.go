package metrics_test

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
	"wserver/src/server/conn"
	"wserver/src/server/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopTransport struct{ io.Reader }

func (nopTransport) Write(p []byte) (int, error) { return len(p), nil }
func (nopTransport) Close() error                { return nil }

func newConn(sizeHint uint64, enqueuedAt time.Time) *conn.Conn {
	c := conn.New(nopTransport{bytes.NewReader(nil)}, "127.0.0.1:4000")
	c.SizeHint = sizeHint
	c.EnqueuedAt = enqueuedAt
	return c
}

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New(1)

	m.OnEnqueue(1)
	m.OnEnqueue(3)
	m.OnEnqueue(2)

	now := time.Now()
	a := newConn(10, now.Add(-20*time.Millisecond))
	b := newConn(20, now.Add(-40*time.Millisecond))

	m.OnStart(a, now)
	m.OnStart(b, now)
	m.OnComplete(a, now, nil)
	m.OnComplete(b, now, errors.New("boom"))

	c := m.Snapshot()
	assert.Equal(t, int64(3), c.Enqueued)
	assert.Equal(t, 3, c.MaxQueueLen)
	assert.Equal(t, int64(2), c.Started)
	assert.Equal(t, int64(1), c.Completed)
	assert.Equal(t, int64(1), c.Failed)
	assert.Equal(t, 60*time.Millisecond, c.QueueDelaySum)
	assert.Equal(t, 30*time.Millisecond, c.AvgQueueDelay())
	assert.True(t, c.AvgServiceTime() >= 0)
}

func TestMetrics_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "requests.csv")
	m := metrics.New(1)
	require.NoError(t, m.OpenCSV(path))

	now := time.Now()
	c := newConn(1234, now)
	m.OnStart(c, now)
	m.OnComplete(c, now, nil)
	m.OnComplete(c, now, errors.New("boom"))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, "size_hint", rows[0][3])
	assert.Equal(t, c.ID.String(), rows[1][1])
	assert.Equal(t, "127.0.0.1:4000", rows[1][2])
	assert.Equal(t, "1234", rows[1][3])
	assert.Equal(t, "ok", rows[1][6])
	assert.Equal(t, "error", rows[2][6])
}

func TestMetrics_Nil(t *testing.T) {
	var m *metrics.Metrics
	c := newConn(0, time.Now())

	assert.NotPanics(t, func() {
		m.OnEnqueue(1)
		m.OnStart(c, time.Now())
		m.OnComplete(c, time.Now(), nil)
		assert.Nil(t, m.OpenCSV("ignored"))
		assert.Nil(t, m.Close())
	})
	assert.Equal(t, metrics.Counters{}, m.Snapshot())
}
