package netstats_test

import (
	"testing"
	"time"
	"wserver/src/client/netstats"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCollector_RecordRecv(t *testing.T) {
	c := netstats.New(2)
	assert.Equal(t, 0.0, c.AvgThroughput())

	id := uuid.New()
	c.RecordSend(id)
	assert.Equal(t, 1, c.Pending())

	time.Sleep(10 * time.Millisecond)
	s, ok := c.RecordRecv(id, 1000)
	assert.True(t, ok)
	assert.Equal(t, int64(1000), s.Bytes)
	assert.GreaterOrEqual(t, s.Delay, 10*time.Millisecond)
	assert.Greater(t, s.Throughput, 0.0)
	assert.Equal(t, 0, c.Pending())

	// Only filled slots count towards the average.
	assert.InDelta(t, s.Throughput, c.AvgThroughput(), 1e-9)

	_, ok = c.RecordRecv(id, 1000)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Totals().Completed)
}

func TestCollector_Window(t *testing.T) {
	c := netstats.New(2)
	var samples []netstats.Sample
	for i := 0; i < 3; i++ {
		id := uuid.New()
		c.RecordSend(id)
		time.Sleep(time.Millisecond)
		s, _ := c.RecordRecv(id, int64(100*(i+1)))
		samples = append(samples, s)
	}

	want := (samples[1].Throughput + samples[2].Throughput) / 2
	assert.InDelta(t, want, c.AvgThroughput(), 1e-6)

	totals := c.Totals()
	assert.Equal(t, 3, totals.Completed)
	assert.Equal(t, int64(600), totals.Bytes)
	assert.Greater(t, totals.AvgDelay(), time.Duration(0))
}

func TestCollector_RecordFailure(t *testing.T) {
	c := netstats.New(1)
	id := uuid.New()
	c.RecordSend(id)
	c.RecordFailure(id)
	c.RecordFailure(id)

	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 1, c.Totals().Failed)
	assert.Equal(t, 0, c.Totals().Completed)
}
