package stats

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	c := NewCollector()
	c.Start()

	c.Record(200, 512, 10*time.Millisecond, nil)
	c.Record(200, 512, 12*time.Millisecond, nil)
	c.Record(200, 512, 14*time.Millisecond, nil)
	c.Record(500, 64, 20*time.Millisecond, nil)
	c.Record(0, 0, 5*time.Millisecond, errors.New("connection refused"))

	c.Stop()
	s := c.Summary()

	assert.Equal(t, int64(5), s.Requests)
	assert.Equal(t, int64(4), s.Success)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, int64(512*3+64), s.Bytes)
	assert.Equal(t, int64(3), s.Statuses[200])
	assert.Equal(t, int64(1), s.Statuses[500])
	assert.NotContains(t, s.Statuses, 0)
	assert.InDelta(t, 80.0, s.SuccessRate, 0.01)
	assert.Greater(t, s.Duration, time.Duration(0))
	assert.Greater(t, s.RPS, 0.0)
}

func TestCollector_Quantiles(t *testing.T) {
	c := NewCollector()
	for ms := 1; ms <= 100; ms++ {
		c.Record(200, 0, time.Duration(ms)*time.Millisecond, nil)
	}
	s := c.Summary()

	assert.LessOrEqual(t, s.Min, s.P50)
	assert.LessOrEqual(t, s.P50, s.P90)
	assert.LessOrEqual(t, s.P90, s.P95)
	assert.LessOrEqual(t, s.P95, s.P99)
	assert.LessOrEqual(t, s.P99, s.Max)
	assert.Greater(t, s.Mean, time.Duration(0))

	// 3 significant figures keep the mid quantile close to the true median.
	assert.InDelta(t, 50, s.P50.Milliseconds(), 2)
	assert.InDelta(t, 99, s.P99.Milliseconds(), 2)
}

func TestCollector_ClampsOutliers(t *testing.T) {
	c := NewCollector()
	c.Record(200, 0, 0, nil)
	c.Record(200, 0, 2*time.Hour, nil)
	s := c.Summary()

	assert.GreaterOrEqual(t, s.Min, time.Microsecond)
	assert.LessOrEqual(t, s.Max, 61*time.Second)
}

func TestCollector_FailureLatencyCounts(t *testing.T) {
	c := NewCollector()
	c.Record(200, 0, time.Millisecond, nil)
	c.Record(0, 0, 50*time.Millisecond, errors.New("timeout"))
	s := c.Summary()

	// The slow failure dominates the tail even though it carried no status.
	assert.GreaterOrEqual(t, s.Max, 49*time.Millisecond)
}

func TestCollector_Empty(t *testing.T) {
	s := NewCollector().Summary()

	assert.Zero(t, s.Requests)
	assert.Zero(t, s.SuccessRate)
	assert.Zero(t, s.RPS)
	assert.Zero(t, s.Min)
	assert.Zero(t, s.Max)
	assert.NotNil(t, s.Statuses)
	assert.Empty(t, s.Statuses)
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Record(200, 1, time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	s := c.Summary()
	require.Equal(t, int64(1000), s.Requests)
	assert.Equal(t, int64(1000), s.Bytes)
	assert.Equal(t, int64(1000), s.Statuses[200])
}
