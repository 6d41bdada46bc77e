package timing

import (
	"sync"
	"time"
)

// SampleClock supplies the absolute sample position "now" and maps sample
// positions back to wall-clock deadlines. The scheduler and the playback
// queue must share one clock so both agree on where "now" is.
type SampleClock interface {
	NowSamples() int64
	TimeAt(sample int64) time.Time
}

// HostClock is a monotonic SampleClock anchored at construction time. It
// counts samples from the wall clock via time.Since, which Go backs with the
// monotonic clock, so it never jumps with NTP adjustments.
type HostClock struct {
	mu    sync.Mutex
	start time.Time
	base  int64 // sample position at start
	rate  float64
}

// NewHostClock starts a clock at sample position zero.
func NewHostClock(sampleRate float64) *HostClock {
	return &HostClock{start: time.Now(), rate: sampleRate}
}

// NowSamples returns the current absolute sample position.
func (c *HostClock) NowSamples() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base + int64(time.Since(c.start).Seconds()*c.rate)
}

// TimeAt converts a sample position to its wall-clock deadline.
func (c *HostClock) TimeAt(sample int64) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	sec := float64(sample-c.base) / c.rate
	return c.start.Add(time.Duration(sec * float64(time.Second)))
}

// SampleRate returns the current rate.
func (c *HostClock) SampleRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate switches the sample rate without discontinuity: the sample counter
// keeps its current value and advances at the new rate from here on.
func (c *HostClock) SetRate(sampleRate float64) {
	if sampleRate <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.base += int64(now.Sub(c.start).Seconds() * c.rate)
	c.start = now
	c.rate = sampleRate
}
