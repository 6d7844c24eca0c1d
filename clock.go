// clock.go - the scheduler's time source, substitutable with a virtual
// clock for deterministic tests.
//
// Grounded in the Design Notes' "wait-strategy configuration": the
// pacing loop never calls time.Now()/time.Sleep() directly so a test
// can drive it tick-by-tick instead of wall-clock.

package main

import "time"

// Clock is the time source the scheduler reads and blocks on.
type Clock interface {
	Now() time.Time
	// Sleep blocks the caller until d has elapsed on this clock.
	Sleep(d time.Duration)
}

// SystemClock is the default Clock backed by the OS monotonic clock,
// the production wait strategy.
type SystemClock struct{}

func (SystemClock) Now() time.Time        { return time.Now() }
func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// VirtualClock is a manually-advanced Clock for tests: Sleep returns
// immediately and Advance moves Now() forward, so pacing logic can be
// exercised without real wall-clock delay.
type VirtualClock struct {
	now time.Time
}

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time { return c.now }

// Sleep on a virtual clock advances time by d instead of blocking,
// since nothing else is driving the clock forward concurrently.
func (c *VirtualClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func (c *VirtualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// SchedulerClockState is the persistent state the presentation
// scheduler carries between ticks, spec §2 "Scheduler Clock State".
type SchedulerClockState struct {
	LastCaptureTime   time.Time
	LastPresentTime   time.Time
	PairStartTime     time.Time
	PairEndTime       time.Time
	Alpha             float32
	QuantizedAlpha    float32
	AdaptiveDelay      time.Duration
	PairIdentityEpoch uint64
}

// ResetPairIdentity bumps the epoch and clears pair timestamps,
// resolving a jump discontinuity (e.g. after Clear()/resize) the way
// spec §4.5 requires: the next tick starts a fresh pair rather than
// interpolating across the discontinuity.
func (s *SchedulerClockState) ResetPairIdentity() {
	s.PairIdentityEpoch++
	s.PairStartTime = time.Time{}
	s.PairEndTime = time.Time{}
	s.Alpha = 0
	s.QuantizedAlpha = 0
}
