// frame_queue.go - bounded ring buffer of captured frames with
// timestamp de-jittering.
//
// The mutex-guarded single-writer/single-reader discipline follows
// video_compositor.go's VideoCompositor: one goroutine pushes
// (refreshLoop's equivalent, here the capture-drain worker), render
// reads happen under the same lock rather than via channels, since the
// queue is polled once per scheduler tick rather than event-driven.

package main

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

const (
	// frameQueueCapacity is the bounded ring size from spec §2 (Frame Queue).
	frameQueueCapacity = 12
	// intervalWindowSize is the sliding-mean window for inter-capture
	// interval estimation, spec §4.1.
	intervalWindowSize = 20
	// defaultJitterSuppressionCoeff is spec §4.1's smoothed-timestamp
	// jitter-suppression coefficient s, default 0.2.
	defaultJitterSuppressionCoeff = 0.2
)

// DropPolicy controls what push() does when the queue is full.
type DropPolicy int

const (
	// DropOldest discards the front slot to make room (default).
	DropOldest DropPolicy = iota
	// NeverDrop stalls the caller until a slot frees up instead of
	// discarding a frame; resolves spec §9's open question in favor of
	// producer back-pressure rather than silently growing the bound.
	NeverDrop
)

// FrameQueue is the bounded FIFO of FrameSlot described in spec §2.
type FrameQueue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	slots    [frameQueueCapacity]FrameSlot
	head     int // index of oldest slot
	count    int
	sequence uint64

	policy DropPolicy

	jitterSuppression float64 // spec §4.1's "s" coefficient, default 0.2

	// smoothed-timestamp de-jitter state, spec §4.1
	haveSmoothed  bool
	lastSmoothed  time.Time
	lastCaptured  time.Time

	// sliding window of inter-capture intervals, seconds
	intervals    [intervalWindowSize]float64
	intervalIdx  int
	intervalFull bool
}

func NewFrameQueue(policy DropPolicy) *FrameQueue {
	fq := &FrameQueue{policy: policy, jitterSuppression: defaultJitterSuppressionCoeff}
	fq.notFull = sync.NewCond(&fq.mu)
	return fq
}

// SetJitterSuppression adjusts spec §4.1's smoothed-timestamp
// coefficient s (0-1): how far a capture timestamp may drift from the
// expected time E = T_prev + mean_interval before the smoothed
// timestamp softens toward the raw capture time instead of locking to E.
func (q *FrameQueue) SetJitterSuppression(s float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s < 0 {
		s = 0
	}
	if s > 1 {
		s = 1
	}
	q.jitterSuppression = s
}

// Push inserts a freshly captured frame, appending the raw
// inter-capture interval to the sliding window and computing its
// de-jittered smoothed timestamp per spec §4.1.
func (q *FrameQueue) Push(texture GPUTextureHandle, width, height int, captureTime time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == frameQueueCapacity {
		switch q.policy {
		case NeverDrop:
			for q.count == frameQueueCapacity {
				q.notFull.Wait()
			}
		default:
			q.popFrontLocked()
		}
	}

	if !q.lastCaptured.IsZero() {
		interval := captureTime.Sub(q.lastCaptured).Seconds()
		q.intervals[q.intervalIdx] = interval
		q.intervalIdx = (q.intervalIdx + 1) % intervalWindowSize
		if q.intervalIdx == 0 {
			q.intervalFull = true
		}
	}
	q.lastCaptured = captureTime

	// Smoothed timestamp, spec §4.1: absorb small scheduler jitter by
	// locking to the expected time E = T_prev + meanInterval whenever
	// the raw capture timestamp falls within s*meanInterval of it;
	// otherwise soften toward the raw timestamp rather than trusting it
	// outright, so a genuine drop still propagates but doesn't whipsaw
	// the presentation clock on a single sample.
	var smoothed time.Time
	meanInterval := q.meanIntervalLocked()
	if !q.haveSmoothed || meanInterval <= 0 {
		smoothed = captureTime
	} else {
		expected := q.lastSmoothed.Add(time.Duration(meanInterval * float64(time.Second)))
		drift := captureTime.Sub(expected)
		if drift < 0 {
			drift = -drift
		}
		threshold := time.Duration(q.jitterSuppression * meanInterval * float64(time.Second))
		if drift < threshold {
			smoothed = expected
		} else {
			smoothed = expected.Add(captureTime.Sub(expected) / 2)
		}
	}
	q.lastSmoothed = smoothed
	q.haveSmoothed = true

	idx := (q.head + q.count) % frameQueueCapacity
	q.sequence++
	q.slots[idx] = FrameSlot{
		Texture:      texture,
		CaptureTime:  captureTime,
		SmoothedTime: smoothed,
		Sequence:     q.sequence,
		Width:        width,
		Height:       height,
	}
	q.count++
}

// popFrontLocked must be called with q.mu held.
func (q *FrameQueue) popFrontLocked() {
	if q.count == 0 {
		return
	}
	q.head = (q.head + 1) % frameQueueCapacity
	q.count--
	q.notFull.Signal()
}

// PopFront removes and returns the oldest slot.
func (q *FrameQueue) PopFront() (FrameSlot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return FrameSlot{}, false
	}
	slot := q.slots[q.head]
	q.popFrontLocked()
	return slot, true
}

// PeekPair returns the two oldest slots without removing them, the
// (prev, curr) pair the motion estimator and interpolator consume.
func (q *FrameQueue) PeekPair() (prev, curr FrameSlot, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count < 2 {
		return FrameSlot{}, FrameSlot{}, false
	}
	prev = q.slots[q.head]
	curr = q.slots[(q.head+1)%frameQueueCapacity]
	return prev, curr, true
}

// SetPolicy changes the full-queue drop policy, spec §6 "never drop".
func (q *FrameQueue) SetPolicy(policy DropPolicy) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.policy = policy
	if policy != NeverDrop {
		q.notFull.Broadcast()
	}
}

// Len reports the number of slots currently queued.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Clear empties the queue and resets the jitter filter state, used on
// resize and on capture-source restart (a pair-identity reset per
// spec §4.5's scheduler clock state).
func (q *FrameQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head, q.count = 0, 0
	q.haveSmoothed = false
	q.lastSmoothed = time.Time{}
	q.lastCaptured = time.Time{}
	q.intervalIdx = 0
	q.intervalFull = false
	q.notFull.Broadcast()
}

// MeanInterval returns the sliding-mean inter-capture interval in
// seconds over the last (up to) intervalWindowSize samples.
func (q *FrameQueue) MeanInterval() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.meanIntervalLocked()
}

// meanIntervalLocked must be called with q.mu held.
func (q *FrameQueue) meanIntervalLocked() float64 {
	n := q.intervalIdx
	if q.intervalFull {
		n = intervalWindowSize
	}
	if n == 0 {
		return 0
	}
	return floats.Sum(q.intervals[:n]) / float64(n)
}
