package main

import (
	"testing"
	"time"
)

func TestFrameQueuePushPopFIFO(t *testing.T) {
	q := NewFrameQueue(DropOldest)
	base := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		ct := base.Add(time.Duration(i) * 16 * time.Millisecond)
		q.Push(GPUTextureHandle(i+1), 640, 480, ct)
	}
	if got := q.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	for i := 0; i < 3; i++ {
		slot, ok := q.PopFront()
		if !ok {
			t.Fatalf("PopFront() ok=false at i=%d", i)
		}
		if slot.Texture != GPUTextureHandle(i+1) {
			t.Fatalf("PopFront() texture = %d, want %d (FIFO order violated)", slot.Texture, i+1)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Fatalf("PopFront() on empty queue returned ok=true")
	}
}

func TestFrameQueueDropOldestBounds(t *testing.T) {
	q := NewFrameQueue(DropOldest)
	base := time.Unix(0, 0)
	for i := 0; i < frameQueueCapacity+5; i++ {
		ct := base.Add(time.Duration(i) * 16 * time.Millisecond)
		q.Push(GPUTextureHandle(i+1), 640, 480, ct)
	}
	if got := q.Len(); got != frameQueueCapacity {
		t.Fatalf("Len() = %d, want %d", got, frameQueueCapacity)
	}
	slot, ok := q.PopFront()
	if !ok {
		t.Fatalf("PopFront() ok=false")
	}
	wantTexture := GPUTextureHandle(6) // first 5 pushes dropped
	if slot.Texture != wantTexture {
		t.Fatalf("oldest surviving texture = %d, want %d", slot.Texture, wantTexture)
	}
}

func TestFrameQueuePeekPairDoesNotRemove(t *testing.T) {
	q := NewFrameQueue(DropOldest)
	base := time.Unix(0, 0)
	q.Push(1, 640, 480, base)
	q.Push(2, 640, 480, base.Add(16*time.Millisecond))
	prev, curr, ok := q.PeekPair()
	if !ok {
		t.Fatalf("PeekPair() ok=false, want true with 2 slots queued")
	}
	if prev.Texture != 1 || curr.Texture != 2 {
		t.Fatalf("PeekPair() = (%d, %d), want (1, 2)", prev.Texture, curr.Texture)
	}
	if got := q.Len(); got != 2 {
		t.Fatalf("Len() after PeekPair() = %d, want 2 (peek must not remove)", got)
	}
}

func TestFrameQueueClearResetsJitterFilter(t *testing.T) {
	q := NewFrameQueue(DropOldest)
	base := time.Unix(0, 0)
	q.Push(1, 640, 480, base)
	q.Push(2, 640, 480, base.Add(16*time.Millisecond))
	q.Clear()
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() after Clear() = %d, want 0", got)
	}
	if got := q.MeanInterval(); got != 0 {
		t.Fatalf("MeanInterval() after Clear() = %v, want 0", got)
	}
}

func TestFrameQueueMeanIntervalTracksConstantRate(t *testing.T) {
	q := NewFrameQueue(DropOldest)
	base := time.Unix(0, 0)
	const dt = 16 * time.Millisecond
	for i := 0; i < intervalWindowSize+2; i++ {
		ct := base.Add(time.Duration(i) * dt)
		q.Push(GPUTextureHandle(i+1), 640, 480, ct)
	}
	mean := q.MeanInterval()
	wantSeconds := dt.Seconds()
	if diff := mean - wantSeconds; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("MeanInterval() = %v, want %v", mean, wantSeconds)
	}
}
