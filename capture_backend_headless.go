// capture_backend_headless.go - a synthetic CaptureSource for tests and the demo CLI.
//
// Grounded in video_backend_headless.go's HeadlessVideoOutput: a
// no-op-except-bookkeeping stand-in selected so the rest of the
// pipeline exercises real code paths without a live capture API.
// Unlike video_backend_headless.go this one is NOT behind the
// `headless` build tag, since the demo CLI needs a synthetic source
// available in every build, not only in headless test builds.

package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SyntheticPattern selects what HeadlessCaptureSource draws each frame.
type SyntheticPattern int

const (
	// PatternStaticBlack never changes pixel content; used for the
	// static-scene fixpoint property (spec §8).
	PatternStaticBlack SyntheticPattern = iota
	// PatternRigidPan translates a vertical bar at a constant velocity;
	// used for the uniform-pan scenario.
	PatternRigidPan
	// PatternTextOverPan overlays a stationary high-contrast block
	// (simulating locked-in-place UI text) on top of PatternRigidPan.
	PatternTextOverPan
)

// HeadlessCaptureSource generates frames on demand instead of reading
// from a live desktop/application surface.
type HeadlessCaptureSource struct {
	mu       sync.Mutex
	started  bool
	width    int
	height   int
	pattern  SyntheticPattern
	panSpeed int // pixels per frame
	frameNo  uint64
	fps      int

	frameCount uint64
	latest     CapturedFrame
	haveLatest bool
}

func NewHeadlessCaptureSource(width, height, fps int, pattern SyntheticPattern) *HeadlessCaptureSource {
	if fps <= 0 {
		fps = 60
	}
	return &HeadlessCaptureSource{
		width: width, height: height, fps: fps, pattern: pattern, panSpeed: 4,
	}
}

func (h *HeadlessCaptureSource) Kind() CaptureBackendKind { return BackendHeadless }

func (h *HeadlessCaptureSource) Start(ctx context.Context) error {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	go h.generateLoop(ctx)
	return nil
}

func (h *HeadlessCaptureSource) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = false
	return nil
}

func (h *HeadlessCaptureSource) IsCapturing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *HeadlessCaptureSource) generateLoop(ctx context.Context) {
	interval := time.Second / time.Duration(h.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !h.IsCapturing() {
				return
			}
			h.renderFrame()
		}
	}
}

func (h *HeadlessCaptureSource) renderFrame() {
	n := atomic.AddUint64(&h.frameCount, 1)
	pixels := make([]byte, h.width*h.height*4)

	switch h.pattern {
	case PatternStaticBlack:
		// leave zeroed: pure black
	case PatternRigidPan, PatternTextOverPan:
		barX := (int(n) * h.panSpeed) % h.width
		barWidth := 20
		for y := 0; y < h.height; y++ {
			for x := barX; x < barX+barWidth && x < h.width; x++ {
				off := (y*h.width + x) * 4
				pixels[off+0] = 200
				pixels[off+1] = 200
				pixels[off+2] = 200
				pixels[off+3] = 255
			}
		}
		if h.pattern == PatternTextOverPan {
			h.paintTextBlock(pixels)
		}
	}

	h.mu.Lock()
	h.latest = CapturedFrame{
		Pixels:      pixels,
		Width:       h.width,
		Height:      h.height,
		CaptureTime: time.Now(),
	}
	h.haveLatest = true
	h.mu.Unlock()
}

// paintTextBlock stamps a fixed high-contrast rectangle meant to stand
// in for UI text that should trigger the interpolator's text-lock
// path (spec §4.4) regardless of the pan underneath it.
func (h *HeadlessCaptureSource) paintTextBlock(pixels []byte) {
	x0, y0, w, hgt := h.width/4, h.height/4, h.width/3, 16
	for y := y0; y < y0+hgt && y < h.height; y++ {
		for x := x0; x < x0+w && x < h.width; x++ {
			off := (y*h.width + x) * 4
			pixels[off+0] = 255
			pixels[off+1] = 255
			pixels[off+2] = 255
			pixels[off+3] = 255
		}
	}
}

func (h *HeadlessCaptureSource) AcquireLatest() (CapturedFrame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.haveLatest {
		return CapturedFrame{}, false
	}
	return h.latest, true
}
