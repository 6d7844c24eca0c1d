package main

import "testing"

func newTestColorTexture(dev *SoftwareComputeDevice, w, h int, fill func(x, y int) (r, g, b byte)) GPUTextureHandle {
	handle, _ := dev.CreateTexture(w, h, FormatColorBGRA8)
	pixels := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := fill(x, y)
			off := (y*w + x) * 4
			pixels[off+0] = b
			pixels[off+1] = g
			pixels[off+2] = r
			pixels[off+3] = 255
		}
	}
	dev.UploadTexture(handle, pixels)
	return handle
}

func TestSoftwareMotionEstimatorStaticSceneIsZeroVector(t *testing.T) {
	dev := NewSoftwareComputeDevice()
	dev.Init(128, 128)
	fill := func(x, y int) (byte, byte, byte) {
		if (x/8+y/8)%2 == 0 {
			return 200, 200, 200
		}
		return 10, 10, 10
	}
	a := newTestColorTexture(dev, 128, 128, fill)
	b := newTestColorTexture(dev, 128, 128, fill)

	est := NewSoftwareMotionEstimator(ModelBalanced)
	field, err := est.Estimate(dev, a, b, 128, 128, true)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	for i, v := range field.Vectors {
		if v.DX != 0 || v.DY != 0 {
			t.Fatalf("vector[%d] = (%v, %v), want (0, 0) for an identical static frame pair", i, v.DX, v.DY)
		}
	}
}

// TestSoftwareMotionEstimatorVectorMagnitudeBounds checks spec §8's
// "vector bounds": the tiny-level match never returns a displacement
// wider than its model preset's clamped search radius (the bound below
// allows one pixel of slack beyond it).
func TestSoftwareMotionEstimatorVectorMagnitudeBounds(t *testing.T) {
	dev := NewSoftwareComputeDevice()
	dev.Init(128, 128)
	// High-frequency checkerboard so the search has no flat regions to
	// fall back to a trivial zero match.
	fillA := func(x, y int) (byte, byte, byte) {
		if (x+y)%2 == 0 {
			return 230, 230, 230
		}
		return 5, 5, 5
	}
	fillB := func(x, y int) (byte, byte, byte) {
		if (x+y+1)%2 == 0 {
			return 230, 230, 230
		}
		return 5, 5, 5
	}
	a := newTestColorTexture(dev, 128, 128, fillA)
	b := newTestColorTexture(dev, 128, 128, fillB)

	est := NewSoftwareMotionEstimator(ModelCoverage) // widest preset, tinyRadius 4
	field, err := est.Estimate(dev, a, b, 128, 128, true)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	radius := clampSearchRadius(motionModelPresets[ModelCoverage].tinyRadius, field.Width, field.Height)
	bound := float32(radius + 1)
	for i, v := range field.Vectors {
		if absF(v.DX) > bound+1e-3 || absF(v.DY) > bound+1e-3 {
			t.Fatalf("vector[%d] = (%v, %v) exceeds search-radius bound %v tiny-grid pixels", i, v.DX, v.DY, bound)
		}
	}
}

func TestSoftwareMotionEstimatorConfidenceBounds(t *testing.T) {
	dev := NewSoftwareComputeDevice()
	dev.Init(64, 64)
	fillA := func(x, y int) (byte, byte, byte) { return byte(x * 4), byte(y * 4), 0 }
	fillB := func(x, y int) (byte, byte, byte) { return byte(x * 4), byte(y * 4), 0 }
	a := newTestColorTexture(dev, 64, 64, fillA)
	b := newTestColorTexture(dev, 64, 64, fillB)

	est := NewSoftwareMotionEstimator(ModelBalanced)
	field, err := est.Estimate(dev, a, b, 64, 64, true)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	for i, v := range field.Vectors {
		if v.Confidence < 0 || v.Confidence > 1 {
			t.Fatalf("vector[%d].Confidence = %v, want in [0, 1]", i, v.Confidence)
		}
	}
}
