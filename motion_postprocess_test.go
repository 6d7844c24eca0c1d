package main

import "testing"

func fieldOf(w, h int, fn func(x, y int) MotionVector) *MotionField {
	f := NewMotionField(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, fn(x, y))
		}
	}
	return f
}

// flatLuma builds a luma plane with every sample equal to v, for tests
// where luma agreement should never gate the bilateral weight.
func flatLuma(w, h int, v byte) []byte {
	p := make([]byte, w*h)
	for i := range p {
		p[i] = v
	}
	return p
}

// TestSmoothPreservesUniformField checks that a perfectly uniform
// field (every sample identical) over a flat luma plane is unchanged
// by bilateral smoothing, since every neighbor agrees spatially, in
// luma, in motion, and in confidence.
func TestSmoothPreservesUniformField(t *testing.T) {
	want := MotionVector{DX: 2.5, DY: -1.5, Confidence: 0.8}
	in := fieldOf(6, 6, func(x, y int) MotionVector { return want })
	luma := flatLuma(6, 6, 128)

	pp := NewMotionPostProcessor()
	out := pp.Smooth(in, luma, 6, 6, 1.0)

	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			v := out.At(x, y)
			if absF(v.DX-want.DX) > 1e-3 || absF(v.DY-want.DY) > 1e-3 {
				t.Fatalf("(%d,%d): got %+v want %+v", x, y, v, want)
			}
		}
	}
}

// TestConfidenceBoundsAfterPostProcessing checks spec §8's "confidence
// bounds" property: 0 <= c <= 1 after post-processing, for input
// confidences already within the estimator's own [0.05, 0.98] range.
func TestConfidenceBoundsAfterPostProcessing(t *testing.T) {
	in := fieldOf(5, 5, func(x, y int) MotionVector {
		c := float32(0.05 + 0.93*float32(x*5+y)/24.0)
		return MotionVector{DX: float32(x), DY: float32(y), Confidence: c}
	})
	luma := flatLuma(5, 5, 100)

	pp := NewMotionPostProcessor()
	smoothed := pp.Smooth(in, luma, 5, 5, 1.0)
	stabilized := pp.Stabilize(smoothed)

	for _, f := range []*MotionField{smoothed, stabilized} {
		for _, v := range f.Vectors {
			if v.Confidence < 0 || v.Confidence > 1 {
				t.Fatalf("confidence %v out of [0,1]", v.Confidence)
			}
		}
	}
}

// TestStabilizeBoundsOutputToLocalCurrentRange checks spec §4.3's real
// anti-ghosting bound: the reprojected-history blend can never push a
// pixel's stabilized component outside the current field's own local
// (2*neighborhood+1)^2 neighborhood range, however far a stale history
// sample drifts.
func TestStabilizeBoundsOutputToLocalCurrentRange(t *testing.T) {
	pp := NewMotionPostProcessor()
	luma := flatLuma(4, 4, 128)

	still := fieldOf(4, 4, func(x, y int) MotionVector { return MotionVector{Confidence: 0.9} })
	first := pp.Stabilize(pp.Smooth(still, luma, 4, 4, 1.0))
	for _, v := range first.Vectors {
		if v.DX != 0 || v.DY != 0 {
			t.Fatalf("first tick: want zero field, got %+v", v)
		}
	}

	jump := fieldOf(4, 4, func(x, y int) MotionVector { return MotionVector{DX: 50, DY: 50, Confidence: 0.9} })
	second := pp.Stabilize(pp.Smooth(jump, luma, 4, 4, 1.0))
	for i, v := range second.Vectors {
		x, y := i%4, i/4
		loX, hiX, loY, hiY := localMinMaxField(jump, x, y, pp.neighborhood)
		if v.DX < loX-1e-3 || v.DX > hiX+1e-3 {
			t.Fatalf("(%d,%d): stabilized DX %v outside current local range [%v, %v]", x, y, v.DX, loX, hiX)
		}
		if v.DY < loY-1e-3 || v.DY > hiY+1e-3 {
			t.Fatalf("(%d,%d): stabilized DY %v outside current local range [%v, %v]", x, y, v.DY, loY, hiY)
		}
	}
}

// TestInvalidateHistoryResetsStabilization checks that a resize-driven
// InvalidateHistory drops the previous tick's history, so the next
// Stabilize call treats its input as a fresh first tick instead of
// blending against stale geometry.
func TestInvalidateHistoryResetsStabilization(t *testing.T) {
	pp := NewMotionPostProcessor()
	luma := flatLuma(4, 4, 128)
	moving := fieldOf(4, 4, func(x, y int) MotionVector { return MotionVector{DX: 10, DY: 0, Confidence: 0.9} })
	_ = pp.Stabilize(pp.Smooth(moving, luma, 4, 4, 1.0))

	pp.InvalidateHistory()

	next := fieldOf(4, 4, func(x, y int) MotionVector { return MotionVector{DX: -10, DY: 0, Confidence: 0.9} })
	out := pp.Stabilize(pp.Smooth(next, luma, 4, 4, 1.0))
	for _, v := range out.Vectors {
		if absF(v.DX-(-10)) > 1e-2 {
			t.Fatalf("expected fresh first-tick passthrough after invalidate, got %+v", v)
		}
	}
}
