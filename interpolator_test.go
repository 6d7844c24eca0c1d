package main

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func uniformField(fw, fh int, v MotionVector) *MotionField {
	f := NewMotionField(fw, fh)
	for i := range f.Vectors {
		f.Vectors[i] = v
	}
	return f
}

// TestInterpolateAlphaBoundary checks spec §8's "α boundary" property:
// alpha 0 must equal prev, alpha 1 must equal curr.
func TestInterpolateAlphaBoundary(t *testing.T) {
	prev := solidImage(8, 8, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	curr := solidImage(8, 8, color.RGBA{R: 200, G: 150, B: 100, A: 255})
	field := uniformField(2, 2, MotionVector{DX: 1, DY: 0, Confidence: 0.9})

	ip := NewInterpolator(QualityHigh)

	out0 := ip.Interpolate(prev, curr, field, 0)
	for i := range out0.Pix {
		if out0.Pix[i] != prev.Pix[i] {
			t.Fatalf("alpha=0 byte %d: got %d want %d", i, out0.Pix[i], prev.Pix[i])
		}
	}

	out1 := ip.Interpolate(prev, curr, field, 1)
	for i := range out1.Pix {
		if out1.Pix[i] != curr.Pix[i] {
			t.Fatalf("alpha=1 byte %d: got %d want %d", i, out1.Pix[i], curr.Pix[i])
		}
	}
}

// TestInterpolateStaticSceneFixpoint checks spec §8's "static scene
// fixpoint": curr == prev pixel-exactly implies output == prev for any alpha.
func TestInterpolateStaticSceneFixpoint(t *testing.T) {
	frame := solidImage(16, 16, color.RGBA{R: 77, G: 88, B: 99, A: 255})
	field := uniformField(4, 4, MotionVector{}) // zero motion everywhere

	ip := NewInterpolator(QualityHigh)
	for _, alpha := range []float32{0, 0.25, 0.5, 0.75, 1} {
		out := ip.Interpolate(frame, frame, field, alpha)
		for i := range out.Pix {
			if out.Pix[i] != frame.Pix[i] {
				t.Fatalf("alpha=%.2f byte %d: got %d want %d", alpha, i, out.Pix[i], frame.Pix[i])
			}
		}
	}
}

// TestInterpolateHaloBound checks spec §8's "halo bound": every output
// channel must lie within [min-0.5|diff|, max+0.5|diff|] of the two
// source pixels, widened by the Catmull-Rom overshoot clamp.
func TestInterpolateHaloBound(t *testing.T) {
	prev := solidImage(12, 12, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	curr := solidImage(12, 12, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	// Large motion forces the warp path (not the text-lock fast path).
	field := uniformField(3, 3, MotionVector{DX: 3, DY: 0, Confidence: 0.8})

	ip := NewInterpolator(QualityHigh)
	out := ip.Interpolate(prev, curr, field, 0.5)

	const overshoot = haloClampDefault + 1 // allow the bilateral clamp's own slack
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(out.Pix[i+c])
			lo := -overshoot
			hi := 255 + overshoot
			if v < lo || v > hi {
				t.Fatalf("pixel %d channel %d = %v out of halo bound [%v, %v]", i/4, c, v, lo, hi)
			}
		}
	}
}

// gradientImage builds a smooth horizontal ramp, used where a solid
// fill would trivially satisfy a property that needs real content to
// be meaningful (e.g. resampling error under a non-zero warp).
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * x / (w - 1))
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

// TestInterpolateIdempotentPassthrough checks spec §8's "idempotence of
// passthrough": execute(X, X, alpha) == X up to resampling error, for
// content with actual structure (a gradient) and a non-zero motion
// field supplied, not just a solid fill where any sample trivially
// equals any other.
func TestInterpolateIdempotentPassthrough(t *testing.T) {
	frame := gradientImage(32, 32)
	field := uniformField(8, 8, MotionVector{DX: 0.5, DY: 0, Confidence: 0.9})

	ip := NewInterpolator(QualityHigh)
	for _, alpha := range []float32{0.25, 0.5, 0.75} {
		out := ip.Interpolate(frame, frame, field, alpha)
		var sumDiff int
		for i := 0; i < len(out.Pix); i += 4 {
			for c := 0; c < 3; c++ {
				d := int(out.Pix[i+c]) - int(frame.Pix[i+c])
				if d < 0 {
					d = -d
				}
				sumDiff += d
			}
		}
		meanDiff := float64(sumDiff) / float64(len(out.Pix)/4*3)
		if meanDiff > 5 {
			t.Fatalf("alpha=%.2f: mean passthrough resampling error = %v, want <= 5", alpha, meanDiff)
		}
	}
}

// TestInterpolateMotionScaleInvariantToFieldResolution checks spec §8's
// "motion scale invariance": the same real displacement, expressed at
// two different field resolutions (motion-sample scale, spec glossary),
// must warp to the same result once each is converted back to
// full-resolution color pixels.
func TestInterpolateMotionScaleInvariantToFieldResolution(t *testing.T) {
	const w, h = 32, 32
	prev := gradientImage(w, h)
	curr := solidImage(w, h, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	const colorDX = float32(4) // desired full-resolution displacement

	coarse := uniformField(4, 4, MotionVector{DX: colorDX * 4 / w, Confidence: 0.9})
	fine := uniformField(8, 8, MotionVector{DX: colorDX * 8 / w, Confidence: 0.9})

	ip := NewInterpolator(QualityHigh)
	outCoarse := ip.Interpolate(prev, curr, coarse, 0.5)
	outFine := ip.Interpolate(prev, curr, fine, 0.5)

	var sumDiff int
	for i := range outCoarse.Pix {
		d := int(outCoarse.Pix[i]) - int(outFine.Pix[i])
		if d < 0 {
			d = -d
		}
		sumDiff += d
	}
	meanDiff := float64(sumDiff) / float64(len(outCoarse.Pix))
	if meanDiff > 3 {
		t.Fatalf("same real displacement at two field resolutions diverged: mean byte diff = %v, want <= 3", meanDiff)
	}
}

// TestQuantizeAlphaMultiplierTwo checks that at M=2 quantizeAlpha only
// ever returns one of the fixed steps {0, 0.5, 1}.
func TestQuantizeAlphaMultiplierTwo(t *testing.T) {
	cases := []float32{0, 0.1, 0.24, 0.26, 0.49, 0.5, 0.51, 0.9, 1}
	for _, raw := range cases {
		q := quantizeAlpha(raw, 2)
		if q != 0 && q != 0.5 && q != 1 {
			t.Fatalf("quantizeAlpha(%v, 2) = %v, want one of {0, 0.5, 1}", raw, q)
		}
	}
}
