// motion_postprocess.go - edge-aware bilateral smoothing and temporal
// stabilization of a raw motion field.
//
// The history-invalidate-on-resize rule follows video_voodoo.go's
// pipelineDirty flag: a boolean the resize path flips, checked at the
// top of Stabilize, so a stale history field from before a resolution
// change is never blended against a field at the new resolution.

package main

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	bilateralRadius     = 2 // 5x5 window, spec §4.3
	defaultNeighborhood = 2 // stabilize's local-range window, spec §6 "neighborhood" (1-3)
)

// MotionPostProcessor applies spatial smoothing and, optionally,
// temporal stabilization against the previous tick's field.
type MotionPostProcessor struct {
	history      *MotionField
	historyDirty bool

	neighborhood int // spec §6 "neighborhood", 1-3
}

func NewMotionPostProcessor() *MotionPostProcessor {
	return &MotionPostProcessor{historyDirty: true, neighborhood: defaultNeighborhood}
}

// SetNeighborhood adjusts Stabilize's local-range clamp window, spec §6
// "temporal stabilization neighborhood" (1-3).
func (p *MotionPostProcessor) SetNeighborhood(k int) {
	if k < 1 {
		k = 1
	}
	if k > 3 {
		k = 3
	}
	p.neighborhood = k
}

// InvalidateHistory discards the temporal history field, called on
// resize and on capture-source restart the same way VoodooEngine's
// pipelineDirty is set whenever fbzMode/alphaMode change underneath it.
func (p *MotionPostProcessor) InvalidateHistory() {
	p.history = nil
	p.historyDirty = true
}

// Smooth applies spec §4.3's edge-aware 5x5 bilateral filter: a
// neighbor's contribution is weighted by spatial distance, luma
// agreement with the center sample (so motion does not bleed across a
// color edge), motion-vector similarity, and the neighbor's own
// confidence. A final edge-preserve pass blends back toward the
// original vector where a strong, high-confidence luma edge sits under
// the sample, to keep UI/text boundaries crisp. luma is sampled at the
// same grid resolution as in (the caller downsamples the color frame's
// luma plane to motion-sample scale before calling Smooth).
func (p *MotionPostProcessor) Smooth(in *MotionField, luma []byte, lumaW, lumaH int, edgeScale float32) *MotionField {
	out := NewMotionField(in.Width, in.Height)
	lumaAt := func(x, y int) float32 {
		x = clampInt(x, 0, lumaW-1)
		y = clampInt(y, 0, lumaH-1)
		if y*lumaW+x >= len(luma) || lumaW == 0 || lumaH == 0 {
			return 0
		}
		return float32(luma[y*lumaW+x])
	}
	lumaSigma := maxF32(0.05, 0.2*edgeScale)

	for y := 0; y < in.Height; y++ {
		for x := 0; x < in.Width; x++ {
			center := in.At(x, y)
			centerLuma := lumaAt(x, y)

			const samples = (2*bilateralRadius + 1) * (2*bilateralRadius + 1)
			weights := make([]float64, 0, samples)
			dxs := make([]float64, 0, samples)
			dys := make([]float64, 0, samples)
			for dy := -bilateralRadius; dy <= bilateralRadius; dy++ {
				for dx := -bilateralRadius; dx <= bilateralRadius; dx++ {
					nb := fieldAtClamped(in, x+dx, y+dy)

					spatial := math.Exp(-float64(dx*dx+dy*dy) / 4)

					deltaLuma := float64(absF(lumaAt(x+dx, y+dy)-centerLuma) / 255)
					lumaTerm := math.Exp(-deltaLuma / float64(lumaSigma))

					mvDX, mvDY := nb.DX-center.DX, nb.DY-center.DY
					mvSim := math.Exp(-float64(mvDX*mvDX+mvDY*mvDY) / 16)

					confW := float64(0.5 + 2*nb.Confidence)

					weights = append(weights, spatial*lumaTerm*mvSim*confW)
					dxs = append(dxs, float64(nb.DX))
					dys = append(dys, float64(nb.DY))
				}
			}
			sumW := floats.Sum(weights)
			if sumW == 0 {
				out.Set(x, y, center)
				continue
			}
			avgDX := float32(floats.Dot(weights, dxs) / sumW)
			avgDY := float32(floats.Dot(weights, dys) / sumW)

			edgeMag := edgeMagnitudeAt8(luma, lumaW, lumaH, x, y)
			preserve := minF32(0.5, smoothstep(edgeMaskLow, edgeMaskHigh, edgeMag)*center.Confidence)

			out.Set(x, y, MotionVector{
				DX:         lerp32(avgDX, center.DX, preserve),
				DY:         lerp32(avgDY, center.DY, preserve),
				Confidence: center.Confidence,
			})
		}
	}
	return out
}

// edgeMagnitudeAt8 is edgeMagnitudeAt's single-channel-plane
// equivalent, used on the luma byte slice Smooth receives rather than
// an image.RGBA.
func edgeMagnitudeAt8(plane []byte, w, h, x, y int) float32 {
	if w == 0 || h == 0 {
		return 0
	}
	at := func(px, py int) float32 {
		px = clampInt(px, 0, w-1)
		py = clampInt(py, 0, h-1)
		if py*w+px >= len(plane) {
			return 0
		}
		return float32(plane[py*w+px])
	}
	gx := at(x+1, y) - at(x-1, y)
	gy := at(x, y+1) - at(x, y-1)
	return (absF(gx) + absF(gy)) / 255
}

// Stabilize blends the spatially smoothed field against the previous
// tick's history, reprojected backward along the current field's own
// motion (spec §4.3): the history sample a pixel's content came from
// is the one that should anchor it, not the co-located history sample.
// The reprojected history is then clamped component-wise to the
// current field's local (2*neighborhood+1)^2 neighborhood range before
// blending, the real anti-ghosting bound (a single stale or noisy
// history sample cannot pull the output outside what the current
// field's own neighborhood considers plausible).
func (p *MotionPostProcessor) Stabilize(cur *MotionField) *MotionField {
	if p.history == nil || p.historyDirty || p.history.Width != cur.Width || p.history.Height != cur.Height {
		p.history = cloneField(cur)
		p.historyDirty = false
		return p.history
	}

	out := NewMotionField(cur.Width, cur.Height)
	k := p.neighborhood
	for y := 0; y < cur.Height; y++ {
		for x := 0; x < cur.Width; x++ {
			curV := cur.At(x, y)

			hx := x - int(math.Round(float64(curV.DX)))
			hy := y - int(math.Round(float64(curV.DY)))
			hist := fieldAtClamped(p.history, hx, hy)

			loX, hiX, loY, hiY := localMinMaxField(cur, x, y, k)
			histDX := clampF32(hist.DX, loX, hiX)
			histDY := clampF32(hist.DY, loY, hiY)

			displacement := float32(math.Hypot(float64(curV.DX-histDX), float64(curV.DY-histDY)))
			blend := clampF32((1-smoothstep(1, 8, displacement))*float32(math.Exp(-float64(displacement)*0.05)), 0.6, 0.95)

			out.Set(x, y, MotionVector{
				DX:         lerp32(curV.DX, histDX, blend),
				DY:         lerp32(curV.DY, histDY, blend),
				Confidence: curV.Confidence,
			})
		}
	}
	p.history = out
	return out
}

// localMinMaxField returns the component-wise min/max of a field's
// DX and DY over a (2k+1)x(2k+1) neighborhood centered at (x,y).
func localMinMaxField(f *MotionField, x, y, k int) (loX, hiX, loY, hiY float32) {
	loX, loY = float32(math.MaxFloat32), float32(math.MaxFloat32)
	hiX, hiY = -float32(math.MaxFloat32), -float32(math.MaxFloat32)
	for dy := -k; dy <= k; dy++ {
		for dx := -k; dx <= k; dx++ {
			v := fieldAtClamped(f, x+dx, y+dy)
			if v.DX < loX {
				loX = v.DX
			}
			if v.DX > hiX {
				hiX = v.DX
			}
			if v.DY < loY {
				loY = v.DY
			}
			if v.DY > hiY {
				hiY = v.DY
			}
		}
	}
	return loX, hiX, loY, hiY
}

// fieldAtClamped samples a field with edge-replicated coordinates,
// unlike MotionField.At's zero-vector out-of-range convention: a
// bilateral neighbor or local-range window just outside the field
// should see the nearest real sample, not a bogus zero-motion one that
// would bias smoothing and the stabilize clamp range near borders.
func fieldAtClamped(f *MotionField, x, y int) MotionVector {
	return f.At(clampInt(x, 0, f.Width-1), clampInt(y, 0, f.Height-1))
}

func cloneField(in *MotionField) *MotionField {
	out := NewMotionField(in.Width, in.Height)
	copy(out.Vectors, in.Vectors)
	return out
}

func minF32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
