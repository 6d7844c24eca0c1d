// interpolator.go - bidirectional motion-compensated warp and blend.
//
// The cheap-path/full-path dispatch mirrors video_compositor.go's
// blendFrame/blendFrameScaled split (a fast identical-size path vs a
// general scaled path); here the split is on interpolation weight
// instead of frame size: a pixel whose motion/color/confidence masks
// net out near zero takes the static cross-dissolve fast path, the
// rest takes the full bidirectional warp.

package main

import (
	"image"
	"image/color"
	"math"
)

// InterpolationQuality selects the candidate warp selection strategy,
// spec §4.4 "quality mode".
type InterpolationQuality int

const (
	QualityStandard InterpolationQuality = iota
	QualityHigh
)

const (
	haloClampDefault = 1.5

	// nominalMotionSampleScale is the reference downsample factor spec
	// §4.4's motion-mask threshold is defined against (the tiny pyramid
	// level's factor), not the caller's actual field resolution: using
	// the live per-call sampleScale here would make the motion mask
	// (and therefore the whole interpolation decision) depend on which
	// pyramid level a field came from, breaking scale invariance between
	// an equivalent displacement expressed at two different field
	// resolutions.
	nominalMotionSampleScale = 8

	edgeMaskLow, edgeMaskHigh   = 0.05, 0.2
	colorMaskLow, colorMaskHigh = 0.008, 0.030
	confMaskLow, confMaskHigh  = 0.15, 0.55
)

// Interpolator produces the in-between frame at phase alpha between
// prev and curr.
type Interpolator struct {
	quality              InterpolationQuality
	confidencePower      float32
	textProtectStrength  float32
}

func NewInterpolator(quality InterpolationQuality) *Interpolator {
	return &Interpolator{quality: quality, confidencePower: 1, textProtectStrength: 0.5}
}

func (ip *Interpolator) SetQuality(q InterpolationQuality) { ip.quality = q }

// SetConfidencePower adjusts the confidence mask's gamma, spec §6
// "confidence power" (0.25-4): higher values demand stronger
// per-sample confidence before a pixel is allowed to warp.
func (ip *Interpolator) SetConfidencePower(p float32) { ip.confidencePower = clampF32(p, 0.25, 4) }

// SetTextProtectStrength adjusts how aggressively static, high-edge
// regions (typically UI text) resist being warped, spec §6 "text
// protection strength" (0-1).
func (ip *Interpolator) SetTextProtectStrength(s float32) {
	ip.textProtectStrength = clampF32(s, 0, 1)
}

// Interpolate blends prev and curr RGBA frames using field as the
// motion-sample-scale displacement grid, at the given presentation
// phase alpha in [0, 1].
func (ip *Interpolator) Interpolate(prev, curr *image.RGBA, field *MotionField, alpha float32) *image.RGBA {
	bounds := curr.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := image.NewRGBA(bounds)

	if alpha <= 0.001 {
		copy(out.Pix, prev.Pix)
		return out
	}
	if alpha >= 0.999 {
		copy(out.Pix, curr.Pix)
		return out
	}

	// Motion-sample scale (spec glossary): the field is stored at
	// coarser-than-color resolution, so every vector is multiplied by
	// this factor before it can address full-resolution color pixels.
	sampleScaleX := float32(w) / float32(field.Width)
	sampleScaleY := float32(h) / float32(field.Height)

	motionThreshold := maxF32(0.35, 0.55*nominalMotionSampleScale)
	clampRange := maxF32(0.75, 1.6*nominalMotionSampleScale)

	for y := 0; y < h; y++ {
		fy := int(float32(y) / sampleScaleY)
		for x := 0; x < w; x++ {
			fx := int(float32(x) / sampleScaleX)
			v := field.At(fx, fy)

			mDX := v.DX * sampleScaleX
			mDY := v.DY * sampleScaleY
			mag := float32(math.Hypot(float64(mDX), float64(mDY)))
			motionMask := smoothstep(0.6*motionThreshold, motionThreshold, mag)

			pp := prev.RGBAAt(x, y)
			cp := curr.RGBAAt(x, y)
			maxChannelDiff := maxF32(maxF32(
				absF(float32(pp.R)-float32(cp.R)),
				absF(float32(pp.G)-float32(cp.G))),
				absF(float32(pp.B)-float32(cp.B))) / 255
			colorMask := smoothstep(colorMaskLow, colorMaskHigh, maxChannelDiff)

			confMask := smoothstep(confMaskLow, confMaskHigh, powF32(clampF32(v.Confidence, 0, 1), ip.confidencePower))

			interpWeight := motionMask * colorMask * confMask

			edgeMag := edgeMagnitudeAt(curr, x, y)
			edgeMask := smoothstep(edgeMaskLow, edgeMaskHigh, edgeMag)
			staticMask := 1 - motionMask
			textLock := (0.3 + 0.7*ip.textProtectStrength) * edgeMask * staticMask
			interpWeight -= textLock
			if interpWeight < 0 {
				interpWeight = 0
			}

			if interpWeight < 0.006 {
				out.SetRGBA(x, y, blendStatic(prev, curr, x, y, alpha))
				continue
			}

			chosenDX, chosenDY := mDX, mDY
			if ip.quality == QualityHigh {
				mcDX, mcDY := consensusVector(field, fx, fy, sampleScaleX, sampleScaleY, mDX, mDY, clampRange)
				chosenDX, chosenDY = selectCandidate(prev, curr, x, y, alpha, mDX, mDY, mcDX, mcDY, pp, cp)
			}

			px := float32(x) - alpha*chosenDX
			py := float32(y) - alpha*chosenDY
			cx := float32(x) + (1-alpha)*chosenDX
			cy := float32(y) + (1-alpha)*chosenDY

			var warpedP, warpedC color.RGBA
			if ip.quality == QualityHigh {
				warpedP = sampleCatmullRom(prev, px, py)
				warpedC = sampleCatmullRom(curr, cx, cy)
			} else {
				warpedP = sampleBilinear(prev, px, py)
				warpedC = sampleBilinear(curr, cx, cy)
			}
			warped := lerpColor(warpedP, warpedC, alpha)

			zeroErr := colorDiffLuma(pp, cp)
			warpErr := colorDiffLuma(warpedP, warpedC)
			warpTrust := smoothstep(0.01, 0.16, (zeroErr-warpErr)/maxF32(zeroErr, 0.01))

			static := blendStatic(prev, curr, x, y, alpha)
			out.SetRGBA(x, y, lerpColor(static, warped, interpWeight*warpTrust))
		}
	}

	return out
}

// consensusVector is spec §4.4's m_c: a confidence-weighted average of
// the center sample and its four cardinal field neighbors, clamped to
// stay within clampRange of the center vector so a single noisy
// neighbor cannot pull the consensus far from the local estimate.
func consensusVector(field *MotionField, fx, fy int, sampleScaleX, sampleScaleY, centerDX, centerDY, clampRange float32) (float32, float32) {
	center := field.At(fx, fy)
	neighbors := [5]MotionVector{
		center,
		field.At(fx-1, fy),
		field.At(fx+1, fy),
		field.At(fx, fy-1),
		field.At(fx, fy+1),
	}
	var sumDX, sumDY, sumW float32
	for _, n := range neighbors {
		sumDX += n.DX * n.Confidence
		sumDY += n.DY * n.Confidence
		sumW += n.Confidence
	}
	mcDX, mcDY := centerDX, centerDY
	if sumW > 0 {
		mcDX = sumDX / sumW * sampleScaleX
		mcDY = sumDY / sumW * sampleScaleY
	}
	mcDX = clampF32(mcDX, centerDX-clampRange, centerDX+clampRange)
	mcDY = clampF32(mcDY, centerDY-clampRange, centerDY+clampRange)
	return mcDX, mcDY
}

// selectCandidate is spec §4.4's QualityHigh candidate scoring: among
// the smoothed motion m, its neighborhood consensus m_c, and their
// midpoint, pick whichever minimizes forward/backward warp symmetry
// error, with a small tie-breaker favoring m itself.
func selectCandidate(prev, curr *image.RGBA, x, y int, alpha, mDX, mDY, mcDX, mcDY float32, pp, cp color.RGBA) (float32, float32) {
	candidates := [3][2]float32{
		{mDX, mDY},
		{mcDX, mcDY},
		{(mDX + mcDX) / 2, (mDY + mcDY) / 2},
	}
	bestIdx := 0
	bestScore := float32(math.MaxFloat32)
	for i, c := range candidates {
		px := float32(x) - alpha*c[0]
		py := float32(y) - alpha*c[1]
		cx := float32(x) + (1-alpha)*c[0]
		cy := float32(y) + (1-alpha)*c[1]
		wp := sampleCatmullRom(prev, px, py)
		wc := sampleCatmullRom(curr, cx, cy)
		score := colorDiffLuma(wp, cp) + colorDiffLuma(wc, pp) + 0.35*colorDiffLuma(wp, wc)
		score += alpha * float32(math.Hypot(float64(c[0]-mDX), float64(c[1]-mDY)))
		if score < bestScore {
			bestScore, bestIdx = score, i
		}
	}
	return candidates[bestIdx][0], candidates[bestIdx][1]
}

func blendStatic(prev, curr *image.RGBA, x, y int, alpha float32) color.RGBA {
	p := prev.RGBAAt(x, y)
	c := curr.RGBAAt(x, y)
	return lerpColor(p, c, alpha)
}

func lerpColor(a, b color.RGBA, t float32) color.RGBA {
	return color.RGBA{
		R: lerp8(a.R, b.R, t),
		G: lerp8(a.G, b.G, t),
		B: lerp8(a.B, b.B, t),
		A: 255,
	}
}

func lerp8(a, b uint8, t float32) uint8 {
	v := float32(a) + t*(float32(b)-float32(a))
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func powF32(base, exp float32) float32 {
	return float32(math.Pow(float64(base), float64(exp)))
}

// smoothstep is the standard Hermite interpolation spec §4.4 builds
// every soft mask from.
func smoothstep(edge0, edge1, x float32) float32 {
	if edge0 == edge1 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := clampF32((x-edge0)/(edge1-edge0), 0, 1)
	return t * t * (3 - 2*t)
}

func rec709Luma(r, g, b uint8) float32 {
	return 0.2126*float32(r) + 0.7152*float32(g) + 0.0722*float32(b)
}

func colorDiffLuma(a, b color.RGBA) float32 {
	return absF(rec709Luma(a.R, a.G, a.B)-rec709Luma(b.R, b.G, b.B)) / 255
}

// edgeMagnitudeAt is a Sobel-style Manhattan luma gradient, used by
// the text-lock mask to find UI edges worth protecting from warping.
func edgeMagnitudeAt(img *image.RGBA, x, y int) float32 {
	bounds := img.Bounds()
	at := func(px, py int) float32 {
		px = clampInt(px, bounds.Min.X, bounds.Max.X-1)
		py = clampInt(py, bounds.Min.Y, bounds.Max.Y-1)
		c := img.RGBAAt(px, py)
		return rec709Luma(c.R, c.G, c.B)
	}
	gx := at(x+1, y) - at(x-1, y)
	gy := at(x, y+1) - at(x, y-1)
	return (absF(gx) + absF(gy)) / 255
}

// sampleBilinear is QualityStandard's sampling kernel: plain two-tap
// bilinear, cheaper and softer than the four-tap Catmull-Rom reserved
// for QualityHigh.
func sampleBilinear(img *image.RGBA, fx, fy float32) color.RGBA {
	bounds := img.Bounds()
	x0 := int(math.Floor(float64(fx)))
	y0 := int(math.Floor(float64(fy)))
	tx := fx - float32(x0)
	ty := fy - float32(y0)
	at := func(px, py int) color.RGBA {
		px = clampInt(px, bounds.Min.X, bounds.Max.X-1)
		py = clampInt(py, bounds.Min.Y, bounds.Max.Y-1)
		return img.RGBAAt(px, py)
	}
	top := lerpColor(at(x0, y0), at(x0+1, y0), tx)
	bot := lerpColor(at(x0, y0+1), at(x0+1, y0+1), tx)
	return lerpColor(top, bot, ty)
}

// sampleCatmullRom performs a four-tap Catmull-Rom reconstruction at a
// fractional pixel position, clamped to haloClampDefault overshoot
// (spec glossary "Catmull-Rom four-tap", spec §4.4 "halo bound").
func sampleCatmullRom(img *image.RGBA, fx, fy float32) color.RGBA {
	bounds := img.Bounds()
	x0 := int(fx)
	y0 := int(fy)
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	var result [3]float32

	for c := 0; c < 3; c++ {
		var rows [4]float32
		for j := -1; j <= 2; j++ {
			var taps [4]float32
			for i := -1; i <= 2; i++ {
				px, py := clampInt(x0+i, bounds.Min.X, bounds.Max.X-1), clampInt(y0+j, bounds.Min.Y, bounds.Max.Y-1)
				rgba := img.RGBAAt(px, py)
				taps[i+1] = channel(rgba, c)
			}
			rows[j+1] = catmullRom1D(taps[0], taps[1], taps[2], taps[3], tx)
		}
		v := catmullRom1D(rows[0], rows[1], rows[2], rows[3], ty)

		// Clamp against the local 2x2 neighborhood's min/max to suppress
		// overshoot halos beyond haloClampDefault, rather than against
		// the raw Catmull-Rom output which can ring well past [0,255].
		lo, hi := localMinMax(img, x0, y0, c, bounds)
		result[c] = clampF32(v, lo-haloClampDefault, hi+haloClampDefault)
	}

	return color.RGBA{
		R: uint8(clampF32(result[0], 0, 255)),
		G: uint8(clampF32(result[1], 0, 255)),
		B: uint8(clampF32(result[2], 0, 255)),
		A: 255,
	}
}

func channel(c color.RGBA, idx int) float32 {
	switch idx {
	case 0:
		return float32(c.R)
	case 1:
		return float32(c.G)
	default:
		return float32(c.B)
	}
}

func localMinMax(img *image.RGBA, x0, y0, c int, bounds image.Rectangle) (float32, float32) {
	lo, hi := float32(255), float32(0)
	for j := 0; j <= 1; j++ {
		for i := 0; i <= 1; i++ {
			px, py := clampInt(x0+i, bounds.Min.X, bounds.Max.X-1), clampInt(y0+j, bounds.Min.Y, bounds.Max.Y-1)
			v := channel(img.RGBAAt(px, py), c)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

func catmullRom1D(p0, p1, p2, p3, t float32) float32 {
	a := -0.5*p0 + 1.5*p1 - 1.5*p2 + 0.5*p3
	b := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	c := -0.5*p0 + 0.5*p2
	d := p1
	return ((a*t+b)*t+c)*t + d
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
