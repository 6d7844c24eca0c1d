// motion_estimator_software.go - CPU block matcher backing the
// software fallback device and the deterministic test suite.
//
// Implements the hierarchical coarse-to-fine weighted-SAD search spec
// §4.2 describes (tiny candidate-set match, medium Gaussian-robust
// refine, fine sub-pixel refine) directly over decoded luma byte
// slices, the way voodoo_software.go rasterizes triangles with plain
// Go loops instead of a GPU pipeline.

package main

import "math"

// SoftwareMotionEstimator carries the previous tick's medium-refine
// field as the temporal-prediction input spec §4.2 describes ("sample
// the previous frame's coarse motion... retained from previous output
// tick").
type SoftwareMotionEstimator struct {
	model      MotionModel
	prevSmall  *MotionField
	predictOn  bool
}

func NewSoftwareMotionEstimator(model MotionModel) *SoftwareMotionEstimator {
	return &SoftwareMotionEstimator{model: model, predictOn: true}
}

// SetMotionPrediction toggles spec §6's motion-prediction carry-over:
// when disabled, each tick's tiny match starts cold instead of seeding
// candidates from the previous tick's field.
func (s *SoftwareMotionEstimator) SetMotionPrediction(enabled bool) {
	s.predictOn = enabled
	if !enabled {
		s.prevSmall = nil
	}
}

// Estimate reads the two color textures back from the software
// device, derives luma pyramids in plain Go, and runs the three-level
// hierarchical match: tiny candidate-set match (plus a backward pass
// for consistency rejection), medium Gaussian-robust refine, fine
// sub-pixel refine. In minimal-pipeline mode only the tiny level runs
// (the forward pass, plus the backward pass when the preset enforces
// consistency) and temporal prediction carry-over is not updated.
func (s *SoftwareMotionEstimator) Estimate(dev *SoftwareComputeDevice, prevColor, currColor GPUTextureHandle, width, height int, minimal bool) (*MotionField, error) {
	prevPixels, err := dev.ReadTexture(prevColor)
	if err != nil {
		return nil, wrapf(KindResourceAllocation, "motion_estimator_software.Estimate", err, "read prev texture")
	}
	currPixels, err := dev.ReadTexture(currColor)
	if err != nil {
		return nil, wrapf(KindResourceAllocation, "motion_estimator_software.Estimate", err, "read curr texture")
	}

	if bytesEqual(prevPixels, currPixels) {
		// Static-detection fast path (spec §8 scenario 1): a
		// pixel-identical pair needs no search at all.
		tw, th := pyramidDim(width, 8), pyramidDim(height, 8)
		field := NewMotionField(tw, th)
		for i := range field.Vectors {
			field.Vectors[i].Confidence = 0.98
		}
		return field, nil
	}

	prevLuma := toLuma(prevPixels, width, height)
	currLuma := toLuma(currPixels, width, height)

	preset := motionModelPresets[s.model]

	tinyPrev, tw, th := downsamplePlane(prevLuma, width, height, 8)
	tinyCurr, _, _ := downsamplePlane(currLuma, width, height, 8)

	forward := s.tinyMatch(tinyPrev, tinyCurr, tw, th, preset, false)
	var backward *MotionField
	if preset.backwardConsistency {
		backward = s.tinyMatch(tinyCurr, tinyPrev, tw, th, preset, true)
		applyBackwardConsistency(forward, backward)
	}

	if minimal {
		return forward, nil
	}

	smallPrev, sw, sh := downsamplePlane(prevLuma, width, height, 4)
	smallCurr, _, _ := downsamplePlane(currLuma, width, height, 4)
	medium := s.mediumRefine(smallPrev, smallCurr, sw, sh, forward, backward, preset)

	halfPrev, hw, hh := downsamplePlane(prevLuma, width, height, 2)
	halfCurr, _, _ := downsamplePlane(currLuma, width, height, 2)
	fine := s.fineRefine(halfPrev, halfCurr, hw, hh, medium, preset)

	s.prevSmall = medium
	return fine, nil
}

func pyramidDim(full, factor int) int {
	d := full / factor
	if d < 1 {
		d = 1
	}
	return d
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toLuma(bgra []byte, w, h int) []byte {
	out := make([]byte, w*h)
	for i := 0; i < w*h; i++ {
		off := i * 4
		if off+2 >= len(bgra) {
			break
		}
		b, g, r := bgra[off], bgra[off+1], bgra[off+2]
		out[i] = luma8(r, g, b)
	}
	return out
}

func downsamplePlane(plane []byte, w, h, factor int) ([]byte, int, int) {
	nw, nh := w/factor, h/factor
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	out := make([]byte, nw*nh)
	for y := 0; y < nh; y++ {
		for x := 0; x < nw; x++ {
			sx, sy := x*factor, y*factor
			var sum int
			for dy := 0; dy < factor && sy+dy < h; dy++ {
				for dx := 0; dx < factor && sx+dx < w; dx++ {
					sum += int(plane[(sy+dy)*w+sx+dx])
				}
			}
			out[y*nw+x] = byte(sum / (factor * factor))
		}
	}
	return out, nw, nh
}

// planeAt samples a luma plane with edge-clamped coordinates.
func planeAt(plane []byte, w, h, x, y int) float32 {
	x = clampInt(x, 0, w-1)
	y = clampInt(y, 0, h-1)
	return float32(plane[y*w+x])
}

// gradWeight returns spec §4.2's per-sample weight 1+4*gradient
// magnitude, a Sobel-style Manhattan gradient on the current frame.
func gradWeight(curr []byte, w, h, x, y int) float32 {
	gx := planeAt(curr, w, h, x+1, y) - planeAt(curr, w, h, x-1, y)
	gy := planeAt(curr, w, h, x, y+1) - planeAt(curr, w, h, x, y-1)
	mag := (absF(gx) + absF(gy)) / 255
	return 1 + 4*mag
}

// tiny7x7Offsets is the 4x4 sub-sampled subset of the 7x7 matching
// block spec §4.2 specifies: sparse enough to keep the dense per-pixel
// tiny-level search cheap, dense enough to span the full window.
var tiny7x7Offsets = [4]int{-3, -1, 1, 3}

// weightedSAD computes spec §4.2's weighted SAD of a candidate
// displacement (dx,dy) at (cx,cy), normalized to roughly [0,1].
func weightedSAD(prev, curr []byte, w, h, cx, cy int, dx, dy float32) float32 {
	var sum, wsum float32
	for _, oy := range tiny7x7Offsets {
		for _, ox := range tiny7x7Offsets {
			px, py := cx+ox, cy+oy
			cv := planeAt(curr, w, h, px, py)
			pv := planeAt(prev, w, h, px+int(math.Round(float64(dx))), py+int(math.Round(float64(dy))))
			weight := gradWeight(curr, w, h, px, py)
			sum += weight * absF(pv-cv) / 255
			wsum += weight
		}
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// ambiguityAndConfidence implements spec §4.2's shared confidence
// tail: uniqueness from the best/second-best cost ratio, then the
// final lerp toward the coarser level's confidence.
func ambiguityAndConfidence(best, second, coarseConf float32) (conf, uniqueness float32) {
	if second <= 0 {
		uniqueness = 0
	} else {
		uniqueness = clampF32((second-best)/second, 0, 1)
	}
	match := float32(math.Exp(-8 * float64(best)))
	raw := match * (0.4 + 0.6*uniqueness)
	conf = lerp32(raw, coarseConf, 0.35)
	conf = clampF32(conf, 0.05, 0.98)
	return conf, uniqueness
}

func lerp32(a, b, t float32) float32 { return a + (b-a)*t }

// tinyMatch runs the dense per-pixel coarse match: the candidate set
// is the zero vector (cost-biased), optional temporal prediction
// (center + two spatial neighbors sampled from the previous tick's
// medium-refine field), and a fixed 6-point hexagon pattern, followed
// by a 4-neighbor diamond refinement pass around the best candidate.
func (s *SoftwareMotionEstimator) tinyMatch(prev, curr []byte, w, h int, preset modelPreset, backward bool) *MotionField {
	radius := clampSearchRadius(preset.tinyRadius, w, h)
	field := NewMotionField(w, h)
	hex := [6][2]float32{{-2, 0}, {2, 0}, {0, -2}, {0, 2}, {-1, -2}, {1, 2}}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			type cand struct {
				dx, dy float32
				bias   float32
			}
			cands := make([]cand, 0, 10)
			cands = append(cands, cand{0, 0, 0.95})

			var predicted MotionVector
			havePrediction := !backward && s.predictOn && s.prevSmall != nil
			if havePrediction {
				sx, sy := int(float32(x)*0.5), int(float32(y)*0.5)
				predicted = MotionVector{
					DX: s.prevSmall.At(sx, sy).DX * 0.5,
					DY: s.prevSmall.At(sx, sy).DY * 0.5,
				}
				n1 := s.prevSmall.At(sx-2, sy)
				n2 := s.prevSmall.At(sx, sy-2)
				cands = append(cands,
					cand{predicted.DX, predicted.DY, 1},
					cand{n1.DX * 0.5, n1.DY * 0.5, 1},
					cand{n2.DX * 0.5, n2.DY * 0.5, 1},
				)
			}
			for _, hv := range hex {
				cands = append(cands, cand{hv[0], hv[1], 1})
			}

			bestCost, secondCost := float32(math.MaxFloat32), float32(math.MaxFloat32)
			var bestDX, bestDY float32
			for _, c := range cands {
				if absF(c.dx) > float32(radius) || absF(c.dy) > float32(radius) {
					continue
				}
				cost := weightedSAD(prev, curr, w, h, x, y, c.dx, c.dy) * c.bias
				if cost < bestCost {
					secondCost = bestCost
					bestCost, bestDX, bestDY = cost, c.dx, c.dy
				} else if cost < secondCost {
					secondCost = cost
				}
			}

			// 4-neighbor diamond refinement around the current best.
			diamond := [4][2]float32{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
			for _, dv := range diamond {
				ndx, ndy := bestDX+dv[0], bestDY+dv[1]
				if absF(ndx) > float32(radius) || absF(ndy) > float32(radius) {
					continue
				}
				cost := weightedSAD(prev, curr, w, h, x, y, ndx, ndy)
				if cost < bestCost {
					secondCost = bestCost
					bestCost, bestDX, bestDY = cost, ndx, ndy
				} else if cost < secondCost {
					secondCost = cost
				}
			}

			conf, uniqueness := ambiguityAndConfidence(bestCost, secondCost, 0.5)
			if havePrediction {
				snap := (1 - uniqueness) * (1 - conf) * 0.6
				bestDX = lerp32(bestDX, predicted.DX, snap)
				bestDY = lerp32(bestDY, predicted.DY, snap)
			}
			field.Set(x, y, MotionVector{DX: bestDX, DY: bestDY, Confidence: conf})
		}
	}
	return field
}

// applyBackwardConsistency discounts forward confidence wherever the
// backward-matched vector sampled at the forward-displaced location
// does not cancel it out, spec §4.2's consistency rejection.
func applyBackwardConsistency(forward, backward *MotionField) {
	for y := 0; y < forward.Height; y++ {
		for x := 0; x < forward.Width; x++ {
			fwd := forward.At(x, y)
			bx := x + int(math.Round(float64(fwd.DX)))
			by := y + int(math.Round(float64(fwd.DY)))
			back := backward.At(bx, by)
			errMag := float32(math.Hypot(float64(fwd.DX+back.DX), float64(fwd.DY+back.DY)))
			if errMag > 1.0 {
				fwd.Confidence *= clampF32(1.5-errMag*0.5, 0.2, 1)
				forward.Set(x, y, fwd)
			}
		}
	}
}

// gaussianWeights5x5 are spec §4.2's medium-refine sample weights,
// a separable-looking but hand-tabulated 5x5 Gaussian (sigma ~1).
var gaussianWeights5x5 = [5][5]float32{
	{0.003, 0.013, 0.022, 0.013, 0.003},
	{0.013, 0.059, 0.097, 0.059, 0.013},
	{0.022, 0.097, 0.159, 0.097, 0.022},
	{0.013, 0.059, 0.097, 0.059, 0.013},
	{0.003, 0.013, 0.022, 0.013, 0.003},
}

// gaussianRobustSAD is spec §4.2's medium-refine cost: a 5x5
// Gaussian-weighted SAD with each per-sample term clipped at 0.30 so a
// single outlier pixel cannot dominate the match.
func gaussianRobustSAD(prev, curr []byte, w, h, cx, cy int, dx, dy int) float32 {
	var sum float32
	for j := -2; j <= 2; j++ {
		for i := -2; i <= 2; i++ {
			px, py := cx+i, cy+j
			cv := planeAt(curr, w, h, px, py)
			pv := planeAt(prev, w, h, px+dx, py+dy)
			diff := absF(pv-cv) / 255
			if diff > 0.30 {
				diff = 0.30
			}
			sum += gaussianWeights5x5[j+2][i+2] * diff
		}
	}
	return sum
}

// mediumRefine is spec §4.2's "small" level: tiny vectors are scaled
// into small-grid units and searched around with a regularized,
// Gaussian-weighted robust SAD, with an optional backward-consistency
// penalty and a fast path for already-converged, high-confidence
// near-zero vectors.
func (s *SoftwareMotionEstimator) mediumRefine(prev, curr []byte, w, h int, tiny, tinyBackward *MotionField, preset modelPreset) *MotionField {
	radius := clampSearchRadius(preset.smallRadius, w, h)
	field := NewMotionField(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ty, tx := y/2, x/2
			coarse := tiny.At(tx, ty)
			seedDX, seedDY := coarse.DX*2, coarse.DY*2
			coarseConf := coarse.Confidence

			if coarseConf > 0.94 && seedDX*seedDX+seedDY*seedDY < 0.04 {
				field.Set(x, y, MotionVector{DX: seedDX, DY: seedDY, Confidence: maxF32(coarseConf, 0.95)})
				continue
			}

			regWeight := lerp32(0.10, 0.03, coarseConf)
			var backPenalty, backConf float32
			haveBack := preset.backwardConsistency && tinyBackward != nil
			if haveBack {
				bv := tinyBackward.At(tx, ty)
				backPenalty = lerp32(0.06, 0.20, bv.Confidence)
				backConf = bv.Confidence
			}
			_ = backConf

			bestCost, secondCost := float32(math.MaxFloat32), float32(math.MaxFloat32)
			seedIX, seedIY := int(math.Round(float64(seedDX))), int(math.Round(float64(seedDY)))
			var bestDX, bestDY int
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					cdx, cdy := seedIX+dx, seedIY+dy
					cost := gaussianRobustSAD(prev, curr, w, h, x, y, cdx, cdy)
					delta := float32(math.Hypot(float64(cdx)-float64(seedDX), float64(cdy)-float64(seedDY)))
					cost += regWeight * delta
					if haveBack {
						bv := tinyBackward.At(tx, ty)
						mag := float32(math.Hypot(float64(cdx)+float64(bv.DX*2), float64(cdy)+float64(bv.DY*2)))
						cost += mag * backPenalty
					}
					if cost < bestCost {
						secondCost = bestCost
						bestCost, bestDX, bestDY = cost, cdx, cdy
					} else if cost < secondCost {
						secondCost = cost
					}
				}
			}

			conf, uniqueness := ambiguityAndConfidence(bestCost, secondCost, coarseConf)
			fbestDX, fbestDY := float32(bestDX), float32(bestDY)
			snap := (1 - uniqueness) * (1 - coarseConf) * 0.6
			fbestDX = lerp32(fbestDX, seedDX, snap)
			fbestDY = lerp32(fbestDY, seedDY, snap)

			field.Set(x, y, MotionVector{DX: fbestDX, DY: fbestDY, Confidence: conf})
		}
	}
	return field
}

// fineRefine is spec §4.2's "half" level: medium vectors are scaled
// into half-grid units and refined by an integer-pixel search followed
// by half-pixel (and, usually, quarter-pixel) parabola-style local
// descent, bounded to the seed's mvLimit box.
func (s *SoftwareMotionEstimator) fineRefine(prev, curr []byte, w, h int, medium *MotionField, preset modelPreset) *MotionField {
	radius := clampSearchRadius(preset.fullRadius, w, h)
	field := NewMotionField(w, h)
	mvLimit := float32(radius) + 1

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			my, mx := y/2, x/2
			coarse := medium.At(mx, my)
			seedDX, seedDY := coarse.DX*2, coarse.DY*2
			coarseConf := coarse.Confidence

			if coarseConf > 0.94 && seedDX*seedDX+seedDY*seedDY < 0.04 {
				field.Set(x, y, MotionVector{DX: seedDX, DY: seedDY, Confidence: maxF32(coarseConf, 0.95)})
				continue
			}

			seedIX, seedIY := int(math.Round(float64(seedDX))), int(math.Round(float64(seedDY)))
			bestCost, secondCost := float32(math.MaxFloat32), float32(math.MaxFloat32)
			var bestDX, bestDY int
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					cdx, cdy := seedIX+dx, seedIY+dy
					cost := weightedSAD(prev, curr, w, h, x, y, float32(cdx), float32(cdy))
					if cost < bestCost {
						secondCost = bestCost
						bestCost, bestDX, bestDY = cost, cdx, cdy
					} else if cost < secondCost {
						secondCost = cost
					}
				}
			}

			// Half-pixel parabola fit along x and y independently.
			cL := weightedSAD(prev, curr, w, h, x, y, float32(bestDX-1), float32(bestDY))
			cR := weightedSAD(prev, curr, w, h, x, y, float32(bestDX+1), float32(bestDY))
			subX := parabolaOffset(cL, bestCost, cR)
			cD := weightedSAD(prev, curr, w, h, x, y, float32(bestDX), float32(bestDY-1))
			cU := weightedSAD(prev, curr, w, h, x, y, float32(bestDX), float32(bestDY+1))
			subY := parabolaOffset(cD, bestCost, cU)

			halfDX := float32(bestDX) + subX*0.5
			halfDY := float32(bestDY) + subY*0.5
			halfCost := weightedSAD(prev, curr, w, h, x, y, halfDX, halfDY)
			improvement := (bestCost - halfCost) / maxF32(bestCost, 1e-4)

			finalDX, finalDY := halfDX, halfDY
			// Quarter-pixel pass is skipped once the half-pixel step
			// barely moved the cost and the seed is already trusted and
			// close, spec §4.2's fine-refine fast path.
			skipQuarter := improvement < 0.003 && coarseConf >= 0.7 &&
				(halfDX-seedDX)*(halfDX-seedDX)+(halfDY-seedDY)*(halfDY-seedDY) <= 0.04
			if !skipQuarter {
				qL := weightedSAD(prev, curr, w, h, x, y, halfDX-0.5, halfDY)
				qR := weightedSAD(prev, curr, w, h, x, y, halfDX+0.5, halfDY)
				qSubX := parabolaOffset(qL, halfCost, qR)
				qD := weightedSAD(prev, curr, w, h, x, y, halfDX, halfDY-0.5)
				qU := weightedSAD(prev, curr, w, h, x, y, halfDX, halfDY+0.5)
				qSubY := parabolaOffset(qD, halfCost, qU)
				finalDX = halfDX + qSubX*0.25
				finalDY = halfDY + qSubY*0.25
			}

			finalDX = clampF32(finalDX, seedDX-mvLimit, seedDX+mvLimit)
			finalDY = clampF32(finalDY, seedDY-mvLimit, seedDY+mvLimit)

			conf, uniqueness := ambiguityAndConfidence(bestCost, secondCost, coarseConf)
			snap := (1 - uniqueness) * (1 - coarseConf) * 0.6
			finalDX = lerp32(finalDX, seedDX, snap)
			finalDY = lerp32(finalDY, seedDY, snap)

			if coarseConf > 0.94 && seedDX*seedDX+seedDY*seedDY < 0.04 {
				conf = maxF32(conf, 0.95)
			}

			field.Set(x, y, MotionVector{DX: finalDX, DY: finalDY, Confidence: conf})
		}
	}
	return field
}

// parabolaOffset fits a 3-point parabola through (-1,left), (0,center),
// (1,right) and returns the sub-sample offset of its minimum, clamped
// to +/-1 so a degenerate (non-convex) triplet cannot diverge.
func parabolaOffset(left, center, right float32) float32 {
	denom := left - 2*center + right
	if absF(denom) < 1e-6 {
		return 0
	}
	offset := 0.5 * (left - right) / denom
	return clampF32(offset, -1, 1)
}
