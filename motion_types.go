// motion_types.go - shared data model for motion estimation and post-processing.

package main

// MotionVector is a single estimated displacement sample, in pixels,
// at motion-sample scale (spec glossary: "Motion-sample scale").
type MotionVector struct {
	DX, DY     float32
	Confidence float32 // 0..1, spec §4.2 "final confidence"
}

// MotionField is a 2D grid of MotionVector at motion-sample
// resolution (coarser than the full frame), spec §2 "Motion Field".
type MotionField struct {
	Width, Height int // in motion samples, not pixels
	Vectors       []MotionVector
}

func NewMotionField(width, height int) *MotionField {
	return &MotionField{
		Width:   width,
		Height:  height,
		Vectors: make([]MotionVector, width*height),
	}
}

func (m *MotionField) At(x, y int) MotionVector {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return MotionVector{}
	}
	return m.Vectors[y*m.Width+x]
}

func (m *MotionField) Set(x, y int, v MotionVector) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Vectors[y*m.Width+x] = v
}

// MotionModel selects the estimator's preset of per-level search radii
// and backward-consistency enforcement, spec §4.2 "motion-model presets".
type MotionModel int

const (
	// ModelAdaptive uses the widest radii (4/4/3) with backward
	// consistency; its radii are fixed and do not change with
	// confidence, temporal prediction or stabilization settings.
	ModelAdaptive MotionModel = iota
	// ModelStable uses the narrowest radii (2/2/1) with backward
	// consistency.
	ModelStable
	// ModelBalanced is the default middle ground.
	ModelBalanced
	// ModelCoverage uses the widest radii (4/4/3) and skips the
	// backward-consistency pass; the candidate set is the same as for
	// the other models.
	ModelCoverage
)

// modelPreset bundles the per-model tuning the estimator reads each
// tick: the three hierarchy levels' integer-pixel search radii (spec
// §4.2 "clamp(R,1,min(W,H)/4), R is 2-4 by model") and whether the
// backward-consistency pass is enforced (ModelCoverage skips it).
type modelPreset struct {
	tinyRadius          int
	smallRadius         int
	fullRadius          int
	backwardConsistency bool
}

var motionModelPresets = map[MotionModel]modelPreset{
	ModelAdaptive:  {tinyRadius: 4, smallRadius: 4, fullRadius: 3, backwardConsistency: true},
	ModelStable:    {tinyRadius: 2, smallRadius: 2, fullRadius: 1, backwardConsistency: true},
	ModelBalanced:  {tinyRadius: 3, smallRadius: 3, fullRadius: 2, backwardConsistency: true},
	ModelCoverage:  {tinyRadius: 4, smallRadius: 4, fullRadius: 3, backwardConsistency: false},
}

// clampSearchRadius bounds a preset radius to spec §4.2's
// clamp(R,1,min(W,H)/4) so a tiny-resolution pyramid level (which can
// be just a few samples wide near the minimum supported capture size)
// never receives a search window wider than the plane itself.
func clampSearchRadius(r, w, h int) int {
	limit := w
	if h < limit {
		limit = h
	}
	limit /= 4
	if limit < 1 {
		limit = 1
	}
	if r > limit {
		r = limit
	}
	if r < 1 {
		r = 1
	}
	return r
}

// LumaPyramid holds the three coarse-to-fine luma levels spec §2 names
// "half"/"small"/"tiny".
type LumaPyramid struct {
	Half GPUTextureHandle
	Small GPUTextureHandle
	Tiny  GPUTextureHandle
	HalfW, HalfH int
	SmallW, SmallH int
	TinyW, TinyH int
}
