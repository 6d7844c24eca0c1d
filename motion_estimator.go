// motion_estimator.go - hierarchical coarse-to-fine block-matching orchestration.
//
// No teacher file performs motion estimation; the orchestration shape
// (a stateful component owning GPU resources, invoked once per tick,
// with a hardware/software backend split selected by build tag) is
// grounded in video_voodoo.go's VoodooEngine/VoodooBackend split. The
// dispatch-then-readback-then-decode sequence below mirrors
// motion_pyramid.go's own CreateTexture-once/Dispatch-every-tick
// pattern, just with two companion output textures (vector + confidence)
// per level instead of one.

package main

import (
	"context"
	"math"

	"go.uber.org/zap"
)

// ambiguitySnapBackConst and tinyCandidateCountConst are the GPU shader's
// push-constant-only tuning parameters: the CPU candidate set
// (tinyMatch's zero/temporal/hexagon set) doesn't exist on the
// hardware path, so the shader is handed a fixed count and blend
// coefficient instead of deriving them from modelPreset.
const (
	ambiguitySnapBackConst  = 0.6
	tinyCandidateCountConst = 10 // zero + 3 temporal + 6 hexagon
)

// MotionEstimator runs the three-level hierarchical block match of
// spec §4.2 and produces a MotionField at motion-sample scale.
type MotionEstimator struct {
	dev ComputeDevice
	log *zap.SugaredLogger

	model   MotionModel
	minimal bool // minimal-pipeline mode, spec §6
	prevPyr LumaPyramid
	currPyr LumaPyramid
	fullW   int
	fullH   int

	// GPU-path output textures, allocated once and reused across ticks
	// the same way LumaPyramid's levels are.
	tinyVec, tinyConf   GPUTextureHandle
	smallVec, smallConf GPUTextureHandle
	halfVec, halfConf   GPUTextureHandle

	softFallback *SoftwareMotionEstimator
}

func NewMotionEstimator(dev ComputeDevice, log *zap.SugaredLogger, model MotionModel) *MotionEstimator {
	return &MotionEstimator{
		dev:          dev,
		log:          log,
		model:        model,
		softFallback: NewSoftwareMotionEstimator(model),
	}
}

func (e *MotionEstimator) SetModel(model MotionModel) {
	e.model = model
	e.softFallback.model = model
}
func (e *MotionEstimator) SetMinimalPipeline(minimal bool) { e.minimal = minimal }

// SetMotionPrediction forwards spec §6's motion-prediction toggle to
// the software fallback's temporal carry-over. The hardware path takes
// no prediction input: dispatchEstimate binds only the prev/curr levels.
func (e *MotionEstimator) SetMotionPrediction(enabled bool) {
	e.softFallback.SetMotionPrediction(enabled)
}

// Estimate computes the motion field between prev and curr full-color
// frames. In minimal-pipeline mode (spec §6) only the coarsest "tiny"
// level is matched and the result is used directly, skipping the
// medium/fine refine passes for lower latency at reduced accuracy.
func (e *MotionEstimator) Estimate(ctx context.Context, prevColor, currColor GPUTextureHandle, width, height int) (*MotionField, error) {
	if width != e.fullW || height != e.fullH {
		// A new frame size drops the cached pyramid and output-texture
		// handles so both are allocated again at the new dimensions.
		e.prevPyr, e.currPyr = LumaPyramid{}, LumaPyramid{}
		e.tinyVec = invalidTexture
	}
	e.fullW, e.fullH = width, height

	if sw, ok := e.dev.(*SoftwareComputeDevice); ok {
		return e.softFallback.Estimate(sw, prevColor, currColor, width, height, e.minimal)
	}

	if err := buildLumaPyramidsForPair(ctx, e.dev, prevColor, currColor, width, height, &e.prevPyr, &e.currPyr); err != nil {
		return nil, err
	}
	if err := e.ensureOutputTextures(); err != nil {
		return nil, err
	}

	preset := motionModelPresets[e.model]
	tinyW, tinyH := e.currPyr.TinyW, e.currPyr.TinyH

	pc := MotionPushConstants{
		SrcWidth: uint32(e.prevPyr.TinyW), SrcHeight: uint32(e.prevPyr.TinyH),
		DstWidth: uint32(tinyW), DstHeight: uint32(tinyH),
		SearchRadius:      int32(clampSearchRadius(preset.tinyRadius, tinyW, tinyH)),
		AmbiguitySnapBack: ambiguitySnapBackConst,
		CandidateCount:    tinyCandidateCountConst,
	}
	if err := e.dispatchEstimate(ctx, KernelMotionEstimate, pc, e.prevPyr.Tiny, e.currPyr.Tiny, e.tinyVec, e.tinyConf, tinyW, tinyH); err != nil {
		return nil, err
	}
	field, err := e.readbackField(e.tinyVec, e.tinyConf, tinyW, tinyH)
	if err != nil {
		return nil, err
	}

	if e.minimal {
		return field, nil
	}

	smallW, smallH := e.currPyr.SmallW, e.currPyr.SmallH
	pc = MotionPushConstants{
		SrcWidth: uint32(e.prevPyr.SmallW), SrcHeight: uint32(e.prevPyr.SmallH),
		DstWidth: uint32(smallW), DstHeight: uint32(smallH),
		SearchRadius:      int32(clampSearchRadius(preset.smallRadius, smallW, smallH)),
		AmbiguitySnapBack: ambiguitySnapBackConst,
		CandidateCount:    1, // refine passes search a neighborhood, not a discrete candidate set
	}
	if err := e.dispatchEstimate(ctx, KernelMotionRefine, pc, e.prevPyr.Small, e.currPyr.Small, e.smallVec, e.smallConf, smallW, smallH); err != nil {
		return nil, err
	}
	field, err = e.readbackField(e.smallVec, e.smallConf, smallW, smallH)
	if err != nil {
		return nil, err
	}

	halfW, halfH := e.currPyr.HalfW, e.currPyr.HalfH
	pc = MotionPushConstants{
		SrcWidth: uint32(e.prevPyr.HalfW), SrcHeight: uint32(e.prevPyr.HalfH),
		DstWidth: uint32(halfW), DstHeight: uint32(halfH),
		SearchRadius:      int32(clampSearchRadius(preset.fullRadius, halfW, halfH)),
		AmbiguitySnapBack: ambiguitySnapBackConst,
		CandidateCount:    1,
	}
	if err := e.dispatchEstimate(ctx, KernelMotionRefine, pc, e.prevPyr.Half, e.currPyr.Half, e.halfVec, e.halfConf, halfW, halfH); err != nil {
		return nil, err
	}
	return e.readbackField(e.halfVec, e.halfConf, halfW, halfH)
}

// ensureOutputTextures allocates the six GPU-path output textures once
// per frame size; Estimate clears the cached handles (and the
// pyramids') when the size changes, so these follow the same lazy-init
// convention as buildLumaPyramid.
func (e *MotionEstimator) ensureOutputTextures() error {
	if e.tinyVec != invalidTexture {
		return nil
	}
	alloc := func(w, h int, format TextureFormat) (GPUTextureHandle, error) {
		return e.dev.CreateTexture(w, h, format)
	}
	var err error
	if e.tinyVec, err = alloc(e.prevPyr.TinyW, e.prevPyr.TinyH, FormatMotionRG16F); err != nil {
		return wrapf(KindResourceAllocation, "motion_estimator.ensureOutputTextures", err, "alloc tiny vector")
	}
	if e.tinyConf, err = alloc(e.prevPyr.TinyW, e.prevPyr.TinyH, FormatConfidenceR16F); err != nil {
		return wrapf(KindResourceAllocation, "motion_estimator.ensureOutputTextures", err, "alloc tiny confidence")
	}
	if e.smallVec, err = alloc(e.prevPyr.SmallW, e.prevPyr.SmallH, FormatMotionRG16F); err != nil {
		return wrapf(KindResourceAllocation, "motion_estimator.ensureOutputTextures", err, "alloc small vector")
	}
	if e.smallConf, err = alloc(e.prevPyr.SmallW, e.prevPyr.SmallH, FormatConfidenceR16F); err != nil {
		return wrapf(KindResourceAllocation, "motion_estimator.ensureOutputTextures", err, "alloc small confidence")
	}
	if e.halfVec, err = alloc(e.prevPyr.HalfW, e.prevPyr.HalfH, FormatMotionRG16F); err != nil {
		return wrapf(KindResourceAllocation, "motion_estimator.ensureOutputTextures", err, "alloc half vector")
	}
	if e.halfConf, err = alloc(e.prevPyr.HalfW, e.prevPyr.HalfH, FormatConfidenceR16F); err != nil {
		return wrapf(KindResourceAllocation, "motion_estimator.ensureOutputTextures", err, "alloc half confidence")
	}
	return nil
}

func (e *MotionEstimator) dispatchEstimate(ctx context.Context, kernel KernelName, pc MotionPushConstants, prev, curr, vecOut, confOut GPUTextureHandle, groupsX, groupsY int) error {
	buf := encodePushConstants(pc)
	return e.dev.Dispatch(ctx, kernel, buf,
		[]GPUTextureHandle{prev, curr},
		[]GPUTextureHandle{vecOut, confOut},
		uint32((groupsX+7)/8), uint32((groupsY+7)/8))
}

// readbackField pulls a level's vector/confidence textures off the
// device and decodes them into the CPU-side MotionField the rest of
// the pipeline (post-processor, interpolator) consumes identically to
// the software backend's output.
func (e *MotionEstimator) readbackField(vecTex, confTex GPUTextureHandle, w, h int) (*MotionField, error) {
	vecBytes, err := e.dev.ReadTexture(vecTex)
	if err != nil {
		return nil, wrapf(KindResourceAllocation, "motion_estimator.readbackField", err, "read vector texture")
	}
	confBytes, err := e.dev.ReadTexture(confTex)
	if err != nil {
		return nil, wrapf(KindResourceAllocation, "motion_estimator.readbackField", err, "read confidence texture")
	}
	return decodeMotionField(vecBytes, confBytes, w, h), nil
}

func encodePushConstants(pc MotionPushConstants) []byte {
	// Field-by-field little-endian pack, matching the GLSL push_constant
	// layout documented in gpu_shaders.go.
	buf := make([]byte, 8*4)
	putU32 := func(off int, v uint32) {
		buf[off] = byte(v)
		buf[off+1] = byte(v >> 8)
		buf[off+2] = byte(v >> 16)
		buf[off+3] = byte(v >> 24)
	}
	putU32(0, pc.SrcWidth)
	putU32(4, pc.SrcHeight)
	putU32(8, pc.DstWidth)
	putU32(12, pc.DstHeight)
	putU32(16, uint32(pc.SearchRadius))
	putU32(20, math.Float32bits(pc.AmbiguitySnapBack))
	putU32(24, pc.CandidateCount)
	return buf
}
