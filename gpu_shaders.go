// gpu_shaders.go - compute kernel identifiers and embedded SPIR-V.
//
// Follows voodoo_shaders.go's convention of keeping the compiled
// SPIR-V as a placeholder byte slice checked into the binary, with the
// authoring GLSL kept alongside as a comment for reference. A real
// build replaces these placeholders with bytes from an offline
// glslangValidator pass; nothing here depends on that tool at runtime.

package main

// KernelName identifies one of the fixed compute dispatches the engine
// issues every tick. Kept as a distinct type (not a bare string) so a
// typo is a compile error in the pipeline cache lookup.
type KernelName string

const (
	KernelPyramidDownsample KernelName = "pyramid_downsample"
	KernelLumaDownsample    KernelName = "luma_downsample"
	KernelMotionEstimate    KernelName = "motion_estimate"
	KernelMotionRefine      KernelName = "motion_refine"
	KernelMotionSmooth      KernelName = "motion_smooth"
	KernelMotionTemporal    KernelName = "motion_temporal"
	KernelInterpolate       KernelName = "interpolate"
	KernelCopyScale         KernelName = "copy_scale"
	KernelDebugView         KernelName = "debug_view"
)

// allKernels enumerates every kernel the pipeline cache must warm at
// initialize() so a missing shader module fails fast instead of on
// first use mid-stream.
var allKernels = []KernelName{
	KernelPyramidDownsample,
	KernelLumaDownsample,
	KernelMotionEstimate,
	KernelMotionRefine,
	KernelMotionSmooth,
	KernelMotionTemporal,
	KernelInterpolate,
	KernelCopyScale,
	KernelDebugView,
}

// MotionPushConstants is uploaded once per motion_estimate /
// motion_refine dispatch. Field order and size must match the GLSL
// push_constant block exactly; see comment below.
type MotionPushConstants struct {
	SrcWidth, SrcHeight   uint32
	DstWidth, DstHeight   uint32
	SearchRadius          int32
	AmbiguitySnapBack     float32
	CandidateCount        uint32
	_                     uint32 // pad to 16-byte alignment
}

// InterpolatePushConstants is uploaded once per interpolate dispatch.
type InterpolatePushConstants struct {
	Width, Height    uint32
	Alpha            float32
	HaloClamp        float32
	TextLockStrength float32
	QualityHigh      uint32
}

/*
GLSL source for motion_estimate.comp (authoring reference only; not
compiled at runtime by this program):

	#version 450
	layout(local_size_x = 8, local_size_y = 8) in;
	layout(binding = 0) uniform sampler2D prevLuma;
	layout(binding = 1) uniform sampler2D currLuma;
	layout(binding = 2, rg16f) uniform writeonly image2D motionOut;
	layout(push_constant) uniform PC {
		uint srcWidth, srcHeight;
		uint dstWidth, dstHeight;
		int searchRadius;
		float ambiguitySnapBack;
		uint candidateCount;
	} pc;
	// hierarchical block match body omitted; see motion_estimator.go
*/
var motionEstimateSPV = []byte{
	0x03, 0x02, 0x23, 0x07, // SPIR-V magic, placeholder module
}

var interpolateSPV = []byte{
	0x03, 0x02, 0x23, 0x07,
}

var pyramidDownsampleSPV = []byte{
	0x03, 0x02, 0x23, 0x07,
}

// shaderSource returns the embedded SPIR-V for a kernel. Placeholder
// modules share one byte slice today; once real shaders are compiled
// each kernel gets its own.
func shaderSource(name KernelName) []byte {
	switch name {
	case KernelMotionEstimate, KernelMotionRefine:
		return motionEstimateSPV
	case KernelInterpolate:
		return interpolateSPV
	default:
		return pyramidDownsampleSPV
	}
}
