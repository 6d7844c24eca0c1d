// config.go - the engine's single runtime configuration struct.
//
// Persisted state is explicitly out of scope (spec §6: "Persisted
// state: None"); EngineConfig exists only in memory and every setter
// clamps rather than rejects out-of-range input, the same contract
// video_backend_ebiten.go's SetDisplayConfig/ClampScale enforce for
// display geometry.

package main

// EngineConfig bundles every tunable the engine exposes via its
// setters (spec §6).
type EngineConfig struct {
	Model             MotionModel
	Quality           InterpolationQuality
	MinimalPipeline   bool
	TargetRateMode    TargetRateMode
	Multiplier        int
	MonitorHz         int
	UnstableHeuristic bool
	// BufferCount is the capture backend's own internal buffering depth.
	// It is a real knob a host application wires to its capture
	// backend; this engine stores and reports it but does not act on it,
	// since the three real capture backends are out of core scope
	// (spec §1) and the headless backend has nothing to buffer.
	BufferCount int
	NeverDrop   bool
	Debug       DebugMode

	// Interpolator knobs, spec §6.
	ConfidencePower     float32
	TextProtectStrength float32
	EdgeScale           float32
	EdgeThreshold       float32

	// Temporal stabilization, spec §6.
	TemporalStabilization bool
	Neighborhood          int

	// Scheduler knobs, spec §6.
	JitterSuppression float64
	ForceInterpolation bool
	TargetQueueDepth   int
	AdaptiveDelayOn    bool
	DelayScale         float64

	// MotionPrediction toggles speculative forward-prediction of the
	// search origin from the previous tick's field (spec §6). Core
	// motion estimation already seeds its coarsest level from the prior
	// tick's small-resolution field (SoftwareMotionEstimator.prevSmall);
	// this flag gates that seeding rather than an entirely separate path.
	MotionPrediction bool

	MaxQueueSize    int
	LimitOutputFPS  int // 0 = unlimited
	Vsync           bool
}

// DefaultEngineConfig matches spec §4.5's default multiplier target
// and spec §4.2's default motion model.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Model:             ModelBalanced,
		Quality:           QualityHigh,
		MinimalPipeline:   false,
		TargetRateMode:    RateMultiplier,
		Multiplier:        2,
		MonitorHz:         60,
		UnstableHeuristic: false,
		BufferCount:       3,
		NeverDrop:         false,
		Debug:             DebugNone,

		ConfidencePower:     1,
		TextProtectStrength: 0.5,
		EdgeScale:           1,
		EdgeThreshold:       0.1,

		TemporalStabilization: true,
		Neighborhood:          defaultNeighborhood,

		JitterSuppression:  defaultJitterSuppression,
		ForceInterpolation: false,
		TargetQueueDepth:   3,
		AdaptiveDelayOn:    true,
		DelayScale:         1,

		MotionPrediction: true,

		MaxQueueSize:   frameQueueCapacity,
		LimitOutputFPS: 0,
		Vsync:          true,
	}
}

// clampMultiplier bounds the multiplier to spec §6's [1,20] range
// rather than rejecting an out-of-range caller value, per the ambient
// stack's clamp-don't-reject convention.
func clampMultiplier(n int) int {
	if n < 1 {
		return 1
	}
	if n > 20 {
		return 20
	}
	return n
}

func clampEdgeScale(v float32) float32 {
	if v < 0.5 {
		return 0.5
	}
	if v > 20 {
		return 20
	}
	return v
}

func clampConfidencePower(v float32) float32 {
	if v < 0.25 {
		return 0.25
	}
	if v > 4 {
		return 4
	}
	return v
}

func clampTextProtectStrength(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampEdgeThreshold(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 0.2 {
		return 0.2
	}
	return v
}

func clampMaxQueueSize(n int) int {
	if n < 2 {
		return 2
	}
	if n > frameQueueCapacity {
		return frameQueueCapacity
	}
	return n
}

func clampMonitorHz(hz int) int {
	if hz < 24 {
		return 24
	}
	if hz > 360 {
		return 360
	}
	return hz
}

func clampBufferCount(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
