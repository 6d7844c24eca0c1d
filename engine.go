// engine.go - the façade wiring capture, motion estimation,
// post-processing, interpolation and scheduling into one tick.
//
// Grounded in video_voodoo.go's VoodooEngine: a struct owning a
// pluggable backend plus a triple-buffered lock-free output handoff
// (frameBufs[3]/sharedIdx/readingIdx/writeIdx), generalized here from
// "rasterized 3D frame" to "interpolated output frame".

package main

import (
	"context"
	"image"
	"sync/atomic"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Engine is the top-level object a host application owns: one per
// captured surface, spec §6.
type Engine struct {
	log *zap.SugaredLogger

	capture CaptureSource
	device  ComputeDevice

	queue       *FrameQueue
	estimator   *MotionEstimator
	postProcess *MotionPostProcessor
	interp      *Interpolator
	scheduler   *Scheduler

	config EngineConfig

	width, height int

	// Triple-buffered output, exactly VoodooEngine's frameBufs pattern:
	// the producer (tick) always writes to the slot nobody else holds,
	// then atomically publishes it as "shared"; blit() readers grab
	// whichever slot is currently shared without ever blocking the
	// producer.
	outputBufs  [3]*image.RGBA
	sharedIdx   int32
	readingIdx  int32
	writeIdx    int32

	observables Observables
}

// Observables is the read-only telemetry surface spec §6 names.
type Observables struct {
	CaptureFPS   float64
	PresentFPS   float64
	Alpha        float32
	QueueDepth   int
	UnstableFlag bool
}

// NewEngine constructs the engine with a logger backed by a rotating
// file writer, following ausocean/av's zap+lumberjack wiring.
func NewEngine(capture CaptureSource, logPath string) *Engine {
	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    50, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
		Compress:   true,
	}
	logger := newZapLogger(writer)

	dev := NewComputeDevice(logger)
	cfg := DefaultEngineConfig()
	policy := DropOldest
	if cfg.NeverDrop {
		policy = NeverDrop
	}
	return &Engine{
		log:         logger,
		capture:     capture,
		device:      dev,
		queue:       NewFrameQueue(policy),
		estimator:   NewMotionEstimator(dev, logger, ModelBalanced),
		postProcess: NewMotionPostProcessor(),
		interp:      NewInterpolator(QualityHigh),
		scheduler:   NewScheduler(SystemClock{}, logger),
		config:      cfg,
		sharedIdx:   1,
		readingIdx:  2,
		writeIdx:    0,
	}
}

// SetNeverDrop toggles spec §6's frame-queue drop policy: when enabled,
// a full queue stalls the capture-drain push instead of discarding the
// oldest frame. The new policy is applied to the queue immediately.
func (e *Engine) SetNeverDrop(enabled bool) {
	e.config.NeverDrop = enabled
	policy := DropOldest
	if enabled {
		policy = NeverDrop
	}
	e.queue.SetPolicy(policy)
}

// Initialize brings up the GPU device and starts the capture backend.
func (e *Engine) Initialize(ctx context.Context, width, height int) error {
	e.width, e.height = width, height
	if err := e.device.Init(width, height); err != nil {
		return wrapf(KindInitialization, "engine.Initialize", err, "compute device init")
	}
	for i := range e.outputBufs {
		e.outputBufs[i] = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	if err := e.capture.Start(ctx); err != nil {
		return wrapf(KindInitialization, "engine.Initialize", err, "start capture backend %s", e.capture.Kind())
	}
	e.log.Infow("engine initialized", "width", width, "height", height, "capture_backend", e.capture.Kind().String())
	return nil
}

// Shutdown stops capture and releases GPU resources.
func (e *Engine) Shutdown() error {
	if err := e.capture.Stop(); err != nil {
		e.log.Warnw("capture stop returned an error", "error", err)
	}
	e.device.Destroy()
	return nil
}

// Resize recreates GPU textures and invalidates temporal history, the
// compute-pipeline analogue of VoodooEngine clearing pipelineDirty on
// a dimension change.
func (e *Engine) Resize(width, height int) error {
	if err := e.device.Resize(width, height); err != nil {
		return wrapf(KindResourceAllocation, "engine.Resize", err, "resize compute device")
	}
	e.width, e.height = width, height
	for i := range e.outputBufs {
		e.outputBufs[i] = image.NewRGBA(image.Rect(0, 0, width, height))
	}
	e.postProcess.InvalidateHistory()
	e.queue.Clear()
	e.scheduler.ResetPairIdentity()
	return nil
}

func (e *Engine) SetModel(m MotionModel) {
	e.config.Model = m
	e.estimator.SetModel(m)
}

func (e *Engine) SetQuality(q InterpolationQuality) {
	e.config.Quality = q
	e.interp.SetQuality(q)
}

func (e *Engine) SetMinimalPipeline(enabled bool) {
	e.config.MinimalPipeline = enabled
	e.estimator.SetMinimalPipeline(enabled)
}

func (e *Engine) SetTargetRate(mode TargetRateMode, value int) {
	if mode == RateMonitorSync {
		value = clampMonitorHz(value)
	} else {
		value = clampMultiplier(value)
	}
	e.config.TargetRateMode = mode
	e.scheduler.SetTargetRate(mode, value)
}

func (e *Engine) SetUnstableHeuristic(enabled bool) {
	e.config.UnstableHeuristic = enabled
	e.scheduler.SetUnstableHeuristic(enabled)
}

func (e *Engine) SetBufferCount(n int) {
	e.config.BufferCount = clampBufferCount(n)
	e.scheduler.SetBufferCount(e.config.BufferCount)
}

func (e *Engine) SetDebugMode(mode DebugMode) { e.config.Debug = mode }

func (e *Engine) SetConfidencePower(v float32) {
	e.config.ConfidencePower = clampConfidencePower(v)
	e.interp.SetConfidencePower(e.config.ConfidencePower)
}

func (e *Engine) SetTextProtectStrength(v float32) {
	e.config.TextProtectStrength = clampTextProtectStrength(v)
	e.interp.SetTextProtectStrength(e.config.TextProtectStrength)
}

func (e *Engine) SetEdgeScale(v float32) { e.config.EdgeScale = clampEdgeScale(v) }

func (e *Engine) SetEdgeThreshold(v float32) { e.config.EdgeThreshold = clampEdgeThreshold(v) }

// SetTemporalStabilization toggles spec §6's post-processing stage
// entirely: disabled, Execute feeds the raw estimator field straight
// to the interpolator.
func (e *Engine) SetTemporalStabilization(enabled bool) {
	e.config.TemporalStabilization = enabled
	if !enabled {
		e.postProcess.InvalidateHistory()
	}
}

func (e *Engine) SetNeighborhood(k int) {
	e.postProcess.SetNeighborhood(k)
	e.config.Neighborhood = e.postProcess.neighborhood
}

func (e *Engine) SetMotionPrediction(enabled bool) {
	e.config.MotionPrediction = enabled
	e.estimator.SetMotionPrediction(enabled)
}

// SetJitterSuppression adjusts spec §6's single jitter-suppression
// coefficient, shared by the frame queue's smoothed-timestamp filter
// (spec §4.1) and the scheduler's use_interval selection (spec §4.5).
func (e *Engine) SetJitterSuppression(coeff float64) {
	e.config.JitterSuppression = coeff
	e.queue.SetJitterSuppression(coeff)
	e.scheduler.SetJitterSuppression(coeff)
}

func (e *Engine) SetForceInterpolation(force bool) {
	e.config.ForceInterpolation = force
	e.scheduler.SetForceInterpolation(force)
}

func (e *Engine) SetTargetQueueDepth(depth int) {
	e.scheduler.SetTargetQueueDepth(depth)
	e.config.TargetQueueDepth = depth
}

func (e *Engine) SetAdaptiveDelayEnabled(enabled bool) {
	e.config.AdaptiveDelayOn = enabled
	e.scheduler.SetAdaptiveDelayEnabled(enabled)
}

func (e *Engine) SetDelayScale(scale float64) {
	e.scheduler.SetDelayScale(scale)
	e.config.DelayScale = scale
}

func (e *Engine) SetMaxQueueSize(n int) { e.config.MaxQueueSize = clampMaxQueueSize(n) }

func (e *Engine) SetLimitOutputFPS(fps int) { e.config.LimitOutputFPS = fps }

func (e *Engine) SetVsync(enabled bool) { e.config.Vsync = enabled }

func (e *Engine) Observe() Observables {
	return e.observables
}

// Execute runs one full tick: drain capture, estimate motion,
// post-process, interpolate at the scheduler's current phase, and
// publish the result to the triple buffer for blit() to pick up.
func (e *Engine) Execute(ctx context.Context) error {
	if frame, ok := e.capture.AcquireLatest(); ok {
		texture, err := e.device.CreateTexture(frame.Width, frame.Height, FormatColorBGRA8)
		if err != nil {
			return wrapf(KindResourceAllocation, "engine.Execute", err, "allocate capture texture")
		}
		if err := e.device.UploadTexture(texture, frame.Pixels); err != nil {
			return wrapf(KindResourceAllocation, "engine.Execute", err, "upload capture texture")
		}
		e.queue.Push(texture, frame.Width, frame.Height, frame.CaptureTime)
	}

	prevSlot, currSlot, ok := e.queue.PeekPair()
	if !ok {
		return nil
	}

	meanInterval := e.queue.MeanInterval()
	alpha := e.scheduler.UpdatePhase(prevSlot.SmoothedTime, currSlot.SmoothedTime, meanInterval)

	field, err := e.estimator.Estimate(ctx, prevSlot.Texture, currSlot.Texture, e.width, e.height)
	if err != nil {
		return err
	}

	prevPixels, err := e.device.ReadTexture(prevSlot.Texture)
	if err != nil {
		return wrapf(KindResourceAllocation, "engine.Execute", err, "read prev texture")
	}
	currPixels, err := e.device.ReadTexture(currSlot.Texture)
	if err != nil {
		return wrapf(KindResourceAllocation, "engine.Execute", err, "read curr texture")
	}
	prevImg := bgraToRGBA(prevPixels, prevSlot.Width, prevSlot.Height)
	currImg := bgraToRGBA(currPixels, currSlot.Width, currSlot.Height)

	stable := field
	if e.config.TemporalStabilization {
		luma := toLuma(currPixels, currSlot.Width, currSlot.Height)
		fieldLuma, lumaW, lumaH := downsamplePlane(luma, currSlot.Width, currSlot.Height, currSlot.Width/maxInt(field.Width, 1))
		smoothed := e.postProcess.Smooth(field, fieldLuma, lumaW, lumaH, e.config.EdgeScale)
		stable = e.postProcess.Stabilize(smoothed)
	}

	out := e.interp.Interpolate(prevImg, currImg, stable, alpha)
	if e.config.Debug != DebugNone {
		ApplyDebugOverlay(e.config.Debug, out, prevImg, currImg, stable)
	}

	e.publish(out)

	e.observables = Observables{
		CaptureFPS:   1.0 / maxF(e.queue.MeanInterval(), 1e-6),
		PresentFPS:   1.0 / maxF(e.scheduler.targetIntervalSeconds(e.queue.MeanInterval()), 1e-6),
		Alpha:        alpha,
		QueueDepth:   e.queue.Len(),
		UnstableFlag: e.config.UnstableHeuristic,
	}

	if e.queue.Len() > 1 {
		e.queue.PopFront()
	}
	return nil
}

// publish writes out into the currently unshared buffer and atomically
// swaps it in as shared, mirroring VoodooEngine's triple-buffer swap
// protocol exactly (producer index, shared index, reader index, none
// ever colliding).
func (e *Engine) publish(out *image.RGBA) {
	w := atomic.LoadInt32(&e.writeIdx)
	copy(e.outputBufs[w].Pix, out.Pix)
	newShared := atomic.SwapInt32(&e.sharedIdx, w)
	atomic.StoreInt32(&e.writeIdx, newShared)
}

// Blit returns the most recently published output frame without
// blocking the producer, the consumer side of the triple-buffer swap.
func (e *Engine) Blit() *image.RGBA {
	r := atomic.SwapInt32(&e.readingIdx, atomic.LoadInt32(&e.sharedIdx))
	atomic.StoreInt32(&e.sharedIdx, r)
	return e.outputBufs[atomic.LoadInt32(&e.readingIdx)]
}

func bgraToRGBA(pixels []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i+3 < len(pixels) && i+3 < len(img.Pix); i += 4 {
		img.Pix[i+0] = pixels[i+2]
		img.Pix[i+1] = pixels[i+1]
		img.Pix[i+2] = pixels[i+0]
		img.Pix[i+3] = pixels[i+3]
	}
	return img
}

func maxF(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
