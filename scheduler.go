// scheduler.go - presentation pacing, phase computation and adaptive delay.
//
// The pacing loop's shape follows video_compositor.go's refreshLoop,
// with ctx cancellation in place of its done channel and a Clock.Sleep
// of a variable, rate-selected delay in place of its fixed 60Hz
// ticker; the loop body adds the phase/alpha bookkeeping that
// refreshLoop has no analogue for.

package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TargetRateMode selects how the scheduler picks its output rate,
// spec §4.5.
type TargetRateMode int

const (
	// RateMonitorSync locks output to the display's refresh rate.
	RateMonitorSync TargetRateMode = iota
	// RateMultiplier targets N times the measured capture rate.
	RateMultiplier
)

const (
	defaultJitterSuppression = 0.2
	subThirtyFPSInterval     = 1.0 / 30.0
	adaptiveDelayGain        = 0.35
	adaptiveDelayClampFactor = 3
)

// Scheduler owns pacing, alpha computation, and adaptive delay, spec §4.5.
type Scheduler struct {
	clock Clock
	log   *zap.SugaredLogger

	mode       TargetRateMode
	multiplier int
	monitorHz  int

	unstableHeuristic  bool
	bufferCount        int
	jitterSuppression  float64 // spec §6 "jitter suppression coefficient", 0-1
	forceInterpolation bool    // spec §6 "force interpolation"

	targetQueueDepth int     // spec §6 "target queue depth", 2-12
	adaptiveDelayOn  bool
	delayScale       float64 // spec §6 "delay scale", >= 0.25

	state SchedulerClockState
}

func NewScheduler(clock Clock, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		clock:             clock,
		log:               log,
		mode:              RateMultiplier,
		multiplier:        2,
		monitorHz:         60,
		jitterSuppression: defaultJitterSuppression,
		targetQueueDepth:  3,
		adaptiveDelayOn:   true,
		delayScale:        1,
	}
}

// SetDelayScale adjusts spec §6's "delay scale" multiplier applied to
// the target interval AdaptiveDelay starts from (>= 0.25), before the
// queue-depth adjustment is added: a host can use this to bias pacing
// toward lower latency (scale < 1) or smoother presentation (scale > 1).
func (s *Scheduler) SetDelayScale(scale float64) {
	if scale < 0.25 {
		scale = 0.25
	}
	s.delayScale = scale
}

func (s *Scheduler) SetTargetRate(mode TargetRateMode, multiplierOrHz int) {
	s.mode = mode
	switch mode {
	case RateMonitorSync:
		s.monitorHz = multiplierOrHz
	case RateMultiplier:
		s.multiplier = multiplierOrHz
	}
}

func (s *Scheduler) SetUnstableHeuristic(enabled bool) { s.unstableHeuristic = enabled }
func (s *Scheduler) SetBufferCount(n int)              { s.bufferCount = n }

// SetJitterSuppression adjusts spec §6's jitter-suppression
// coefficient (0-1): the fraction of the mean capture interval a
// tick's actual interval may drift by before UpdatePhase starts
// trusting the actual interval over the running mean.
func (s *Scheduler) SetJitterSuppression(coeff float64) {
	s.jitterSuppression = clampF64(coeff, 0, 1)
}

// SetForceInterpolation pins UpdatePhase to the mean capture interval
// regardless of jitter, spec §6 "force interpolation": useful when the
// source's reported timestamps are known to be untrustworthy.
func (s *Scheduler) SetForceInterpolation(force bool) { s.forceInterpolation = force }

// SetTargetQueueDepth adjusts AdaptiveDelay's setpoint, spec §6
// "target queue depth" (2-12).
func (s *Scheduler) SetTargetQueueDepth(depth int) {
	if depth < 2 {
		depth = 2
	}
	if depth > 12 {
		depth = 12
	}
	s.targetQueueDepth = depth
}

// SetAdaptiveDelayEnabled toggles AdaptiveDelay's queue-depth feedback
// term, spec §6 "adaptive delay enable".
func (s *Scheduler) SetAdaptiveDelayEnabled(enabled bool) { s.adaptiveDelayOn = enabled }

// targetIntervalSeconds returns the output frame period under the
// current rate mode.
func (s *Scheduler) targetIntervalSeconds(measuredCaptureInterval float64) float64 {
	switch s.mode {
	case RateMonitorSync:
		return 1.0 / float64(s.monitorHz)
	default:
		if measuredCaptureInterval <= 0 {
			return 1.0 / 60.0
		}
		return measuredCaptureInterval / float64(s.multiplier)
	}
}

// UpdatePhase computes this tick's presentation phase alpha given the
// current pair's capture timestamps, the engine clock's current time,
// and the queue's running mean capture interval.
//
// Spec §4.5's use_interval selection: a sub-30fps source or an
// explicit force-interpolation setting always paces against the mean
// interval (a single slow or glitchy capture shouldn't set the pace);
// otherwise the actual pair span is compared against the mean by its
// relative error, and trusted outright once that error exceeds twice
// the jitter-suppression coefficient, blended linearly in between, and
// locked to the mean when within the coefficient's own band.
func (s *Scheduler) UpdatePhase(pairStart, pairEnd time.Time, meanInterval float64) float32 {
	s.state.PairStartTime, s.state.PairEndTime = pairStart, pairEnd
	actual := pairEnd.Sub(pairStart).Seconds()
	if actual <= 0 {
		s.state.Alpha = 0
		s.state.QuantizedAlpha = 0
		return 0
	}
	if meanInterval <= 0 {
		meanInterval = actual
	}

	useInterval := s.selectUseInterval(actual, meanInterval)

	now := s.clock.Now()
	raw := now.Sub(pairStart).Seconds() / useInterval
	if raw < 0 {
		raw = 0
	}
	if raw > 1 {
		raw = 1
	}
	s.state.Alpha = float32(raw)

	if s.mode == RateMultiplier && s.multiplier > 0 {
		s.state.QuantizedAlpha = quantizeAlpha(s.state.Alpha, s.multiplier)
	} else {
		s.state.QuantizedAlpha = s.state.Alpha
	}
	return s.state.QuantizedAlpha
}

// selectUseInterval implements spec §4.5's use_interval decision tree.
func (s *Scheduler) selectUseInterval(actual, meanInterval float64) float64 {
	if meanInterval >= subThirtyFPSInterval || s.forceInterpolation {
		return meanInterval
	}
	errorRatio := absF64(actual-meanInterval) / meanInterval
	switch {
	case errorRatio <= s.jitterSuppression:
		return meanInterval
	case errorRatio < 2*s.jitterSuppression:
		t := (errorRatio - s.jitterSuppression) / s.jitterSuppression
		return meanInterval + t*(actual-meanInterval)
	default:
		return actual
	}
}

func absF64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// quantizeAlpha rounds alpha to the nearest multiple of 1/multiplier,
// clamped to [0, 1], spec §4.5: a fixed 2x multiplier yields one of
// 0, 0.5 and 1, a 3x multiplier one of 0, 1/3, 2/3 and 1.
func quantizeAlpha(alpha float32, multiplier int) float32 {
	if multiplier <= 1 {
		return alpha
	}
	step := 1.0 / float32(multiplier)
	steps := alpha / step
	rounded := float32(int(steps+0.5)) * step
	if rounded > 1 {
		rounded = 1
	}
	if rounded < 0 {
		rounded = 0
	}
	return rounded
}

// AdaptiveDelay returns how long the next tick should wait before
// sampling the frame queue. With AdaptiveDelayEnabled it implements
// spec §4.5's queue-depth feedback: the target interval (scaled by the
// delay scale) is nudged by 0.35 mean capture intervals per frame the
// queue sits from its setpoint depth, clamped to +/-3 mean intervals
// so a transient queue spike cannot stall presentation. With it
// disabled it falls back to the plain target interval, padded by twice
// jitterStdDev when UnstableHeuristic is set.
func (s *Scheduler) AdaptiveDelay(measuredCaptureInterval, jitterStdDev float64, queueDepth int) time.Duration {
	base := s.targetIntervalSeconds(measuredCaptureInterval) * s.delayScale

	if s.adaptiveDelayOn {
		mean := measuredCaptureInterval
		if mean < 0 {
			mean = 0
		}
		adjust := (float64(s.targetQueueDepth) - float64(queueDepth)) * adaptiveDelayGain * mean
		clampBound := adaptiveDelayClampFactor * mean
		adjust = clampF64(adjust, -clampBound, clampBound)
		delay := base + adjust
		if delay < 0 {
			delay = 0
		}
		s.state.AdaptiveDelay = time.Duration(delay * float64(time.Second))
		return s.state.AdaptiveDelay
	}

	if !s.unstableHeuristic {
		s.state.AdaptiveDelay = time.Duration(base * float64(time.Second))
		return s.state.AdaptiveDelay
	}
	padded := base + jitterStdDev*2
	s.state.AdaptiveDelay = time.Duration(padded * float64(time.Second))
	return s.state.AdaptiveDelay
}

// ResetPairIdentity forwards to the clock state, called whenever the
// frame queue is cleared.
func (s *Scheduler) ResetPairIdentity() {
	s.state.ResetPairIdentity()
}

// Pace runs the presentation loop, invoking tick once per output
// frame until ctx is cancelled. tick receives the current quantized
// alpha. queueDepth reports the frame queue's current length, fed to
// AdaptiveDelay so a host that drives its own loop through Pace still
// gets spec §4.5's queue-depth-aware pacing rather than a fixed sleep.
func (s *Scheduler) Pace(ctx context.Context, measuredCaptureInterval func() float64, queueDepth func() int, tick func(alpha float32)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		interval := measuredCaptureInterval()
		delay := s.AdaptiveDelay(interval, 0, queueDepth())
		s.clock.Sleep(delay)
		tick(s.state.QuantizedAlpha)
	}
}
