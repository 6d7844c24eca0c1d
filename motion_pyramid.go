// motion_pyramid.go - coarse-to-fine luma pyramid construction.
//
// Builds the three pyramid levels by bounded-parallel dispatch of the
// downsample kernel, generalizing video_compositor.go's blendFrame1to1
// WaitGroup fan-out to an errgroup so a failed dispatch aborts the
// remaining levels instead of silently continuing.

package main

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// buildLumaPyramid dispatches luma_downsample three times (full->half,
// half->small, small->tiny) for a single frame's color texture,
// allocating the pyramid's textures once and reusing them thereafter.
func buildLumaPyramid(ctx context.Context, dev ComputeDevice, color GPUTextureHandle, fullW, fullH int, pyr *LumaPyramid) error {
	if pyr.Half == invalidTexture {
		var err error
		pyr.HalfW, pyr.HalfH = fullW/2, fullH/2
		pyr.SmallW, pyr.SmallH = pyr.HalfW/2, pyr.HalfH/2
		pyr.TinyW, pyr.TinyH = pyr.SmallW/2, pyr.SmallH/2
		if pyr.Half, err = dev.CreateTexture(pyr.HalfW, pyr.HalfH, FormatLumaR8); err != nil {
			return wrapf(KindResourceAllocation, "motion_pyramid.build", err, "alloc half level")
		}
		if pyr.Small, err = dev.CreateTexture(pyr.SmallW, pyr.SmallH, FormatLumaR8); err != nil {
			return wrapf(KindResourceAllocation, "motion_pyramid.build", err, "alloc small level")
		}
		if pyr.Tiny, err = dev.CreateTexture(pyr.TinyW, pyr.TinyH, FormatLumaR8); err != nil {
			return wrapf(KindResourceAllocation, "motion_pyramid.build", err, "alloc tiny level")
		}
	}

	// Each level depends on the previous one's output, so this is a
	// sequential chain, not an independent fan-out; the errgroup here
	// buys cancellation propagation (a failed dispatch stops the chain)
	// rather than concurrency, matching what the bounded-parallel note in
	// SPEC_FULL.md calls for when multiple frames' pyramids build at once
	// (see buildLumaPyramidsForPair).
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := dev.Dispatch(gctx, KernelLumaDownsample, nil, []GPUTextureHandle{color}, []GPUTextureHandle{pyr.Half}, uint32(pyr.HalfW), uint32(pyr.HalfH)); err != nil {
			return err
		}
		if err := dev.Dispatch(gctx, KernelLumaDownsample, nil, []GPUTextureHandle{pyr.Half}, []GPUTextureHandle{pyr.Small}, uint32(pyr.SmallW), uint32(pyr.SmallH)); err != nil {
			return err
		}
		return dev.Dispatch(gctx, KernelLumaDownsample, nil, []GPUTextureHandle{pyr.Small}, []GPUTextureHandle{pyr.Tiny}, uint32(pyr.TinyW), uint32(pyr.TinyH))
	})
	if err := g.Wait(); err != nil {
		return wrapf(KindShaderExecution, "motion_pyramid.build", err, "pyramid dispatch chain")
	}
	return nil
}

// buildLumaPyramidsForPair builds the previous and current frame's
// pyramids concurrently, since the two are independent: this is the
// bounded-parallel fan-out the motion estimator needs every tick.
func buildLumaPyramidsForPair(ctx context.Context, dev ComputeDevice, prevColor, currColor GPUTextureHandle, fullW, fullH int, prevPyr, currPyr *LumaPyramid) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return buildLumaPyramid(gctx, dev, prevColor, fullW, fullH, prevPyr) })
	g.Go(func() error { return buildLumaPyramid(gctx, dev, currColor, fullW, fullH, currPyr) })
	return g.Wait()
}
