// debug_visualize.go - debug overlay modes, spec §6 debug().
//
// Adapted from debug_overlay.go's pixel-buffer drawing convention
// (drawGlyph/colorFromPacked blitting directly into an RGBA frame)
// but repurposed from glyph rendering to motion-field and
// confidence-map visualization.

package main

import (
	"image"
	"image/color"
	"math"
)

// DebugMode selects what blit() overlays on top of (or instead of)
// the interpolated frame, spec §6.
type DebugMode int

const (
	DebugNone DebugMode = iota
	DebugMotionFlow
	DebugConfidenceHeatmap
	DebugMotionNeedles
	DebugResidualError
	DebugSplitScreen
	DebugOcclusion
	DebugGhostMask
	DebugStructureGradient
)

// ApplyDebugOverlay mutates frame in place according to mode, using
// field (motion-sample scale) and, where relevant, prev/curr as the
// source frames.
func ApplyDebugOverlay(mode DebugMode, frame, prev, curr *image.RGBA, field *MotionField) {
	switch mode {
	case DebugNone:
		return
	case DebugMotionFlow:
		paintMotionFlow(frame, field)
	case DebugConfidenceHeatmap:
		paintConfidenceHeatmap(frame, field)
	case DebugMotionNeedles:
		paintMotionNeedles(frame, field)
	case DebugResidualError:
		paintResidualError(frame, prev, curr)
	case DebugSplitScreen:
		paintSplitScreen(frame, prev, curr)
	case DebugOcclusion, DebugGhostMask:
		paintLowConfidenceMask(frame, field)
	case DebugStructureGradient:
		paintStructureGradient(frame, curr)
	}
}

func sampleScale(frame *image.RGBA, field *MotionField) (float64, float64) {
	b := frame.Bounds()
	return float64(b.Dx()) / float64(field.Width), float64(b.Dy()) / float64(field.Height)
}

// paintMotionFlow colors each motion-sample block by displacement
// direction (hue) and magnitude (value), a coarse optical-flow-style view.
func paintMotionFlow(frame *image.RGBA, field *MotionField) {
	sx, sy := sampleScale(frame, field)
	for by := 0; by < field.Height; by++ {
		for bx := 0; bx < field.Width; bx++ {
			v := field.At(bx, by)
			// scale to full-resolution pixels, spec glossary
			// "motion-sample scale", same convention interpolator.go uses.
			c := flowColor(v.DX*float32(sx), v.DY*float32(sy))
			fillBlock(frame, int(float64(bx)*sx), int(float64(by)*sy), int(sx), int(sy), c)
		}
	}
}

func flowColor(dx, dy float32) color.RGBA {
	mag := math.Hypot(float64(dx), float64(dy))
	angle := math.Atan2(float64(dy), float64(dx))
	norm := clampF64(mag/16, 0, 1)
	r := uint8(128 + 127*math.Cos(angle)*norm)
	g := uint8(128 + 127*math.Sin(angle)*norm)
	b := uint8(64 + 64*norm)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func paintConfidenceHeatmap(frame *image.RGBA, field *MotionField) {
	sx, sy := sampleScale(frame, field)
	for by := 0; by < field.Height; by++ {
		for bx := 0; bx < field.Width; bx++ {
			v := field.At(bx, by)
			// red = low confidence, green = high confidence
			r := uint8(255 * (1 - v.Confidence))
			g := uint8(255 * v.Confidence)
			fillBlock(frame, int(float64(bx)*sx), int(float64(by)*sy), int(sx), int(sy), color.RGBA{R: r, G: g, B: 0, A: 255})
		}
	}
}

// paintMotionNeedles draws a short line segment per motion sample
// pointing in the displacement direction, the classic needle-diagram view.
func paintMotionNeedles(frame *image.RGBA, field *MotionField) {
	sx, sy := sampleScale(frame, field)
	for by := 0; by < field.Height; by++ {
		for bx := 0; bx < field.Width; bx++ {
			v := field.At(bx, by)
			cx := int(float64(bx)*sx + sx/2)
			cy := int(float64(by)*sy + sy/2)
			// scale to full-resolution pixels before drawing, same
			// motion-sample-scale convention as paintMotionFlow.
			ex := cx + int(float64(v.DX)*sx*3)
			ey := cy + int(float64(v.DY)*sy*3)
			drawLine(frame, cx, cy, ex, ey, color.RGBA{R: 255, G: 255, B: 0, A: 255})
		}
	}
}

func paintResidualError(frame, prev, curr *image.RGBA) {
	b := frame.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			p := prev.RGBAAt(x, y)
			c := curr.RGBAAt(x, y)
			diff := absDiff(p.R, c.R) + absDiff(p.G, c.G) + absDiff(p.B, c.B)
			v := uint8(clampInt(int(diff), 0, 255))
			frame.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func paintSplitScreen(frame, prev, curr *image.RGBA) {
	b := frame.Bounds()
	mid := b.Min.X + b.Dx()/2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < mid; x++ {
			frame.SetRGBA(x, y, prev.RGBAAt(x, y))
		}
		for x := mid; x < b.Max.X; x++ {
			frame.SetRGBA(x, y, curr.RGBAAt(x, y))
		}
	}
}

// paintLowConfidenceMask highlights motion-sample blocks below a
// confidence threshold, standing in for both the occlusion and
// ghost-mask debug modes: both surface "the interpolator doesn't
// trust this region", differing only in the product-facing label.
func paintLowConfidenceMask(frame *image.RGBA, field *MotionField) {
	sx, sy := sampleScale(frame, field)
	for by := 0; by < field.Height; by++ {
		for bx := 0; bx < field.Width; bx++ {
			v := field.At(bx, by)
			if v.Confidence < 0.3 {
				fillBlockAlpha(frame, int(float64(bx)*sx), int(float64(by)*sy), int(sx), int(sy), color.RGBA{R: 255, A: 255}, 0.5)
			}
		}
	}
}

func paintStructureGradient(frame, curr *image.RGBA) {
	b := curr.Bounds()
	for y := b.Min.Y + 1; y < b.Max.Y; y++ {
		for x := b.Min.X + 1; x < b.Max.X; x++ {
			c := curr.RGBAAt(x, y)
			left := curr.RGBAAt(x-1, y)
			up := curr.RGBAAt(x, y-1)
			gx := absDiff(c.R, left.R)
			gy := absDiff(c.R, up.R)
			v := uint8(clampInt(int(gx)+int(gy), 0, 255))
			frame.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
}

func fillBlock(img *image.RGBA, x0, y0, w, h int, c color.RGBA) {
	fillBlockAlpha(img, x0, y0, w, h, c, 1.0)
}

func fillBlockAlpha(img *image.RGBA, x0, y0, w, h int, c color.RGBA, alpha float32) {
	b := img.Bounds()
	for y := y0; y < y0+h && y < b.Max.Y; y++ {
		for x := x0; x < x0+w && x < b.Max.X; x++ {
			if x < b.Min.X || y < b.Min.Y {
				continue
			}
			if alpha >= 1 {
				img.SetRGBA(x, y, c)
				continue
			}
			existing := img.RGBAAt(x, y)
			img.SetRGBA(x, y, lerpColor(existing, c, alpha))
		}
	}
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := absInt(x1 - x0)
	dy := -absInt(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	b := img.Bounds()
	for {
		if x0 >= b.Min.X && x0 < b.Max.X && y0 >= b.Min.Y && y0 < b.Max.Y {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampF64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
