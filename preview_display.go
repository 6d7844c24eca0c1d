// preview_display.go - optional ebiten preview window for the demo
// command.
//
// Grounded in video_backend_ebiten.go's EbitenOutput: an
// ebiten.Game implementation that owns a mutex-guarded frame buffer,
// blits it into an ebiten.Image in Draw, and reports Layout as a
// fixed size. Generalized from "the video output backend itself" to
// "a pull-based viewer of whatever Engine.Blit() currently holds",
// since this engine's own output path is the triple-buffered RGBA
// image, not a backend UpdateFrame() push.

package main

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
)

// previewWindow polls an *Engine's triple buffer once per ebiten tick
// and presents it in a resizable window, entirely optional: the demo
// runs headless (no window, no GPU display surface) unless --preview
// is passed.
type previewWindow struct {
	ctx    context.Context
	engine *Engine

	mu    sync.RWMutex
	frame *image.RGBA
	img   *ebiten.Image

	width, height int
}

func newPreviewWindow(ctx context.Context, engine *Engine, width, height int) *previewWindow {
	return &previewWindow{ctx: ctx, engine: engine, width: width, height: height}
}

func (p *previewWindow) Update() error {
	select {
	case <-p.ctx.Done():
		return ebiten.Termination
	default:
	}
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	p.mu.Lock()
	p.frame = p.engine.Blit()
	p.mu.Unlock()
	return nil
}

func (p *previewWindow) Draw(screen *ebiten.Image) {
	p.mu.RLock()
	frame := p.frame
	p.mu.RUnlock()
	if frame == nil {
		return
	}
	if p.img == nil {
		p.img = ebiten.NewImage(p.width, p.height)
	}
	p.img.WritePixels(frame.Pix)
	screen.DrawImage(p.img, nil)

	obs := p.engine.Observe()
	ebiten.SetWindowTitle(fmt.Sprintf("framegen-demo  alpha=%.2f  queue=%d", obs.Alpha, obs.QueueDepth))
}

func (p *previewWindow) Layout(outsideWidth, outsideHeight int) (int, int) {
	return p.width, p.height
}

// runPreview blocks until the window is closed or ctx is cancelled;
// it does not itself call Engine.Execute, the caller is expected to run
// that on its own ticker goroutine concurrently (ebiten.RunGame must
// own the main OS thread).
func runPreview(ctx context.Context, engine *Engine, width, height int) error {
	ebiten.SetWindowSize(width, height)
	ebiten.SetWindowTitle("framegen-demo")
	ebiten.SetWindowResizable(true)
	return ebiten.RunGame(newPreviewWindow(ctx, engine, width, height))
}
