// main.go - the demo command, wiring a headless synthetic capture
// source through the engine and printing a live observables line.
//
// Upgraded from the teacher's bare flag-based CLI tools (see
// cpu_ie32.go's sibling cmd/ie32to64, a plain flag.Parse() tool) to
// cobra, since a real multi-flag demo tool is exactly cobra's niche
// and the retrieved pack shows it used for this purpose.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		width, height int
		fps           int
		multiplier    int
		pattern       string
		logPath       string
		duration      time.Duration
		preview       bool
	)

	cmd := &cobra.Command{
		Use:   "framegen-demo",
		Short: "Drive the frame generation engine against a synthetic capture source",
		RunE: func(cmd *cobra.Command, args []string) error {
			pat := PatternRigidPan
			switch pattern {
			case "static":
				pat = PatternStaticBlack
			case "text":
				pat = PatternTextOverPan
			}

			capture := NewHeadlessCaptureSource(width, height, fps, pat)
			engine := NewEngine(capture, logPath)
			engine.SetTargetRate(RateMultiplier, multiplier)

			ctx, cancel := context.WithTimeout(context.Background(), duration)
			defer cancel()
			sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()

			if err := engine.Initialize(sigCtx, width, height); err != nil {
				return err
			}
			defer engine.Shutdown()

			if preview {
				go func() {
					_ = runLoop(sigCtx, engine)
				}()
				return runPreview(sigCtx, engine, width, height)
			}
			return runLoop(sigCtx, engine)
		},
	}

	cmd.Flags().IntVar(&width, "width", 640, "capture surface width")
	cmd.Flags().IntVar(&height, "height", 480, "capture surface height")
	cmd.Flags().IntVar(&fps, "capture-fps", 60, "synthetic capture rate")
	cmd.Flags().IntVar(&multiplier, "multiplier", 2, "output-to-capture frame rate multiplier")
	cmd.Flags().StringVar(&pattern, "pattern", "pan", "synthetic content: static, pan, text")
	cmd.Flags().StringVar(&logPath, "log", "framegen-demo.log", "rotating log file path")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run before exiting")
	cmd.Flags().BoolVar(&preview, "preview", false, "open an ebiten window showing the interpolated output")

	return cmd
}

// runLoop drives Execute once per output tick and prints a
// terminal status line, in the spirit of video_backend_ebiten.go's
// WaitForVSync-driven FPS readout but to a plain terminal instead of a
// GUI window.
func runLoop(ctx context.Context, engine *Engine) error {
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-ticker.C:
			if err := engine.Execute(ctx); err != nil {
				if IsFatal(err) {
					return err
				}
				continue
			}
			printStatus(engine.Observe(), isTTY)
		}
	}
}

func printStatus(obs Observables, isTTY bool) {
	line := fmt.Sprintf("capture=%.1ffps present=%.1ffps alpha=%.3f queue=%d unstable=%v",
		obs.CaptureFPS, obs.PresentFPS, obs.Alpha, obs.QueueDepth, obs.UnstableFlag)
	if isTTY {
		fmt.Printf("\r%s", line)
		return
	}
	fmt.Println(line)
}
