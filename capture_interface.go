// capture_interface.go - the capture backend contract.
//
// Generalizes video_interface.go's VideoSource/VideoOutput split: a
// CaptureSource is this engine's analogue of a VideoSource, but
// instead of feeding an emulated chip it feeds the frame queue with
// frames pulled from an external desktop/application surface.

package main

import (
	"context"
	"time"
)

// CaptureBackendKind is the sum type over capture backends. Only
// BackendHeadless is implemented in this repository; the other two
// name real-world collaborators that are out of core scope per the
// product specification (a window compositor hook, a desktop
// duplication API, and an injected present hook all live outside this
// process and are wired in by the host application).
type CaptureBackendKind int

const (
	BackendHeadless CaptureBackendKind = iota
	BackendCompositor
	BackendDuplication
	BackendHook
)

func (k CaptureBackendKind) String() string {
	switch k {
	case BackendHeadless:
		return "headless"
	case BackendCompositor:
		return "compositor"
	case BackendDuplication:
		return "duplication"
	case BackendHook:
		return "hook"
	default:
		return "unknown"
	}
}

// CapturedFrame is what a CaptureSource hands to the frame queue: raw
// pixels plus the timestamp the backend observed at acquisition.
type CapturedFrame struct {
	Pixels      []byte // BGRA8, row-major, no padding
	Width       int
	Height      int
	CaptureTime time.Time
}

// CaptureSource is the trait every capture backend implements,
// mirroring video_interface.go's VideoSource shape (Start/Stop plus a
// pull accessor) rather than a push callback, so the frame queue
// controls its own drain rate.
type CaptureSource interface {
	Start(ctx context.Context) error
	Stop() error
	// AcquireLatest returns the most recently captured frame, or ok=false
	// if none is available yet. It must not block.
	AcquireLatest() (frame CapturedFrame, ok bool)
	IsCapturing() bool
	Kind() CaptureBackendKind
}
