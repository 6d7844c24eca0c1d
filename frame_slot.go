// frame_slot.go - the unit of storage the frame queue circulates.

package main

import "time"

// FrameSlot holds one captured frame and its timing metadata. The
// pipeline never copies pixel data between slots; GPU textures are
// referenced by handle and reused in place, the way voodoo_vulkan.go
// reuses its colorImage/colorImageView across frames instead of
// reallocating.
type FrameSlot struct {
	// Texture is the opaque GPU handle (or, on the software backend, an
	// index into a CPU pixel buffer) owning this frame's pixels.
	Texture GPUTextureHandle

	// CaptureTime is the timestamp the capture backend attached to this
	// frame, in its own clock domain (not necessarily QPC/monotonic
	// engine time).
	CaptureTime time.Time

	// SmoothedTime is CaptureTime de-jittered against the expected time
	// E = T_prev + meanInterval (§4.1): it locks to E when CaptureTime
	// falls within the jitter-suppression band around it, and softens
	// halfway toward the raw timestamp otherwise. Zero until the frame
	// queue has processed it.
	SmoothedTime time.Time

	// Sequence is a monotonically increasing counter assigned at push,
	// used to detect dropped frames and to break ties when two frames
	// share a smoothed timestamp.
	Sequence uint64

	// Width and Height are the frame's pixel dimensions at capture time.
	Width, Height int
}

// Empty reports whether the slot has never been populated.
func (f FrameSlot) Empty() bool {
	return f.Width == 0 || f.Height == 0
}
