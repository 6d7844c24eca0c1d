// gpu_software_fallback.go - CPU implementation of the compute device.
// Its generic Dispatch runs the downsample and copy-scale kernels; the
// motion, post-process and interpolation work runs as direct Go calls.
//
// Grounded in voodoo_software.go's VoodooSoftwareBackend: the same
// public contract as the hardware backend, executed with plain Go
// loops instead of a GPU queue, so the pipeline runs deterministically
// under `go test` and gives the Vulkan path a golden reference to
// diff against. Selected by the headless build tag the same way
// voodoo_vulkan_headless.go swaps VulkanBackend for
// VoodooSoftwareBackend.

package main

import (
	"context"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// SoftwareComputeDevice implements ComputeDevice entirely on the CPU.
type SoftwareComputeDevice struct {
	width, height int
	textures      map[GPUTextureHandle]*softwareTexture
	nextTex       GPUTextureHandle
}

type softwareTexture struct {
	width, height int
	format        TextureFormat
	pixels        []byte
}

func NewSoftwareComputeDevice() *SoftwareComputeDevice {
	return &SoftwareComputeDevice{
		textures: make(map[GPUTextureHandle]*softwareTexture),
		nextTex:  1,
	}
}

func (s *SoftwareComputeDevice) Init(width, height int) error {
	s.width, s.height = width, height
	return nil
}

func bytesPerPixel(f TextureFormat) int {
	switch f {
	case FormatLumaR8:
		return 1
	case FormatConfidenceR16F:
		return 2
	case FormatMotionRG16F:
		return 4
	default:
		return 4
	}
}

func (s *SoftwareComputeDevice) CreateTexture(width, height int, format TextureFormat) (GPUTextureHandle, error) {
	handle := s.nextTex
	s.nextTex++
	s.textures[handle] = &softwareTexture{
		width: width, height: height, format: format,
		pixels: make([]byte, width*height*bytesPerPixel(format)),
	}
	return handle, nil
}

func (s *SoftwareComputeDevice) UploadTexture(handle GPUTextureHandle, pixels []byte) error {
	tex, ok := s.textures[handle]
	if !ok {
		return fmt.Errorf("unknown texture handle %d", handle)
	}
	n := copy(tex.pixels, pixels)
	if n < len(tex.pixels) {
		for i := n; i < len(tex.pixels); i++ {
			tex.pixels[i] = 0
		}
	}
	return nil
}

func (s *SoftwareComputeDevice) ReadTexture(handle GPUTextureHandle) ([]byte, error) {
	tex, ok := s.textures[handle]
	if !ok {
		return nil, fmt.Errorf("unknown texture handle %d", handle)
	}
	out := make([]byte, len(tex.pixels))
	copy(out, tex.pixels)
	return out, nil
}

func (s *SoftwareComputeDevice) Resize(width, height int) error {
	s.width, s.height = width, height
	return nil
}

func (s *SoftwareComputeDevice) Destroy() {
	s.textures = nil
}

// Dispatch ignores groupsX/groupsY (a CPU loop has no workgroup
// notion) and runs the matching reference implementation over the
// whole texture synchronously.
func (s *SoftwareComputeDevice) Dispatch(ctx context.Context, kernel KernelName, pushConstants []byte, inputs, outputs []GPUTextureHandle, groupsX, groupsY uint32) error {
	switch kernel {
	case KernelPyramidDownsample, KernelLumaDownsample:
		return s.dispatchDownsample(inputs, outputs)
	case KernelCopyScale:
		return s.dispatchCopyScale(inputs, outputs)
	default:
		// On the Vulkan device motion_estimate and motion_refine are
		// dispatched by motion_estimator.go, and motion_smooth,
		// motion_temporal, interpolate and debug_view only have their
		// pipelines warmed by Init. On this CPU backend the work runs as direct Go
		// calls into motion_estimator_software.go, motion_postprocess.go
		// and interpolator.go instead of round-tripping through a
		// generic byte-buffer dispatch: the software device IS the CPU,
		// so there is nothing for these kernels to hand off to. Reaching
		// here means a caller dispatched one of them against the
		// software device directly instead of the typed path.
		return wrapf(KindShaderExecution, "gpu_software_fallback.Dispatch", nil, "kernel %s has no generic software path", kernel)
	}
}

func (s *SoftwareComputeDevice) dispatchDownsample(inputs, outputs []GPUTextureHandle) error {
	if len(inputs) != 1 || len(outputs) != 1 {
		return fmt.Errorf("downsample expects 1 input and 1 output texture")
	}
	src, ok := s.textures[inputs[0]]
	if !ok {
		return fmt.Errorf("unknown input texture %d", inputs[0])
	}
	dst, ok := s.textures[outputs[0]]
	if !ok {
		return fmt.Errorf("unknown output texture %d", outputs[0])
	}
	srcImg := rgbaFromTexture(src)
	dstImg := rgbaFromTexture(dst)
	draw.BiLinear.Scale(dstImg, dstImg.Bounds(), srcImg, srcImg.Bounds(), draw.Src, nil)
	copy(dst.pixels, dstImg.Pix)
	return nil
}

func (s *SoftwareComputeDevice) dispatchCopyScale(inputs, outputs []GPUTextureHandle) error {
	return s.dispatchDownsample(inputs, outputs)
}

// rgbaFromTexture copies a BGRA8 software texture into a standard
// image.RGBA (swapping B/R, since Vulkan's B8G8R8A8 layout and Go's
// image.RGBA disagree on channel order) so draw.BiLinear.Scale can be
// reused for the CPU pyramid build the same way the GPU path uses a
// hardware sampler.
func rgbaFromTexture(t *softwareTexture) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	if t.format != FormatColorBGRA8 {
		copy(img.Pix, t.pixels)
		return img
	}
	for i := 0; i+3 < len(t.pixels) && i+3 < len(img.Pix); i += 4 {
		img.Pix[i+0] = t.pixels[i+2]
		img.Pix[i+1] = t.pixels[i+1]
		img.Pix[i+2] = t.pixels[i+0]
		img.Pix[i+3] = t.pixels[i+3]
	}
	return img
}

func luma8(r, g, b byte) byte {
	// Rec.709 luma, the coefficients spec.md specifies for the
	// motion-estimator's luma plane (not BT.601).
	return byte(math.Round(0.2126*float64(r) + 0.7152*float64(g) + 0.0722*float64(b)))
}
