// gpu_types.go - types shared between the Vulkan and software compute backends.

package main

import "context"

// GPUTextureHandle is an opaque reference to a GPU-resident texture.
// The Vulkan backend maps it to a vk.Image; the software backend uses
// it as the key of a map of CPU pixel buffers. Neither backend
// exposes the underlying representation across the interface boundary.
type GPUTextureHandle uint32

// invalidTexture marks an unallocated slot, mirroring the zero-Image
// convention voodoo_vulkan.go uses before createImages runs.
const invalidTexture GPUTextureHandle = 0

// TextureFormat distinguishes the pixel layouts the pipeline moves
// between kernels. Motion fields are two 16-bit floats per pixel;
// color frames are BGRA8; luma planes are single-channel.
type TextureFormat int

const (
	FormatColorBGRA8 TextureFormat = iota
	FormatLumaR8
	FormatMotionRG16F
	// FormatConfidenceR16F is a single 16-bit float per pixel, the
	// companion output to FormatMotionRG16F: the vector and its
	// confidence are separate textures so a kernel can write both
	// through the same plural ComputeDevice.Dispatch outputs slot.
	FormatConfidenceR16F
)

// ComputeDevice is the contract both the Vulkan backend and the
// software fallback satisfy, generalizing voodoo_vulkan.go's
// VoodooBackend graphics-pipeline interface to compute dispatches.
type ComputeDevice interface {
	Init(width, height int) error
	CreateTexture(width, height int, format TextureFormat) (GPUTextureHandle, error)
	UploadTexture(handle GPUTextureHandle, pixels []byte) error
	ReadTexture(handle GPUTextureHandle) ([]byte, error)
	Dispatch(ctx context.Context, kernel KernelName, pushConstants []byte, inputs, outputs []GPUTextureHandle, groupsX, groupsY uint32) error
	Resize(width, height int) error
	Destroy()
}
