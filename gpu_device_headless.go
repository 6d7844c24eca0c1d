//go:build headless

// gpu_device_headless.go - selects the software compute device in
// headless builds, the same swap voodoo_vulkan_headless.go performs
// for VulkanBackend.

package main

import "go.uber.org/zap"

func init() {
	compiledFeatures = append(compiledFeatures, "gpu:headless")
}

// NewComputeDevice returns the software fallback in headless builds so
// the rest of the engine links and runs without a Vulkan loader
// present (CI, containers, the test suite).
func NewComputeDevice(log *zap.SugaredLogger) ComputeDevice {
	return NewSoftwareComputeDevice()
}
