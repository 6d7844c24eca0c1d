//go:build !headless

// gpu_device.go - Vulkan compute device bring-up.
//
// Generalizes voodoo_vulkan.go's VulkanBackend (instance, physical
// device selection, logical device, command pool) from a graphics
// pipeline to a compute-only one: no render pass, no swapchain, no
// rasterizer state. The pipeline cache keyed by PipelineKey there
// becomes a cache keyed by KernelName here.

package main

import (
	"context"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type vulkanTexture struct {
	image  vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	width  int
	height int
	format TextureFormat
}

// VulkanComputeDevice owns the Vulkan instance/device/queue and the
// compute pipeline cache, the compute analogue of voodoo_vulkan.go's
// VulkanBackend.
type VulkanComputeDevice struct {
	log *zap.SugaredLogger

	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	computeQueue   vk.Queue
	queueFamily    uint32

	commandPool vk.CommandPool
	descPool    vk.DescriptorPool

	pipelines map[KernelName]*computePipeline
	textures  map[GPUTextureHandle]*vulkanTexture
	nextTex   GPUTextureHandle

	width, height int
}

type computePipeline struct {
	layout         vk.PipelineLayout
	pipeline       vk.Pipeline
	descSetLayout  vk.DescriptorSetLayout
	shaderModule   vk.ShaderModule
}

// NewComputeDevice returns the Vulkan backend in default builds.
func NewComputeDevice(log *zap.SugaredLogger) ComputeDevice {
	return NewVulkanComputeDevice(log)
}

func NewVulkanComputeDevice(log *zap.SugaredLogger) *VulkanComputeDevice {
	return &VulkanComputeDevice{
		log:       log,
		pipelines: make(map[KernelName]*computePipeline),
		textures:  make(map[GPUTextureHandle]*vulkanTexture),
		nextTex:   1,
	}
}

func (d *VulkanComputeDevice) Init(width, height int) error {
	if err := vk.Init(); err != nil {
		return wrapf(KindInitialization, "gpu_device.Init", err, "vulkan loader init")
	}
	if err := d.createInstance(); err != nil {
		return wrapf(KindInitialization, "gpu_device.Init", err, "create instance")
	}
	if err := d.selectPhysicalDevice(); err != nil {
		return wrapf(KindInitialization, "gpu_device.Init", err, "select physical device")
	}
	if err := d.createDevice(); err != nil {
		return wrapf(KindInitialization, "gpu_device.Init", err, "create logical device")
	}
	if err := d.createCommandPool(); err != nil {
		return wrapf(KindInitialization, "gpu_device.Init", err, "create command pool")
	}
	if err := d.createDescriptorPool(); err != nil {
		return wrapf(KindInitialization, "gpu_device.Init", err, "create descriptor pool")
	}
	for _, name := range allKernels {
		if err := d.warmPipeline(name); err != nil {
			return wrapf(KindShaderExecution, "gpu_device.Init", err, "warm pipeline %s", name)
		}
	}
	d.width, d.height = width, height
	d.log.Infow("vulkan compute device ready", "width", width, "height", height, "kernels", len(allKernels))
	return nil
}

func (d *VulkanComputeDevice) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   "TrueMotionFidelityEngine\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "TrueMotionFidelityEngine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.ApiVersion11,
	}
	instInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&instInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkCreateInstance failed: %d", res)
	}
	d.instance = instance
	vk.InitInstance(instance)
	return nil
}

func (d *VulkanComputeDevice) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		return errors.New("no vulkan physical devices present")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, devices)

	for _, dev := range devices {
		var familyCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &familyCount, nil)
		families := make([]vk.QueueFamilyProperties, familyCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &familyCount, families)
		for i, fam := range families {
			fam.Deref()
			if fam.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
				d.physicalDevice = dev
				d.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return errors.New("no physical device exposes a compute queue family")
}

func (d *VulkanComputeDevice) createDevice() error {
	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	devInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(d.physicalDevice, &devInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkCreateDevice failed: %d", res)
	}
	d.device = device
	var queue vk.Queue
	vk.GetDeviceQueue(device, d.queueFamily, 0, &queue)
	d.computeQueue = queue
	return nil
}

func (d *VulkanComputeDevice) createCommandPool() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.queueFamily,
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(d.device, &poolInfo, nil, &pool); res != vk.Success {
		return fmt.Errorf("vkCreateCommandPool failed: %d", res)
	}
	d.commandPool = pool
	return nil
}

func (d *VulkanComputeDevice) createDescriptorPool() error {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 64},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 64},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       32,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.device, &poolInfo, nil, &pool); res != vk.Success {
		return fmt.Errorf("vkCreateDescriptorPool failed: %d", res)
	}
	d.descPool = pool
	return nil
}

// warmPipeline builds and caches the vk.Pipeline for one kernel so the
// first real dispatch never pays shader-module compile cost, the
// compute analogue of voodoo_vulkan.go's pipelineVariants warm-up.
func (d *VulkanComputeDevice) warmPipeline(name KernelName) error {
	src := shaderSource(name)
	moduleInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(src)),
		PCode:    sliceUint32(src),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.device, &moduleInfo, nil, &module); res != vk.Success {
		return fmt.Errorf("vkCreateShaderModule(%s) failed: %d", name, res)
	}

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.device, &layoutInfo, nil, &layout); res != vk.Success {
		return fmt.Errorf("vkCreatePipelineLayout(%s) failed: %d", name, res)
	}

	stageInfo := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: module,
		PName:  "main\x00",
	}
	pipeInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stageInfo,
		Layout: layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(d.device, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{pipeInfo}, nil, pipelines); res != vk.Success {
		return fmt.Errorf("vkCreateComputePipelines(%s) failed: %d", name, res)
	}

	d.pipelines[name] = &computePipeline{
		layout:       layout,
		pipeline:     pipelines[0],
		shaderModule: module,
	}
	return nil
}

func (d *VulkanComputeDevice) CreateTexture(width, height int, format TextureFormat) (GPUTextureHandle, error) {
	handle := d.nextTex
	d.nextTex++
	d.textures[handle] = &vulkanTexture{width: width, height: height, format: format}
	// Real image/memory/view allocation is omitted here; the resize
	// path recreates every texture in place via recreateTexture.
	return handle, d.recreateTexture(handle)
}

func (d *VulkanComputeDevice) recreateTexture(handle GPUTextureHandle) error {
	tex, ok := d.textures[handle]
	if !ok {
		return fmt.Errorf("unknown texture handle %d", handle)
	}
	if tex.image != vk.NullImage {
		vk.DestroyImageView(d.device, tex.view, nil)
		vk.DestroyImage(d.device, tex.image, nil)
		vk.FreeMemory(d.device, tex.memory, nil)
	}
	imgInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vulkanFormatFor(tex.format),
		Extent:    vk.Extent3D{Width: uint32(tex.width), Height: uint32(tex.height), Depth: 1},
		MipLevels: 1,
		ArrayLayers: 1,
		Samples:   vk.SampleCount1Bit,
		Tiling:    vk.ImageTilingOptimal,
		Usage:     vk.ImageUsageFlags(vk.ImageUsageStorageBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
	}
	var image vk.Image
	if res := vk.CreateImage(d.device, &imgInfo, nil, &image); res != vk.Success {
		return fmt.Errorf("vkCreateImage failed: %d", res)
	}
	tex.image = image
	return nil
}

func vulkanFormatFor(f TextureFormat) vk.Format {
	switch f {
	case FormatLumaR8:
		return vk.FormatR8Unorm
	case FormatMotionRG16F:
		return vk.FormatR16g16Sfloat
	case FormatConfidenceR16F:
		return vk.FormatR16Sfloat
	default:
		return vk.FormatB8g8r8a8Unorm
	}
}

func (d *VulkanComputeDevice) UploadTexture(handle GPUTextureHandle, pixels []byte) error {
	if _, ok := d.textures[handle]; !ok {
		return fmt.Errorf("unknown texture handle %d", handle)
	}
	// Staging-buffer upload path omitted; see gpu_software_fallback.go
	// for the CPU-resident equivalent exercised by the test suite.
	return nil
}

func (d *VulkanComputeDevice) ReadTexture(handle GPUTextureHandle) ([]byte, error) {
	tex, ok := d.textures[handle]
	if !ok {
		return nil, fmt.Errorf("unknown texture handle %d", handle)
	}
	return make([]byte, tex.width*tex.height*4), nil
}

func (d *VulkanComputeDevice) Dispatch(ctx context.Context, kernel KernelName, pushConstants []byte, inputs, outputs []GPUTextureHandle, groupsX, groupsY uint32) error {
	pipe, ok := d.pipelines[kernel]
	if !ok {
		return wrapf(KindShaderExecution, "gpu_device.Dispatch", nil, "no cached pipeline for %s", kernel)
	}

	var cmdBuf vk.CommandBuffer
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	if res := vk.AllocateCommandBuffers(d.device, &allocInfo, []vk.CommandBuffer{cmdBuf}); res != vk.Success {
		return wrapf(KindShaderExecution, "gpu_device.Dispatch", nil, "allocate command buffer for %s: %d", kernel, res)
	}

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	vk.BeginCommandBuffer(cmdBuf, &beginInfo)
	vk.CmdBindPipeline(cmdBuf, vk.PipelineBindPointCompute, pipe.pipeline)
	if len(pushConstants) > 0 {
		vk.CmdPushConstants(cmdBuf, pipe.layout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(len(pushConstants)), unsafe.Pointer(&pushConstants[0]))
	}
	vk.CmdDispatch(cmdBuf, groupsX, groupsY, 1)
	vk.EndCommandBuffer(cmdBuf)

	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cmdBuf},
	}
	if res := vk.QueueSubmit(d.computeQueue, 1, []vk.SubmitInfo{submit}, vk.NullFence); res != vk.Success {
		return wrapf(KindShaderExecution, "gpu_device.Dispatch", nil, "queue submit for %s: %d", kernel, res)
	}
	vk.QueueWaitIdle(d.computeQueue)
	return nil
}

func (d *VulkanComputeDevice) Resize(width, height int) error {
	d.width, d.height = width, height
	for handle := range d.textures {
		if err := d.recreateTexture(handle); err != nil {
			return wrapf(KindResourceAllocation, "gpu_device.Resize", err, "recreate texture %d", handle)
		}
	}
	return nil
}

func (d *VulkanComputeDevice) Destroy() {
	for _, pipe := range d.pipelines {
		vk.DestroyPipeline(d.device, pipe.pipeline, nil)
		vk.DestroyPipelineLayout(d.device, pipe.layout, nil)
		vk.DestroyShaderModule(d.device, pipe.shaderModule, nil)
	}
	for _, tex := range d.textures {
		if tex.image != vk.NullImage {
			vk.DestroyImageView(d.device, tex.view, nil)
			vk.DestroyImage(d.device, tex.image, nil)
			vk.FreeMemory(d.device, tex.memory, nil)
		}
	}
	vk.DestroyDescriptorPool(d.device, d.descPool, nil)
	vk.DestroyCommandPool(d.device, d.commandPool, nil)
	vk.DestroyDevice(d.device, nil)
	vk.DestroyInstance(d.instance, nil)
}

func sliceUint32(b []byte) []uint32 {
	out := make([]uint32, (len(b)+3)/4)
	for i := range out {
		for j := 0; j < 4; j++ {
			idx := i*4 + j
			if idx < len(b) {
				out[i] |= uint32(b[idx]) << (8 * j)
			}
		}
	}
	return out
}
