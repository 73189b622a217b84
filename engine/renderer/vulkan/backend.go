package vulkan

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type Config struct {
	AppName     string
	Width       uint32
	Height      uint32
	BufferCount int
	// Debug enables the Khronos validation layer and routes its reports to
	// the engine log.
	Debug bool
}

var (
	loaderOnce sync.Once
	loaderErr  error
)

func initLoader() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("failed to load the Vulkan library: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			loaderErr = fmt.Errorf("failed to initialize the Vulkan loader: %w", err)
		}
	})
	return loaderErr
}

// Backend renders offscreen on the first Vulkan device with a graphics queue.
type Backend struct {
	context   *VulkanContext
	device    *Device
	queue     *Queue
	presenter *Presenter
	debug     bool
}

func New(cfg Config) (*Backend, error) {
	if err := initLoader(); err != nil {
		return nil, err
	}
	b := &Backend{
		context: &VulkanContext{Locks: NewVulkanLockPool()},
		debug:   cfg.Debug,
	}
	if err := b.createInstance(cfg.AppName); err != nil {
		return nil, err
	}
	core.LogInfo("Vulkan Instance created.")

	if err := DeviceCreate(b.context, VulkanPhysicalDeviceRequirements{
		Graphics: true,
		Transfer: true,
	}); err != nil {
		b.destroyInstance()
		return nil, err
	}

	device, err := newDevice(b.context)
	if err != nil {
		b.Shutdown()
		return nil, err
	}
	b.device = device
	b.queue = newQueue(device)

	presenter, err := newPresenter(device, cfg.BufferCount, cfg.Width, cfg.Height)
	if err != nil {
		b.Shutdown()
		return nil, err
	}
	b.presenter = presenter
	core.LogInfo("vulkan backend ready (%dx%d, %d offscreen buffers)", cfg.Width, cfg.Height, cfg.BufferCount)
	return b, nil
}

func (b *Backend) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Cadence"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		createInfo.Flags |= 1
	}
	layers := []string{}
	if b.debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		layers = append(layers, "VK_LAYER_KHRONOS_validation")
		if err := requireLayers(layers); err != nil {
			return err
		}
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := check("vkCreateInstance", vk.CreateInstance(&createInfo, b.context.Allocator, &b.context.Instance)); err != nil {
		return err
	}
	if err := vk.InitInstance(b.context.Instance); err != nil {
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		return err
	}

	if b.debug {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(b.context.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			b.destroyInstance()
			return err
		}
		b.context.debugReport = dbg
	}
	return nil
}

func requireLayers(required []string) error {
	var count uint32
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return err
	}
	available := make([]vk.LayerProperties, count)
	if err := check("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, available)); err != nil {
		return err
	}
	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			end := FindFirstZeroInByteArray(available[j].LayerName[:])
			if name == string(available[j].LayerName[:end]) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	return nil
}

func (b *Backend) destroyInstance() {
	if b.context.debugReport != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.context.Instance, b.context.debugReport, b.context.Allocator)
		b.context.debugReport = vk.NullDebugReportCallback
	}
	if b.context.Instance != nil {
		vk.DestroyInstance(b.context.Instance, b.context.Allocator)
		b.context.Instance = nil
	}
}

func (b *Backend) Device() metadata.Device {
	return b.device
}

func (b *Backend) Queue() metadata.CommandQueue {
	return b.queue
}

func (b *Backend) Presenter() metadata.Presenter {
	return b.presenter
}

// VulkanDevice exposes the draw counters of the device.
func (b *Backend) VulkanDevice() *Device {
	return b.device
}

// Shutdown destroys everything in reverse creation order.
func (b *Backend) Shutdown() error {
	if b.context.Device != nil && b.context.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(b.context.Device.LogicalDevice)
	}
	if b.presenter != nil {
		b.presenter.Release()
		b.presenter = nil
	}
	if b.device != nil {
		if s := b.device.Stats().SkippedDraws.Load(); s > 0 {
			core.LogWarn("vulkan device skipped %d draw(s) without an attached pipeline", s)
		}
		b.device.release()
		b.device = nil
	}
	DeviceDestroy(b.context)
	b.destroyInstance()
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
