package software

import (
	"time"

	"github.com/spaghettifunk/cadence/engine/core"
	"github.com/spaghettifunk/cadence/engine/renderer/metadata"
)

type Config struct {
	Latency     time.Duration
	Manual      bool
	QueueDepth  int
	BufferCount int
	Width       uint32
	Height      uint32
}

// Backend bundles the software device, its queue and a presenter.
type Backend struct {
	device    *Device
	queue     *Queue
	presenter *Presenter
}

func New(cfg Config) (*Backend, error) {
	device := NewDevice()
	queue := NewQueue(device, QueueConfig{Latency: cfg.Latency, Manual: cfg.Manual, Depth: cfg.QueueDepth})
	presenter, err := NewPresenter(device, queue, cfg.BufferCount, cfg.Width, cfg.Height)
	if err != nil {
		queue.Close()
		return nil, err
	}
	core.LogInfo("software backend ready (%dx%d, %d buffers, latency %s)", cfg.Width, cfg.Height, cfg.BufferCount, cfg.Latency)
	return &Backend{device: device, queue: queue, presenter: presenter}, nil
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

// SoftwareDevice exposes the counters and violations of the device.
func (b *Backend) SoftwareDevice() *Device {
	return b.device
}

func (b *Backend) Shutdown() error {
	b.queue.Close()
	if v := b.device.Violations(); len(v) > 0 {
		core.LogWarn("software device recorded %d violation(s)", len(v))
	}
	return nil
}
