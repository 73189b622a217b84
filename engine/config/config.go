package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// Backend names accepted in [renderer] backend.
const (
	BackendSoftware = "software"
	BackendVulkan   = "vulkan"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Renderer RendererConfig `toml:"renderer"`
	Software SoftwareConfig `toml:"software"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// RendererConfig holds the knobs fixed at renderer initialization.
type RendererConfig struct {
	Backend                  string `toml:"backend"`
	FrameCount               int    `toml:"frame_count"`
	FramePendingCount        int    `toml:"frame_pending_count"`
	MaxThreadCount           int    `toml:"max_thread_count"`
	RenderThreadCount        int    `toml:"render_thread_count"`
	MultiThreaded            bool   `toml:"multi_threaded"`
	MaxCmdListsPerThread     int    `toml:"max_cmd_lists_per_thread"`
	MaxDescriptorsPerThread  int    `toml:"max_descriptors_per_thread"`
	MaxDrawsPerThread        int    `toml:"max_draws_per_thread"`
	MaxJobsPerThread         int    `toml:"max_jobs_per_thread"`
	JobsPerCmdList           int    `toml:"jobs_per_cmd_list"`
	MaxPersistentDescriptors int    `toml:"max_persistent_descriptors"`
	SyncInterval             uint32 `toml:"sync_interval"`
	Width                    uint32 `toml:"width"`
	Height                   uint32 `toml:"height"`
	MaxFrames                uint64 `toml:"max_frames"`
}

type SoftwareConfig struct {
	// LatencyMicros delays every submitted batch on the software queue.
	LatencyMicros int `toml:"latency_us"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// DescriptorsPerDraw is the most descriptors one draw takes from its
// thread's descriptor pool (constant buffer plus texture).
const DescriptorsPerDraw = 2

// FrameCommandLists is the number of command lists thread 0 records each
// frame outside of its jobs: the clear and the present transition.
const FrameCommandLists = 2

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Renderer: RendererConfig{
			Backend:                  BackendSoftware,
			FrameCount:               3,
			FramePendingCount:        2,
			MaxThreadCount:           8,
			MultiThreaded:            true,
			MaxCmdListsPerThread:     256,
			MaxDescriptorsPerThread:  DescriptorsPerDraw * 4096,
			MaxDrawsPerThread:        4096,
			MaxJobsPerThread:         4096,
			JobsPerCmdList:           400,
			MaxPersistentDescriptors: 1024,
			SyncInterval:             1,
			Width:                    1280,
			Height:                   720,
		},
	}
}

// ThreadCount is the number of render workers: one per CPU core up to
// MaxThreadCount unless RenderThreadCount pins it.
func (r RendererConfig) ThreadCount() int {
	n := r.RenderThreadCount
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n > r.MaxThreadCount {
		n = r.MaxThreadCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (c Config) Validate() error {
	r := c.Renderer
	switch r.Backend {
	case BackendSoftware, BackendVulkan:
	default:
		return fmt.Errorf("%w: unknown backend `%s`", ErrInvalidConfig, r.Backend)
	}
	if r.FramePendingCount < 1 {
		return fmt.Errorf("%w: frame_pending_count must be at least 1", ErrInvalidConfig)
	}
	if r.FrameCount < r.FramePendingCount {
		return fmt.Errorf("%w: frame_count (%d) must be >= frame_pending_count (%d)", ErrInvalidConfig, r.FrameCount, r.FramePendingCount)
	}
	if r.MaxThreadCount < 1 {
		return fmt.Errorf("%w: max_thread_count must be at least 1", ErrInvalidConfig)
	}
	if r.MaxCmdListsPerThread < 2 {
		return fmt.Errorf("%w: max_cmd_lists_per_thread must be at least 2", ErrInvalidConfig)
	}
	for name, v := range map[string]int{
		"max_descriptors_per_thread": r.MaxDescriptorsPerThread,
		"max_draws_per_thread":       r.MaxDrawsPerThread,
		"max_jobs_per_thread":        r.MaxJobsPerThread,
		"jobs_per_cmd_list":          r.JobsPerCmdList,
		"max_persistent_descriptors": r.MaxPersistentDescriptors,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be at least 1", ErrInvalidConfig, name)
		}
	}
	if need := DescriptorsPerDraw * min(r.MaxDrawsPerThread, r.MaxJobsPerThread); r.MaxDescriptorsPerThread < need {
		return fmt.Errorf("%w: max_descriptors_per_thread (%d) must be at least %d for %d draws", ErrInvalidConfig, r.MaxDescriptorsPerThread, need, min(r.MaxDrawsPerThread, r.MaxJobsPerThread))
	}
	if need := (r.MaxJobsPerThread+r.JobsPerCmdList-1)/r.JobsPerCmdList + FrameCommandLists; r.MaxCmdListsPerThread < need {
		return fmt.Errorf("%w: max_cmd_lists_per_thread (%d) must be at least %d for %d jobs at %d per list", ErrInvalidConfig, r.MaxCmdListsPerThread, need, r.MaxJobsPerThread, r.JobsPerCmdList)
	}
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("%w: width and height must be non-zero", ErrInvalidConfig)
	}
	if c.Software.LatencyMicros < 0 {
		return fmt.Errorf("%w: software latency_us must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Load reads path on top of Default and validates the result. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config `%s`: %w", path, err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config `%s`: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode unmarshals TOML into cfg, keeping the fields the document omits.
func Decode(data []byte, cfg *Config) error {
	return toml.Unmarshal(data, cfg)
}
