package core

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const AVG_COUNT uint8 = 30

type MetricsState struct {
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

var (
	FramesPresented = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cadence",
		Name:      "frames_presented_total",
		Help:      "Frames handed to the presenter.",
	})
	FenceWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cadence",
		Name:      "fence_waits_total",
		Help:      "Times the CPU blocked on a pending-frame fence.",
	})
	FenceWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cadence",
		Name:      "fence_wait_seconds",
		Help:      "Time spent blocked on pending-frame fences.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	CommandListsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cadence",
		Name:      "command_lists_submitted_total",
		Help:      "Command lists passed to ExecuteCommandLists.",
	})
	JobsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cadence",
		Name:      "render_jobs_processed_total",
		Help:      "Render jobs recorded into command lists.",
	})
	PoolHighWater = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cadence",
		Name:      "pool_high_water",
		Help:      "Largest per-frame usage observed for each transient pool.",
	}, []string{"pool"})
	FrameTimeMS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cadence",
		Name:      "frame_time_ms",
		Help:      "Rolling average frame time.",
	})
)

var onceMetrics sync.Once
var metricsState *MetricsState = nil

var highWaterMu sync.Mutex
var highWater = map[string]int{}

// MetricsInitialize resets the rolling averages and registers the collectors
// with reg. A nil registerer skips registration.
func MetricsInitialize(reg prometheus.Registerer) error {
	var err error
	onceMetrics.Do(func() {
		if reg != nil {
			for _, c := range []prometheus.Collector{
				FramesPresented, FenceWaits, FenceWaitSeconds, CommandListsSubmitted,
				JobsProcessed, PoolHighWater, FrameTimeMS,
			} {
				if err = reg.Register(c); err != nil {
					return
				}
			}
		}
	})
	metricsState = &MetricsState{
		MStimes: [AVG_COUNT]float64{0},
	}
	return err
}

func MetricsUpdate(frame_elapsed_time float64) {
	if metricsState == nil {
		metricsState = &MetricsState{}
	}
	// Calculate frame ms average
	frame_ms := (frame_elapsed_time * 1000.0)
	metricsState.MStimes[metricsState.FrameAVGCounter] = frame_ms
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		metricsState.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			metricsState.MSavg += metricsState.MStimes[i]
		}

		metricsState.MSavg /= float64(AVG_COUNT)
		FrameTimeMS.Set(metricsState.MSavg)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	metricsState.AccumulatedFrameMS += frame_ms
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	// Count all Frames.
	metricsState.Frames++
}

func MetricsFrame() (float64, float64) {
	if metricsState == nil {
		return 0, 0
	}
	return metricsState.FPS, metricsState.MSavg
}

// MetricsObserveFenceWait records one blocking wait on a fence.
func MetricsObserveFenceWait(d time.Duration) {
	FenceWaits.Inc()
	FenceWaitSeconds.Observe(d.Seconds())
}

// MetricsPoolUsage raises the high-water gauge of pool when used exceeds it.
func MetricsPoolUsage(pool string, used int) {
	highWaterMu.Lock()
	defer highWaterMu.Unlock()
	if used <= highWater[pool] {
		return
	}
	highWater[pool] = used
	PoolHighWater.WithLabelValues(pool).Set(float64(used))
}
