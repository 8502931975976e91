package camera

import (
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nasa-jpl/qhylab/camera"
	"github.com/nasa-jpl/qhylab/qhy"
)

// Metrics counts the frames served over HTTP and exports the camera state.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Frames   *prometheus.CounterVec
	Duration prometheus.Histogram

	// OnCapture, if not nil, is called with the frames of every successful
	// capture or burst
	OnCapture func(frames ...*qhy.Image)
}

// result labels a finished capture
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, qhy.ErrCanceled):
		return "canceled"
	case errors.Is(err, qhy.ErrTimeout):
		return "timeout"
	}
	return "failed"
}

// NewMetrics creates the capture metrics for c and registers them with reg,
// along with gauges of the lifecycle state and, for a Cooled camera, the
// sensor temperature.
func NewMetrics(reg prometheus.Registerer, c camera.Minimal) (*Metrics, error) {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "qhy",
			Name:      "frames_total",
			Help:      "Frames captured, by result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: "qhy",
			Name:      "capture_duration_seconds",
			Help:      "Wall time of captures and bursts, exposure included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	collectors := []prometheus.Collector{
		m.Frames,
		m.Duration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "qhy",
			Name:      "state",
			Help:      "Lifecycle state; 0 Uninitialized, 1 Idle, 2 Exposing, 3 FrameReady, 4 Faulted, 5 Closed.",
		}, func() float64 { return float64(c.State()) }),
	}
	if cooled, ok := c.(camera.Cooled); ok {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "qhy",
			Name:      "sensor_temp_celcius",
			Help:      "Current temperature of the sensor.",
		}, func() float64 {
			t, err := cooled.GetTemperature()
			if err != nil {
				return math.NaN()
			}
			return t
		}))
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// observe records the frames (or one failure) from a capture that began at start
func (m *Metrics) observe(start time.Time, frames []*qhy.Image, err error) {
	if m == nil {
		return
	}
	m.Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.Frames.WithLabelValues(result(err)).Inc()
		return
	}
	m.Frames.WithLabelValues(result(nil)).Add(float64(len(frames)))
	if m.OnCapture != nil {
		m.OnCapture(frames...)
	}
}
