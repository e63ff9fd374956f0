package results

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Summary condenses a run into velocity-error and acceleration statistics.
type Summary struct {
	Samples int `json:"samples"`

	MinError    float64 `json:"min_error"`
	MaxError    float64 `json:"max_error"`
	MeanError   float64 `json:"mean_error"`
	StdDevError float64 `json:"stddev_error"`

	MinAcceleration    float64 `json:"min_acceleration"`
	MaxAcceleration    float64 `json:"max_acceleration"`
	MeanAcceleration   float64 `json:"mean_acceleration"`
	StdDevAcceleration float64 `json:"stddev_acceleration"`
}

// Summary computes run statistics from the buffered samples. A run without
// samples yields the zero Summary.
func (r *Recorder) Summary() Summary {
	if r == nil {
		return Summary{}
	}
	r.mu.Lock()
	samples := append([]Sample(nil), r.samples...)
	r.mu.Unlock()
	if len(samples) == 0 {
		return Summary{}
	}

	errors := make([]float64, len(samples))
	accelerations := make([]float64, len(samples))
	summary := Summary{
		Samples:         len(samples),
		MinError:        math.Inf(1),
		MaxError:        math.Inf(-1),
		MinAcceleration: math.Inf(1),
		MaxAcceleration: math.Inf(-1),
	}
	for i, sample := range samples {
		trackingError := sample.DesiredVelocity - sample.CurrentVelocity
		errors[i] = trackingError
		accelerations[i] = sample.Acceleration
		summary.MinError = math.Min(summary.MinError, trackingError)
		summary.MaxError = math.Max(summary.MaxError, trackingError)
		summary.MinAcceleration = math.Min(summary.MinAcceleration, sample.Acceleration)
		summary.MaxAcceleration = math.Max(summary.MaxAcceleration, sample.Acceleration)
	}
	summary.MeanError = stat.Mean(errors, nil)
	summary.StdDevError = stat.StdDev(errors, nil)
	summary.MeanAcceleration = stat.Mean(accelerations, nil)
	summary.StdDevAcceleration = stat.StdDev(accelerations, nil)
	return summary
}
