// Package metrics defines small instrumentation interfaces so that core
// packages stay decoupled from any concrete metrics backend.
package metrics

// Counter only ever goes up.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()
	// Add increments the counter by delta. delta must be >= 0.
	Add(delta float64)
}

// Gauge can go up and down.
type Gauge interface {
	// Set sets the gauge to value.
	Set(value float64)
	// Inc increments the gauge by 1.
	Inc()
	// Dec decrements the gauge by 1.
	Dec()
	// Add adds delta to the gauge. delta can be negative.
	Add(delta float64)
}

// Histogram samples observations into buckets.
type Histogram interface {
	// Observe adds a single observation.
	Observe(value float64)
}

// Timer measures the duration of one operation. Call ObserveDuration when
// the operation completes.
type Timer interface {
	ObserveDuration()
}
