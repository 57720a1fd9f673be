package eta

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistryMetrics exposes Prometheus instrumentation for registry scans,
// grounded on pkg/database.NewDBMetrics's promauto pattern.
type RegistryMetrics struct {
	scanDuration    prometheus.Histogram
	candidatesFound prometheus.Gauge
	scanErrors      prometheus.Counter
}

// NewRegistryMetrics registers the scan-duration histogram and
// candidate-count gauge used by an instrumented Scanner.
func NewRegistryMetrics(serviceName string) *RegistryMetrics {
	return &RegistryMetrics{
		scanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    serviceName + "_registry_scan_duration_seconds",
			Help:    "Time spent scanning the model registry",
			Buckets: prometheus.DefBuckets,
		}),
		candidatesFound: promauto.NewGauge(prometheus.GaugeOpts{
			Name: serviceName + "_registry_candidates_found",
			Help: "Number of valid model candidates found by the last scan",
		}),
		scanErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: serviceName + "_registry_scan_errors_total",
			Help: "Total number of registry scans that failed outright",
		}),
	}
}

// InstrumentedScan runs scan and records its duration, candidate count, and
// outright failures against m.
func (m *RegistryMetrics) InstrumentedScan(scan func() (ScanResult, error)) (ScanResult, error) {
	timer := prometheus.NewTimer(m.scanDuration)
	defer timer.ObserveDuration()

	result, err := scan()
	if err != nil {
		m.scanErrors.Inc()
		return result, err
	}
	m.candidatesFound.Set(float64(len(result.Candidates)))
	return result, nil
}
