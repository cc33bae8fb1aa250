package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "update_packager"

// Recorder holds the collectors. A nil *Recorder records nothing.
type Recorder struct {
	packages        *prometheus.CounterVec
	failures        *prometheus.CounterVec
	packedFiles     prometheus.Counter
	assemblySeconds prometheus.Histogram
	validFiles      prometheus.Gauge
	missingFiles    *prometheus.GaugeVec
	warnings        prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		packages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_created_total",
			Help:      "Number of update packages written, by format.",
		}, []string{"format"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_failures_total",
			Help:      "Number of failed package assemblies, by reason.",
		}, []string{"reason"}),
		packedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packed_files_total",
			Help:      "Number of files written into update packages.",
		}),
		assemblySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Duration of successful package assemblies.",
			Buckets:   prometheus.DefBuckets,
		}),
		validFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_valid_files",
			Help:      "Files found by the last validation pass.",
		}),
		missingFiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_missing_files",
			Help:      "Missing files reported by the last validation pass, by category.",
		}, []string{"category"}),
		warnings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_compatibility_warnings",
			Help:      "Compatibility warnings reported by the last validation pass.",
		}),
	}

	collectors := []prometheus.Collector{
		r.packages, r.failures, r.packedFiles, r.assemblySeconds,
		r.validFiles, r.missingFiles, r.warnings,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// ObserveValidation stores the counts of the last validation pass.
func (r *Recorder) ObserveValidation(valid, missingApplications, missingParamSets, missingOther, warnings int) {
	if r == nil {
		return
	}

	r.validFiles.Set(float64(valid))
	r.missingFiles.WithLabelValues("application").Set(float64(missingApplications))
	r.missingFiles.WithLabelValues("param_set").Set(float64(missingParamSets))
	r.missingFiles.WithLabelValues("other").Set(float64(missingOther))
	r.warnings.Set(float64(warnings))
}

// PackageCreated counts a written package.
func (r *Recorder) PackageCreated(format string, files int, seconds float64) {
	if r == nil {
		return
	}

	r.packages.WithLabelValues(format).Inc()
	r.packedFiles.Add(float64(files))
	r.assemblySeconds.Observe(seconds)
}

// PackageFailed counts a failed assembly.
func (r *Recorder) PackageFailed(reason string) {
	if r == nil {
		return
	}

	r.failures.WithLabelValues(reason).Inc()
}
