// Package metrics exposes relay counters to Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "pulse_relay_"

	resultSuccess = "success"
	resultError   = "error"
)

// CaptureSource reports the producer-side counters. It is read through
// CounterFunc/GaugeFunc so the capture path never touches a collector.
type CaptureSource interface {
	Triggers() uint64
	Bounces() uint64
	Accepted() uint64
	Dropped() uint64
	Buffered() int
}

var (
	registerOnce sync.Once

	batchesTotal    *prometheus.CounterVec
	timestampsSent  prometheus.Counter
	batchSize       prometheus.Histogram
	acquireAttempts *prometheus.CounterVec
	runsFinalized   *prometheus.CounterVec
	runActive       prometheus.Gauge
	mqttBuffered    prometheus.Gauge
)

// Init registers relay metrics with the default registry. src may be nil,
// in which case capture counters are not exported.
func Init(src CaptureSource) {
	registerOnce.Do(func() {
		InitWith(prometheus.DefaultRegisterer, src)
	})
}

// InitWith registers relay metrics with reg. Tests use a fresh registry.
func InitWith(reg prometheus.Registerer, src CaptureSource) {
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "batches_total",
			Help: "Total batches submitted by result",
		},
		[]string{"result"},
	)
	timestampsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricPrefix + "timestamps_sent_total",
			Help: "Total pulse timestamps handed to the collector",
		},
	)
	batchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "batch_size",
			Help:    "Timestamps per submitted batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	acquireAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "run_acquire_attempts_total",
			Help: "Total run id acquisition attempts by result",
		},
		[]string{"result"},
	)
	runsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "runs_finalized_total",
			Help: "Total runs finalized by close request result",
		},
		[]string{"result"},
	)
	runActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "run_active",
			Help: "1 while a run id is held",
		},
	)
	mqttBuffered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "mqtt_buffered_messages",
			Help: "Lifecycle messages waiting for the MQTT broker",
		},
	)

	reg.MustRegister(
		batchesTotal,
		timestampsSent,
		batchSize,
		acquireAttempts,
		runsFinalized,
		runActive,
		mqttBuffered,
	)

	if src != nil {
		registerCaptureMetrics(reg, src)
	}
}

func registerCaptureMetrics(reg prometheus.Registerer, src CaptureSource) {
	reg.MustRegister(
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: metricPrefix + "triggers_total",
				Help: "Raw sensor edges seen",
			},
			func() float64 { return float64(src.Triggers()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: metricPrefix + "bounces_total",
				Help: "Edges rejected by debounce",
			},
			func() float64 { return float64(src.Bounces()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: metricPrefix + "pulses_total",
				Help: "Pulses stored in the timestamp buffer",
			},
			func() float64 { return float64(src.Accepted()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: metricPrefix + "pulses_dropped_total",
				Help: "Pulses lost because the timestamp buffer was full",
			},
			func() float64 { return float64(src.Dropped()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "buffered_pulses",
				Help: "Pulses waiting for the next batch",
			},
			func() float64 { return float64(src.Buffered()) },
		),
	)
}

// ObserveBatch records a submitted batch of n timestamps.
func ObserveBatch(n int, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if batchesTotal != nil {
		batchesTotal.WithLabelValues(result).Inc()
	}
	if timestampsSent != nil {
		timestampsSent.Add(float64(n))
	}
	if batchSize != nil {
		batchSize.Observe(float64(n))
	}
}

// ObserveAcquireAttempt records one run id acquisition attempt.
func ObserveAcquireAttempt(err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if acquireAttempts != nil {
		acquireAttempts.WithLabelValues(result).Inc()
	}
}

// ObserveFinalize records a run finalization and its close request result.
func ObserveFinalize(err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if runsFinalized != nil {
		runsFinalized.WithLabelValues(result).Inc()
	}
}

// SetRunActive sets the run_active gauge.
func SetRunActive(active bool) {
	if runActive == nil {
		return
	}
	if active {
		runActive.Set(1)
	} else {
		runActive.Set(0)
	}
}

// SetMQTTBuffered sets the number of lifecycle messages awaiting replay.
func SetMQTTBuffered(n int) {
	if mqttBuffered != nil {
		mqttBuffered.Set(float64(n))
	}
}
