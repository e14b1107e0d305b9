package replica

import "github.com/prometheus/client_golang/prometheus"

var (
	decisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "replica",
			Name:      "decision_total",
			Help:      "Counter of certification decisions.",
		}, []string{"replica", "decision"})

	certifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tinydur",
			Subsystem: "replica",
			Name:      "certify_duration_seconds",
			Help:      "Bucketed histogram of the time spent certifying and applying one transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"replica"})

	requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "replica",
			Name:      "request_total",
			Help:      "Counter of decoded requests.",
		}, []string{"replica", "type"})

	malformedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "replica",
			Name:      "malformed_message_total",
			Help:      "Counter of discarded messages that could not be decoded.",
		}, []string{"replica"})

	skippedTxCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tinydur",
			Subsystem: "replica",
			Name:      "skipped_tx_total",
			Help:      "Counter of transaction ids skipped after the apply gap timeout.",
		}, []string{"replica"})

	appliedTxIDGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tinydur",
			Subsystem: "replica",
			Name:      "applied_tx_id",
			Help:      "The last transaction id certified by the replica.",
		}, []string{"replica"})
)

func init() {
	prometheus.MustRegister(decisionCounter)
	prometheus.MustRegister(certifyDuration)
	prometheus.MustRegister(requestCounter)
	prometheus.MustRegister(malformedCounter)
	prometheus.MustRegister(skippedTxCounter)
	prometheus.MustRegister(appliedTxIDGauge)
}
