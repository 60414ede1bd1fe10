package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label of PacketsRejected
const (
	ReasonLength = "length"
	ReasonParse  = "parse"
)

// Metrics contains all Prometheus metrics for the EMG bridge
type Metrics struct {
	// UDP ingestion metrics
	PacketsReceived prometheus.Counter
	PacketsAccepted prometheus.Counter
	PacketsRejected *prometheus.CounterVec
	PacketSize      prometheus.Histogram

	// Sample store metrics
	StoreLength prometheus.Gauge
	StoreWrites prometheus.Counter

	// MQTT mirror metrics
	MQTTPublishes        prometheus.Counter
	MQTTPublishFailures  prometheus.Counter
	MQTTPublishesSkipped prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP ingestion metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "emg_packets_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		PacketsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "emg_packets_accepted_total",
			Help: "Total number of datagrams decoded and written to the sample store",
		}),
		PacketsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emg_packets_rejected_total",
			Help: "Total number of datagrams discarded as malformed",
		}, []string{"reason"}),
		PacketSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "emg_packet_size_bytes",
			Help:    "Size of received UDP datagrams",
			Buckets: prometheus.ExponentialBuckets(4, 2, 12), // 4B to 8KB
		}),

		// Sample store metrics
		StoreLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "emg_store_length",
			Help: "Number of values currently held by the sample store",
		}),
		StoreWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "emg_store_writes_total",
			Help: "Total number of sample store writes",
		}),

		// MQTT mirror metrics
		MQTTPublishes: factory.NewCounter(prometheus.CounterOpts{
			Name: "emg_mqtt_publishes_total",
			Help: "Total number of store snapshots published to MQTT",
		}),
		MQTTPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "emg_mqtt_publish_failures_total",
			Help: "Total number of failed MQTT publishes",
		}),
		MQTTPublishesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "emg_mqtt_publishes_skipped_total",
			Help: "Total number of publishes skipped while disconnected from the broker",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emg_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emg_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emg_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived records a received datagram and its size
func (m *Metrics) RecordPacketReceived(sizeBytes int) {
	m.PacketsReceived.Inc()
	m.PacketSize.Observe(float64(sizeBytes))
}

// RecordPacketAccepted records a datagram that updated the store
func (m *Metrics) RecordPacketAccepted(storeLen int) {
	m.PacketsAccepted.Inc()
	m.StoreWrites.Inc()
	m.StoreLength.Set(float64(storeLen))
}

// RecordPacketRejected records a discarded datagram
func (m *Metrics) RecordPacketRejected(reason string) {
	m.PacketsRejected.WithLabelValues(reason).Inc()
}

// RecordMQTTPublish records a successful publish
func (m *Metrics) RecordMQTTPublish() {
	m.MQTTPublishes.Inc()
}

// RecordMQTTFailure records a failed publish
func (m *Metrics) RecordMQTTFailure() {
	m.MQTTPublishFailures.Inc()
}

// RecordMQTTSkipped records a publish skipped while disconnected
func (m *Metrics) RecordMQTTSkipped() {
	m.MQTTPublishesSkipped.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
