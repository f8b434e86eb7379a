// Package metrics declares the Prometheus collectors for the graph runtime,
// media, and muxer/trimmer stages, registered via a single package-level
// promauto var block.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_packets_decoded_total",
			Help: "Total number of CTF packets decoded by stream class",
		},
		[]string{"stream_class_id"},
	)

	EventsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_events_decoded_total",
			Help: "Total number of CTF events decoded by stream class",
		},
		[]string{"stream_class_id"},
	)

	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_decode_errors_total",
			Help: "Total number of decode errors by kind",
		},
		[]string{"component", "kind"},
	)

	AgainTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_again_total",
			Help: "Total number of AGAIN statuses returned by component",
		},
		[]string{"component"},
	)

	MuxerUpstreamCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bt_muxer_upstream_count",
		Help: "Current number of upstream iterators held by the muxer",
	})

	MuxerWatermarkNs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bt_muxer_watermark_ns",
		Help: "Last emitted timestamp watermark, nanoseconds since the stream's clock origin",
	})

	GraphRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bt_graph_run_rotation_seconds",
			Help:    "Time spent in one scheduler rotation across all sinks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	LiveReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bt_live_reconnects_total",
		Help: "Total number of LTTng-live viewer reconnect attempts",
	})

	QueryRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_query_retries_total",
			Help: "Total number of query executor retries after AGAIN",
		},
		[]string{"object"},
	)

	PortQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bt_port_queue_depth",
			Help: "Pending messages buffered at an input port",
		},
		[]string{"component", "port"},
	)

	KafkaMessagesProducedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_kafka_messages_produced_total",
			Help: "Total number of messages handed to the Kafka producer by outcome",
		},
		[]string{"topic", "outcome"},
	)

	KafkaProducerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bt_kafka_producer_errors_total",
			Help: "Total number of Kafka producer errors by kind",
		},
		[]string{"topic", "kind"},
	)

	KafkaCircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bt_kafka_circuit_breaker_state",
		Help: "Kafka sink circuit breaker state: 0 closed, 1 half-open, 2 open",
	})

	KafkaBatchSendDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bt_kafka_batch_send_seconds",
		Help:    "Time spent handing one message off to the Kafka producer",
		Buckets: prometheus.DefBuckets,
	})

	ResourceSampleDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bt_resource_sample",
			Help: "Last sampled process resource value",
		},
		[]string{"kind"},
	)
)

// Handler returns the standard promhttp handler for mounting under the
// ambient debug/metrics HTTP surface (internal/obs/httpserver).
func Handler() http.Handler {
	return promhttpHandler()
}
