// Package metrics registers the Prometheus series exposed at GET /metrics,
// modeled on the teacher's internal/metrics/metrics.go.
//
// Only ScoutDispatched (dispatcher) and the MQTT series (mqttbridge) are
// updated by the service. The HTTP, queue depth, active scouts, matched,
// early-IV, timeout, census and geofence series are registered and
// exported, but nothing updates them, so they stay at zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lazyscout_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazyscout_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Queue
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazyscout_queue_depth",
			Help: "Current number of non-removed queue entries",
		},
	)

	ActiveScouts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazyscout_active_scouts",
			Help: "Current number of in-flight scouts",
		},
	)

	ScoutDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazyscout_scouts_dispatched_total",
			Help: "Total number of scouts dispatched, by seen_type, list_type and outcome",
		},
		[]string{"seen_type", "list_type", "outcome"},
	)

	Matched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazyscout_matched_total",
			Help: "Total number of entries matched by a returning IV sighting",
		},
		[]string{"seen_type", "species"},
	)

	EarlyIV = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazyscout_early_iv_total",
			Help: "Total number of IV sightings that arrived before a scout was dispatched",
		},
		[]string{"seen_type", "species"},
	)

	TimedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazyscout_timeout_total",
			Help: "Total number of scouts that timed out waiting for an IV match",
		},
		[]string{"seen_type", "species"},
	)

	// Rarity census
	CensusState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazyscout_census_ready",
			Help: "1 once the rarity census calibration period has elapsed, 0 during calibration",
		},
	)

	// MQTT bridge
	MQTTMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lazyscout_mqtt_messages_received_total",
			Help: "Total number of MQTT sighting messages received",
		},
		[]string{"topic"},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazyscout_mqtt_connection_status",
			Help: "MQTT bridge connection status (1 = connected, 0 = disconnected)",
		},
	)

	MQTTParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lazyscout_mqtt_parse_errors_total",
			Help: "Total number of MQTT messages that failed webhook-body decoding",
		},
	)

	// Geofence
	GeofenceAreas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lazyscout_geofence_areas",
			Help: "Number of polygons currently held by the geofence resolver",
		},
	)
)
