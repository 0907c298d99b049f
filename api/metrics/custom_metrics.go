package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	runsTriggeredMetric         = "radix_release_runs_triggered_total"
	stageCompletedMetric        = "radix_release_stage_completed_total"
	stageDurationMetric         = "radix_release_stage_duration_seconds"
	scalingEventsMetric         = "radix_release_scaling_events_total"
	desiredReplicasMetric       = "radix_release_desired_replicas"
	requestDurationMetric       = "radix_release_request_duration_seconds"
	requestDurationBucketMetric = "radix_release_request_duration_seconds_hist"

	serviceLabel   = "service"
	stageLabel     = "stage"
	statusLabel    = "status"
	directionLabel = "direction"
	pathLabel      = "path"
	methodLabel    = "method"
)

var (
	nrRunsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: runsTriggeredMetric,
			Help: "The total number of pipeline runs triggered",
		}, []string{serviceLabel})
	nrStagesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: stageCompletedMetric,
			Help: "The total number of pipeline stages reaching a terminal status",
		}, []string{serviceLabel, stageLabel, statusLabel})
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    stageDurationMetric,
			Help:    "Duration of pipeline stages from start to terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{serviceLabel, stageLabel})
	nrScalingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: scalingEventsMetric,
			Help: "The total number of replica changes made by the capacity controller",
		}, []string{serviceLabel, directionLabel})
	desiredReplicas = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: desiredReplicasMetric,
			Help: "Desired replica count last set by the capacity controller",
		}, []string{serviceLabel})
	resTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       requestDurationMetric,
			Help:       "Request duration seconds",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{pathLabel, methodLabel},
	)
	resTimeBucket = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    requestDurationBucketMetric,
			Help:    "Request duration seconds bucket",
			Buckets: DefaultBuckets(),
		},
		[]string{pathLabel, methodLabel},
	)
)

func DefaultBuckets() []float64 {
	return []float64{0.03, 0.1, 0.3, 1, 2, 3, 5, 10}
}

// AddRunTriggered New pipeline run triggered for a service
func AddRunTriggered(serviceName string) {
	nrRunsTriggered.With(prometheus.Labels{serviceLabel: serviceName}).Inc()
}

// AddStageCompleted A stage reached a terminal status
func AddStageCompleted(serviceName, stage, status string, duration time.Duration) {
	nrStagesCompleted.With(prometheus.Labels{serviceLabel: serviceName, stageLabel: stage, statusLabel: status}).Inc()
	if duration > 0 {
		stageDuration.With(prometheus.Labels{serviceLabel: serviceName, stageLabel: stage}).Observe(duration.Seconds())
	}
}

// AddScalingEvent The capacity controller changed the desired replicas of a service
func AddScalingEvent(serviceName, direction string, replicas int32) {
	nrScalingEvents.With(prometheus.Labels{serviceLabel: serviceName, directionLabel: direction}).Inc()
	desiredReplicas.With(prometheus.Labels{serviceLabel: serviceName}).Set(float64(replicas))
}

// AddRequestDuration Add request duration for given endpoint
func AddRequestDuration(path, method string, duration time.Duration) {
	resTime.WithLabelValues(path, method).Observe(duration.Seconds())
	resTimeBucket.WithLabelValues(path, method).Observe(duration.Seconds())
}
