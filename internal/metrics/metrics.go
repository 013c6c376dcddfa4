// Package metrics holds the Prometheus collectors of the client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records submission and device metrics. A nil *Recorder is a no-op.
type Recorder struct {
	submissions      *prometheus.CounterVec
	submitDuration   prometheus.Histogram
	locationFailures *prometheus.CounterVec
	cameraFailures   prometheus.Counter
	refreshes        *prometheus.CounterVec
	feedClients      prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendclient",
			Name:      "submissions_total",
			Help:      "Attendance submissions by outcome.",
		}, []string{"outcome"}),
		submitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendclient",
			Name:      "submission_duration_seconds",
			Help:      "Time from capture start to server answer.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
		locationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendclient",
			Name:      "location_failures_total",
			Help:      "Failed position requests by error code.",
		}, []string{"code"}),
		cameraFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "attendclient",
			Name:      "camera_failures_total",
			Help:      "Camera start or capture failures.",
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendclient",
			Name:      "attendance_refreshes_total",
			Help:      "Attendance list fetches by result.",
		}, []string{"result"}),
		feedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "attendclient",
			Name:      "feed_clients",
			Help:      "Connected live feed clients.",
		}),
	}
}

func (r *Recorder) Submission(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
	r.submitDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) LocationFailure(code string) {
	if r == nil {
		return
	}
	r.locationFailures.WithLabelValues(code).Inc()
}

func (r *Recorder) CameraFailure() {
	if r == nil {
		return
	}
	r.cameraFailures.Inc()
}

func (r *Recorder) Refresh(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.refreshes.WithLabelValues(result).Inc()
}

func (r *Recorder) FeedClients(delta float64) {
	if r == nil {
		return
	}
	r.feedClients.Add(delta)
}
