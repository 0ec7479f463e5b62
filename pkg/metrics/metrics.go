package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Registry holds every cardshot metric. A dedicated registry keeps textfile
// exports free of Go runtime series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	ImagesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshot_images_total",
			Help: "Total number of image render attempts.",
		},
		[]string{"status", "error_type"}, // status: success, failure
	)

	RenderDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardshot_render_duration_seconds",
			Help:    "Duration of a single image render, viewport to file.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"wait"},
	)

	BatchDuration = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardshot_batch_duration_seconds",
			Help: "Wall time of the last batch run.",
		},
	)

	BatchImages = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardshot_batch_images",
			Help: "Number of images in the last batch run.",
		},
	)

	HostRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardshot_host_requests_total",
			Help: "Requests served by the document host to the browser page.",
		},
		[]string{"kind", "status"}, // kind: document, asset
	)
)

// WriteTextfile writes the registry in text exposition format to path,
// for the node_exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}

// Push sends the registry to a Prometheus Pushgateway under the given job name.
func Push(ctx context.Context, url, job, runID string) error {
	err := push.New(url, job).
		Gatherer(Registry).
		Grouping("run_id", runID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
