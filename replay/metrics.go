// ABOUTME: Prometheus metrics for the replay server: stream gauge, frame counter, request counts.
// ABOUTME: Registered on the default registry and served from /metrics via promhttp.

package replay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "watchtower",
		Name:      "replay_active_streams",
		Help:      "Open event-stream subscribers.",
	})
	metricFramesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "watchtower",
		Name:      "replay_frames_streamed_total",
		Help:      "Frames written to event-stream subscribers.",
	})
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchtower",
		Name:      "replay_requests_total",
		Help:      "API requests served, by route.",
	}, []string{"route"})
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
