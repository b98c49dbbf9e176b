package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the call metrics on a private registry, constructed once at
// startup and injected where needed.
type Set struct {
	registry *prometheus.Registry

	callsStarted   *prometheus.CounterVec
	callsConnected prometheus.Counter
	callsEnded     *prometheus.CounterVec
	activeCall     prometheus.Gauge
	callDuration   prometheus.Histogram
	packetLoss     *prometheus.GaugeVec
	bitrate        *prometheus.GaugeVec
}

// New builds and registers the metric set.
func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		callsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirecall_calls_started_total",
			Help: "Total call attempts by direction",
		}, []string{"direction"}),
		callsConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wirecall_calls_connected_total",
			Help: "Total calls that reached the connected state",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wirecall_calls_ended_total",
			Help: "Total calls ended by terminal state",
		}, []string{"result"}),
		activeCall: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wirecall_active_call",
			Help: "1 while a call session is active",
		}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wirecall_call_duration_seconds",
			Help:    "Duration of connected calls",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10), // 5s to ~40min
		}),
		packetLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wirecall_packet_loss_percent",
			Help: "Current packet loss percentage per media kind",
		}, []string{"kind"}),
		bitrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wirecall_bitrate_bits_per_second",
			Help: "Current media bitrate per kind and direction",
		}, []string{"kind", "direction"}),
	}

	s.registry.MustRegister(
		s.callsStarted,
		s.callsConnected,
		s.callsEnded,
		s.activeCall,
		s.callDuration,
		s.packetLoss,
		s.bitrate,
	)
	return s
}

// Handler exposes the registry for the debug HTTP surface.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// CallStarted counts a call attempt.
func (s *Set) CallStarted(outgoing bool) {
	direction := "incoming"
	if outgoing {
		direction = "outgoing"
	}
	s.callsStarted.WithLabelValues(direction).Inc()
	s.activeCall.Set(1)
}

// CallConnected counts a successful connection.
func (s *Set) CallConnected() {
	s.callsConnected.Inc()
}

// CallEnded counts a terminal transition and clears per-call gauges.
func (s *Set) CallEnded(result string, duration time.Duration) {
	s.callsEnded.WithLabelValues(result).Inc()
	s.activeCall.Set(0)
	if duration > 0 {
		s.callDuration.Observe(duration.Seconds())
	}
	s.packetLoss.Reset()
	s.bitrate.Reset()
}

// ObserveLoss records the current loss percentage for a media kind.
func (s *Set) ObserveLoss(kind string, pct float64) {
	s.packetLoss.WithLabelValues(kind).Set(pct)
}

// ObserveBitrate records the current bitrate for a kind and direction.
func (s *Set) ObserveBitrate(kind, direction string, bps float64) {
	s.bitrate.WithLabelValues(kind, direction).Set(bps)
}
