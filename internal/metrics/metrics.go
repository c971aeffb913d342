// Package metrics holds the Prometheus collectors for the gateway.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "draft_polisher"

// Recorder counts gateway outcomes. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	quotaDenials   prometheus.Counter
	upstreamErrors *prometheus.CounterVec
	identities     *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests handled, by route and status code.",
		}, []string{"route", "status"}),
		quotaDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denials_total",
			Help:      "Rewrites refused because the daily limit was reached.",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed calls to the rewrite service, by reason.",
		}, []string{"reason"}),
		identities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identities_total",
			Help:      "Identity resolutions, by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.requests, r.quotaDenials, r.upstreamErrors, r.identities)
	return r
}

func (r *Recorder) Request(route string, status int) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (r *Recorder) QuotaDenied() {
	if r == nil {
		return
	}
	r.quotaDenials.Inc()
}

func (r *Recorder) UpstreamError(reason string) {
	if r == nil {
		return
	}
	r.upstreamErrors.WithLabelValues(reason).Inc()
}

// Identity records whether a resolution minted a new persistent id.
func (r *Recorder) Identity(created bool) {
	if r == nil {
		return
	}
	outcome := "matched"
	if created {
		outcome = "created"
	}
	r.identities.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
