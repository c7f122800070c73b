package api

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics registers the client collectors on reg. Registering twice on the
// same registry reuses the existing collectors.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "formflow_api_requests_total",
		Help: "Backend API requests by method, resource and status.",
	}, []string{"method", "resource", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formflow_api_request_duration_seconds",
		Help:    "Backend API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "resource"})

	m := &metrics{requests: requests, duration: duration}
	if err := reg.Register(requests); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.requests = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := reg.Register(duration); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		m.duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	return m, nil
}

func (m *metrics) observe(method, resource string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(method, resource, label).Inc()
	m.duration.WithLabelValues(method, resource).Observe(elapsed.Seconds())
}

// resourceLabel keeps label cardinality bounded: ids and query strings are
// dropped, leaving "user/users" for "/api/user/users/42/".
func resourceLabel(path string) string {
	if parsed, err := url.Parse(path); err == nil {
		path = parsed.Path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "api" || isDigits(part) || looksLikeID(part) {
			continue
		}
		kept = append(kept, part)
	}
	if len(kept) == 0 {
		return "root"
	}
	return strings.Join(kept, "/")
}

func looksLikeID(part string) bool {
	return len(part) == 36 && strings.Count(part, "-") == 4
}
