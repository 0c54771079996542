// Package metrics exposes the agent's own operational counters.
//
// Grounded on oriys-nova's internal/metrics/prometheus.go: a private
// *prometheus.Registry wrapped by a struct of Counter/CounterVec/
// HistogramVec fields, with a constructor that registers everything
// once.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Agent wraps the prometheus collectors for the breakpoint interceptor
// itself: how many hooks got installed, how many hits were dispatched
// or rejected by the recursion guard, how native bindings resolved,
// and how the callsite filter classified loadClass sites.
type Agent struct {
	registry *prometheus.Registry

	HooksInstalled       prometheus.Gauge
	NativeHooksInstalled prometheus.Gauge

	DispatchTotal          *prometheus.CounterVec // outcome=handled|rejected_recursive|missing_hook|leaked_failure
	NativeBindingsTotal    *prometheus.CounterVec // outcome=installed|pending|late_resolved
	CallsiteClassifyTotal  *prometheus.CounterVec // outcome=explicit|skipped|cached|cached_skip|recursive_loader
	HandlerDuration        *prometheus.HistogramVec
	ReinvocationFailures   *prometheus.CounterVec // handler=<name>
}

// New builds a fresh Agent registered against its own registry, so
// multiple agent instances in one process (e.g. in tests) never
// collide on global default-registry collector names.
func New() *Agent {
	reg := prometheus.NewRegistry()

	a := &Agent{
		registry: reg,
		HooksInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_hooks_installed",
			Help: "Number of regular (non-native) hooks currently installed.",
		}),
		NativeHooksInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "agent_native_hooks_installed",
			Help: "Number of native-method hooks currently installed.",
		}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_dispatch_total",
			Help: "Hook-hit dispatches by outcome.",
		}, []string{"outcome"}),
		NativeBindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_native_bindings_total",
			Help: "Native-bind events by outcome.",
		}, []string{"outcome"}),
		CallsiteClassifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_callsite_classify_total",
			Help: "loadClass callsite classifications by outcome.",
		}, []string{"outcome"}),
		HandlerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_handler_duration_seconds",
			Help:    "Wall-clock time spent inside a hook handler.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		ReinvocationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_reinvocation_failures_total",
			Help: "Re-invocations of an intercepted method that observed a failure.",
		}, []string{"handler"}),
	}

	reg.MustRegister(
		a.HooksInstalled,
		a.NativeHooksInstalled,
		a.DispatchTotal,
		a.NativeBindingsTotal,
		a.CallsiteClassifyTotal,
		a.HandlerDuration,
		a.ReinvocationFailures,
	)

	return a
}

// Handler returns the promhttp handler serving this Agent's registry.
func (a *Agent) Handler() http.Handler {
	return promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
}
