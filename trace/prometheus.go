package trace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/agentflow/core"
)

// PrometheusOptions configures NewPrometheusSink.
type PrometheusOptions struct {
	// Registerer receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Namespace prefixes every metric name. Defaults to "agentflow".
	Namespace string
	// Buckets for the latency histograms. Defaults to prometheus.DefBuckets.
	Buckets []float64
}

// PrometheusSink turns trace events into Prometheus metrics.
type PrometheusSink struct {
	nodesTotal     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	modelCalls     *prometheus.CounterVec
	modelDuration  *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	stateWrites    *prometheus.CounterVec
	loopIterations *prometheus.CounterVec
	loopsTotal     *prometheus.CounterVec
}

// NewPrometheusSink creates and registers the collectors.
func NewPrometheusSink(optFns ...func(o *PrometheusOptions)) *PrometheusSink {
	opts := PrometheusOptions{
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  "agentflow",
		Buckets:    prometheus.DefBuckets,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	factory := promauto.With(opts.Registerer)
	ns := opts.Namespace

	return &PrometheusSink{
		nodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "node_executions_total",
				Help:      "Total number of finished node executions by kind, node and status",
			},
			[]string{"kind", "node", "status"},
		),
		nodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "node_duration_seconds",
				Help:      "Duration of node executions in seconds",
				Buckets:   opts.Buckets,
			},
			[]string{"kind", "node"},
		),
		modelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "model_calls_total",
				Help:      "Total number of successful model calls by node and model",
			},
			[]string{"node", "model"},
		),
		modelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "model_call_duration_seconds",
				Help:      "Duration of model calls including retries in seconds",
				Buckets:   opts.Buckets,
			},
			[]string{"node", "model"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "retry_attempts_total",
				Help:      "Total number of failed remote call attempts by node and outcome",
			},
			[]string{"node", "status"},
		),
		toolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "tool_calls_total",
				Help:      "Total number of tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
		stateWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "state_writes_total",
				Help:      "Total number of session state writes by key",
			},
			[]string{"key"},
		),
		loopIterations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "loop_iterations_total",
				Help:      "Total number of started loop iterations",
			},
			[]string{"node"},
		),
		loopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "loops_total",
				Help:      "Total number of finished loops by terminal status",
			},
			[]string{"node", "status"},
		),
	}
}

// Emit implements core.Tracer.
func (p *PrometheusSink) Emit(ev core.Event) {
	switch ev.Type {
	case core.EventNodeExit:
		p.nodesTotal.WithLabelValues(string(ev.Kind), ev.Node, ev.Status).Inc()
		p.nodeDuration.WithLabelValues(string(ev.Kind), ev.Node).Observe(ev.Duration.Seconds())
	case core.EventModelCall:
		m := ev.Metadata["model"]
		p.modelCalls.WithLabelValues(ev.Node, m).Inc()
		p.modelDuration.WithLabelValues(ev.Node, m).Observe(ev.Duration.Seconds())
	case core.EventRetry:
		p.retriesTotal.WithLabelValues(ev.Node, ev.Status).Inc()
	case core.EventToolCall:
		status := "success"
		if ev.Failed() {
			status = "error"
		}
		p.toolCallsTotal.WithLabelValues(ev.Tool, status).Inc()
	case core.EventStateWrite:
		p.stateWrites.WithLabelValues(ev.Key).Inc()
	case core.EventLoopIteration:
		p.loopIterations.WithLabelValues(ev.Node).Inc()
	case core.EventLoopDone:
		p.loopsTotal.WithLabelValues(ev.Node, ev.Status).Inc()
	}
}
