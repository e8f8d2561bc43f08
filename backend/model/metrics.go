package model

import "github.com/prometheus/client_golang/prometheus"

type providerMetrics struct {
	invocations  *prometheus.CounterVec
	failures     *prometheus.CounterVec
	inputTokens  *prometheus.CounterVec
	outputTokens *prometheus.CounterVec
}

func newProviderMetrics(registry *prometheus.Registry) *providerMetrics {
	if registry == nil {
		return nil
	}

	metrics := &providerMetrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_invocations_total",
				Help: "Total number of model invocations by provider and model",
			},
			[]string{"provider", "model"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_invocation_failures_total",
				Help: "Total number of failed model invocations by provider and error kind",
			},
			[]string{"provider", "kind"},
		),
		inputTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_input_tokens_total",
				Help: "Total input tokens consumed by provider and model",
			},
			[]string{"provider", "model"},
		),
		outputTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_output_tokens_total",
				Help: "Total output tokens produced by provider and model",
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		metrics.invocations,
		metrics.failures,
		metrics.inputTokens,
		metrics.outputTokens,
	)

	return metrics
}

func (m *providerMetrics) ObserveInvocation(provider, model string, usage Usage) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(provider, model).Inc()
	m.inputTokens.WithLabelValues(provider, model).Add(float64(usage.InputTokens))
	m.outputTokens.WithLabelValues(provider, model).Add(float64(usage.OutputTokens))
}

func (m *providerMetrics) ObserveFailure(provider string, kind ProviderErrorKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(provider, string(kind)).Inc()
}
