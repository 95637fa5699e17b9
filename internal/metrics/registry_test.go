package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegister_ReusesExistingCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	opts := prometheus.CounterOpts{Name: "outlet_test_total", Help: "test"}

	first := Register(registry, prometheus.NewCounter(opts))
	second := Register(registry, prometheus.NewCounter(opts))
	require.Same(t, first, second)

	second.Inc()
	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, 1.0, families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestRegister_NilRegistererKeepsCollector(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "outlet_unregistered_total", Help: "test"})
	require.Same(t, counter, Register(nil, counter))
}
