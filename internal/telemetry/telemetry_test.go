package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndIncrement(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	m.RequestsTotal.WithLabelValues("lookup").Inc()
	m.RequestsTotal.WithLabelValues("lookup").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var got float64
	for _, fam := range families {
		if fam.GetName() != "edenfs_dispatcher_requests_total" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			got += metric.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), got)
}

func TestDoubleRegisterFails(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
