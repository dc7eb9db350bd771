package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetricsIdempotent(t *testing.T) {
	require.NotPanics(t, func() {
		InitMetrics()
		InitMetrics()
	})

	PacketsCaptured.WithLabelValues("mon0").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(PacketsCaptured.WithLabelValues("mon0")))
}

func TestInitTracerReturnsShutdown(t *testing.T) {
	shutdown, err := InitTracer("kismetd", "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
