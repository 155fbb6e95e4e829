package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.Fill("limit")
	m.Fill("limit")
	m.MarginClose("stop_loss")
	m.Block(7, 3, 2*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Fills.WithLabelValues("limit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MarginCloses.WithLabelValues("stop_loss")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.BlockHeight))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Fill("limit")
		m.LoanDefault()
		m.Block(1, 0, time.Second)
	})
}
