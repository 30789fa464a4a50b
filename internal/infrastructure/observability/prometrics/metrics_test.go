package prometrics

import (
	"testing"

	"github.com/Zhima-Mochi/cafeshop/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterRegistersOnceAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "", "")

	c := r.Counter("stock_reservations_total", "help", "strategy", "outcome")
	again := r.Counter("stock_reservations_total", "help", "strategy", "outcome")

	c.Add(1, observability.L("strategy", "atomic"), observability.L("outcome", "reserved"))
	again.Bind(observability.L("strategy", "atomic"), observability.L("outcome", "reserved")).Add(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, 3.0, families[0].GetMetric()[0].GetCounter().GetValue())
}

func TestHistogramDefaultsBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg, "cafeshop", "")

	h := r.Histogram("lock_wait_seconds", "help", nil, "outcome")
	h.Observe(0.2, observability.L("outcome", "acquired"))

	count, err := testutil.GatherAndCount(reg, "cafeshop_lock_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
