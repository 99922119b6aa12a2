package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Evaluated("activeLoan")
	m.Evaluated("activeLoan")
	m.Evaluated("none")
	m.Refreshed("ok", 150*time.Millisecond)
	m.Refreshed("skipped", 0)
	m.Submitted("created")

	expected := `
# HELP lending_eligibility_evaluations_total Eligibility evaluations by resulting reason.
# TYPE lending_eligibility_evaluations_total counter
lending_eligibility_evaluations_total{reason="activeLoan"} 2
lending_eligibility_evaluations_total{reason="none"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lending_eligibility_evaluations_total"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.refreshes.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.submissions.WithLabelValues("created")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.refreshDuration))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Evaluated("none")
		m.Refreshed("ok", time.Second)
		m.Submitted("created")
	})
}
