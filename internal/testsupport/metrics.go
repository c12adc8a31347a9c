package testsupport

import (
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// OperationsMetric is the counter fed by the Prometheus outcome sink.
const OperationsMetric = "decider_client_operations_total"

// MetricValue reads a counter or gauge from the default registry. For
// histograms it returns the sample count. Series not matching every label in
// filter are skipped; values of matching series are summed, so a partial
// filter aggregates across the remaining labels.
func MetricValue(t *testing.T, name string, filter map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "failed to gather metrics")

	i := slices.IndexFunc(families, func(mf *dto.MetricFamily) bool { return mf.GetName() == name })
	if i < 0 {
		return 0
	}

	var total float64
	for _, m := range families[i].GetMetric() {
		if !hasLabels(m, filter) {
			continue
		}
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		case m.GetHistogram() != nil:
			total += float64(m.GetHistogram().GetSampleCount())
		}
	}
	return total
}

func hasLabels(m *dto.Metric, filter map[string]string) bool {
	for k, want := range filter {
		found := slices.ContainsFunc(m.GetLabel(), func(p *dto.LabelPair) bool {
			return p.GetName() == k && p.GetValue() == want
		})
		if !found {
			return false
		}
	}
	return true
}

// AssertMetricDelta asserts that fn moves the metric by exactly delta.
func AssertMetricDelta(t *testing.T, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := MetricValue(t, name, labels)
	fn()
	after := MetricValue(t, name, labels)

	assert.Equal(t, delta, after-before, "metric %s%v delta mismatch", name, labels)
}

// AssertMetricDeltaEventually is AssertMetricDelta for work finished by a
// background goroutine, such as a syncer tick.
func AssertMetricDeltaEventually(t *testing.T, name string, labels map[string]string, delta float64, fn func()) {
	t.Helper()

	before := MetricValue(t, name, labels)
	fn()

	require.Eventually(t, func() bool {
		return MetricValue(t, name, labels)-before >= delta
	}, 2*time.Second, 20*time.Millisecond, "metric %s%v never moved by %.0f", name, labels, delta)
}

// AssertHistogramRecorded asserts that the histogram holds at least one sample.
func AssertHistogramRecorded(t *testing.T, name string, labels map[string]string) {
	t.Helper()

	assert.Positive(t, MetricValue(t, name, labels), "histogram %s%v has no samples", name, labels)
}

// OutcomeLabels selects one Decider operation outcome. An empty errorType
// selects the successful series.
func OutcomeLabels(operation, errorType string) map[string]string {
	return map[string]string{
		"operation":  operation,
		"success":    strconv.FormatBool(errorType == ""),
		"error_type": errorType,
	}
}

// AssertOutcomeDelta asserts that fn records delta outcomes of operation
// with errorType, across every pkg_version.
func AssertOutcomeDelta(t *testing.T, operation, errorType string, delta float64, fn func()) {
	t.Helper()

	AssertMetricDelta(t, OperationsMetric, OutcomeLabels(operation, errorType), delta, fn)
}
