package observability

import (
	"strconv"

	"github.com/rafaeljc/decider/internal/decider"
)

// PrometheusSink records Decider outcomes on ClientOperationsTotal.
type PrometheusSink struct{}

var _ decider.MetricsSink = PrometheusSink{}

// RecordOutcome implements decider.MetricsSink.
func (PrometheusSink) RecordOutcome(o decider.Outcome) {
	ClientOperationsTotal.WithLabelValues(
		o.Operation,
		strconv.FormatBool(o.Success),
		o.ErrorType,
		o.PkgVersion,
	).Inc()
}

// RecordLoad publishes the size of a freshly built Decider.
func RecordLoad(d *decider.Decider) {
	ConfigFeaturesLoaded.Set(float64(len(d.Features())))

	failures := 0
	if pe := d.LoadErrors(); pe != nil {
		failures = len(pe.Failures)
	}
	ConfigLoadFailures.Set(float64(failures))
}
