package decider

import (
	"strconv"
	"strings"

	"github.com/rafaeljc/decider/internal/featureconfig"
)

// EventTypeBucketing marks an exposure event: the identifier was assigned a variant.
const EventTypeBucketing = 0

// eventSeparator delimits event fields. Downstream consumers split on it, so
// the field order below is a wire contract.
const eventSeparator = "::::"

// formatEvent renders the audit string for one bucketing:
//
//	type::::id::::name::::version::::variant::::identifier::::bucket_val::::start_ts::::stop_ts::::owner
func formatEvent(f *featureconfig.Feature, variant, identifier string) string {
	fields := [...]string{
		strconv.Itoa(EventTypeBucketing),
		strconv.FormatUint(uint64(f.ID), 10),
		f.Name,
		strconv.FormatUint(uint64(f.FeatureVersion), 10),
		variant,
		identifier,
		f.Experiment.BucketVal,
		strconv.FormatUint(f.StartTS, 10),
		strconv.FormatUint(f.StopTS, 10),
		f.Owner,
	}
	return strings.Join(fields[:], eventSeparator)
}
