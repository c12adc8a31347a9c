package decider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rafaeljc/decider/internal/featureconfig"
	"github.com/rafaeljc/decider/internal/ruleengine"
)

// evaluation carries the state of one feature moving through the pipeline.
type evaluation struct {
	feature  *featureconfig.Feature
	ctx      *ruleengine.Context
	now      int64
	decision Decision
}

// stage is one step of the decision pipeline. A stage returning done=true
// finalizes the decision; later stages are skipped.
type stage interface {
	name() string
	appliesTo(kind featureconfig.Kind) bool
	apply(d *Decider, ev *evaluation) (done bool, err error)
}

// pipeline is the fixed stage order. Overrides run before targeting so that
// forced assignments bypass every gate except the feature being active.
var pipeline = []stage{
	activeStage{},
	overridesStage{},
	targetingStage{},
	holdoutStage{},
	mutexGroupStage{},
	fractionalAvailabilityStage{},
	valueStage{},
}

// evaluate runs the pipeline for one feature.
func (d *Decider) evaluate(f *featureconfig.Feature, ctx *ruleengine.Context, now int64) (Decision, error) {
	ev := &evaluation{
		feature: f,
		ctx:     ctx,
		now:     now,
		decision: Decision{
			FeatureID:      f.ID,
			FeatureName:    f.Name,
			FeatureVersion: f.FeatureVersion,
			Events:         []string{},
		},
	}

	for _, s := range pipeline {
		if !s.appliesTo(f.Kind) {
			continue
		}
		done, err := s.apply(d, ev)
		if err != nil {
			return Decision{}, &EvaluationError{Feature: f.Name, Err: err}
		}
		if done {
			d.logger.LogAttrs(context.Background(), slog.LevelDebug, "decision finalized",
				slog.String("feature", f.Name),
				slog.String("stage", s.name()),
			)
			break
		}
	}

	return ev.decision, nil
}

// activeStage stops disabled and out-of-window features before anything else.
type activeStage struct{}

func (activeStage) name() string                      { return "active" }
func (activeStage) appliesTo(featureconfig.Kind) bool { return true }

func (activeStage) apply(_ *Decider, ev *evaluation) (bool, error) {
	return !ev.feature.Active(ev.now), nil
}

// overridesStage applies out-of-band overrides first, then the overrides
// declared in the feature's experiment block. Overrides never emit events.
type overridesStage struct{}

func (overridesStage) name() string                      { return "overrides" }
func (overridesStage) appliesTo(featureconfig.Kind) bool { return true }

func (s overridesStage) apply(d *Decider, ev *evaluation) (bool, error) {
	f := ev.feature

	if d.overrides != nil {
		if identifier, err := ev.ctx.Identifier(overrideField(f)); err == nil {
			if o, ok := d.overrides.Lookup(f.Name, identifier); ok && s.assign(d, ev, o) {
				return true, nil
			}
		}
	}

	if f.Experiment == nil {
		return false, nil
	}
	for _, o := range f.Experiment.Overrides {
		if ruleengine.Evaluate(o.Targeting, ev.ctx) {
			s.assign(d, ev, Override{Variant: o.Variant, Value: o.Value, HasValue: o.HasValue})
			return true, nil
		}
	}
	return false, nil
}

// assign reports whether the override could be applied to the feature.
func (overridesStage) assign(d *Decider, ev *evaluation, o Override) bool {
	f := ev.feature

	if f.Kind == featureconfig.KindDynamicConfig {
		if !o.HasValue {
			return false
		}
		v, ok := featureconfig.Coerce(f.ValueType, o.Value)
		if !ok {
			d.logger.Debug("ignoring override with mismatched value type",
				slog.String("feature", f.Name),
				slog.String("value_type", string(f.ValueType)),
			)
			return false
		}
		ev.decision.Value = featureconfig.CloneValue(v)
		return true
	}

	if o.Variant == "" {
		return false
	}
	if !hasVariant(f.Experiment, o.Variant) {
		d.logger.Debug("ignoring override of unknown variant",
			slog.String("feature", f.Name),
			slog.String("variant", o.Variant),
		)
		return false
	}
	ev.decision.Variant = o.Variant
	return true
}

func hasVariant(exp *featureconfig.Experiment, name string) bool {
	if exp == nil {
		return false
	}
	for _, v := range exp.Variants {
		if v.Name == name {
			return true
		}
	}
	return false
}

// overrideField is the context field used to key out-of-band overrides.
// Dynamic configs have no bucket_val and are keyed by user.
func overrideField(f *featureconfig.Feature) string {
	if f.Kind == featureconfig.KindRangeVariant {
		return f.Experiment.BucketVal
	}
	return "user_id"
}

// targetingStage stops features whose targeting tree rejects the context.
type targetingStage struct{}

func (targetingStage) name() string                      { return "targeting" }
func (targetingStage) appliesTo(featureconfig.Kind) bool { return true }

func (targetingStage) apply(_ *Decider, ev *evaluation) (bool, error) {
	return !ruleengine.Evaluate(ev.feature.Targeting(), ev.ctx), nil
}

// holdoutStage evaluates the referenced holdout feature; a context assigned
// any holdout variant is excluded from this experiment.
type holdoutStage struct{}

func (holdoutStage) name() string { return "holdout" }

func (holdoutStage) appliesTo(kind featureconfig.Kind) bool {
	return kind == featureconfig.KindRangeVariant
}

func (holdoutStage) apply(d *Decider, ev *evaluation) (bool, error) {
	parent, ok := d.parent(ev.feature.Experiment.Holdout)
	if !ok {
		return false, nil
	}

	pd, err := d.evaluate(parent, ev.ctx, ev.now)
	if err != nil {
		return false, unwrapEvaluation(err)
	}
	return pd.HasVariant(), nil
}

// mutexGroupStage evaluates the referenced group; the context stays in this
// experiment only when the group assigned the variant named after it.
type mutexGroupStage struct{}

func (mutexGroupStage) name() string { return "mutex_group" }

func (mutexGroupStage) appliesTo(kind featureconfig.Kind) bool {
	return kind == featureconfig.KindRangeVariant
}

func (mutexGroupStage) apply(d *Decider, ev *evaluation) (bool, error) {
	group, ok := d.parent(ev.feature.Experiment.MutexGroup)
	if !ok {
		return false, nil
	}

	gd, err := d.evaluate(group, ev.ctx, ev.now)
	if err != nil {
		return false, unwrapEvaluation(err)
	}
	return gd.Variant != ev.feature.Name, nil
}

// fractionalAvailabilityStage buckets the identifier and picks the variant.
type fractionalAvailabilityStage struct{}

func (fractionalAvailabilityStage) name() string { return "fractional_availability" }

func (fractionalAvailabilityStage) appliesTo(kind featureconfig.Kind) bool {
	return kind == featureconfig.KindRangeVariant
}

func (fractionalAvailabilityStage) apply(d *Decider, ev *evaluation) (bool, error) {
	f := ev.feature
	exp := f.Experiment

	identifier, err := ev.ctx.Identifier(exp.BucketVal)
	if err != nil {
		return false, err
	}

	bucket := ruleengine.Bucket(f.Seed(), identifier, exp.HashFunc)
	idx := ruleengine.Locate(exp.Ranges(), bucket)
	if exp.LogBucketing {
		d.logger.Debug("bucketed identifier",
			slog.String("feature", f.Name),
			slog.String("identifier", identifier),
			slog.Int("bucket", bucket),
			slog.Int("range_index", idx),
		)
	}
	if idx < 0 {
		return true, nil
	}

	variant := exp.Variants[idx].Name
	ev.decision.Variant = variant
	if f.EmitEvent {
		ev.decision.Events = append(ev.decision.Events, formatEvent(f, variant, identifier))
	}
	return true, nil
}

// valueStage resolves a dynamic config to its configured value.
type valueStage struct{}

func (valueStage) name() string { return "value" }

func (valueStage) appliesTo(kind featureconfig.Kind) bool {
	return kind == featureconfig.KindDynamicConfig
}

func (valueStage) apply(_ *Decider, ev *evaluation) (bool, error) {
	ev.decision.Value = featureconfig.CloneValue(ev.feature.Value)
	return true, nil
}

func (d *Decider) parent(name string) (*featureconfig.Feature, bool) {
	if name == "" {
		return nil, false
	}
	return d.table.Get(name)
}

// unwrapEvaluation avoids nesting EvaluationErrors when a parent feature fails.
func unwrapEvaluation(err error) error {
	var ee *EvaluationError
	if errors.As(err, &ee) {
		return ee.Err
	}
	return err
}
