// Package decider is the public facade of the feature decision engine.
//
// A Decider owns one immutable feature table. Every operation is a bounded,
// in-memory computation: no I/O happens after construction and no locks are
// taken, so a single Decider can serve any number of goroutines.
package decider

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/rafaeljc/decider/internal/featureconfig"
	"github.com/rafaeljc/decider/internal/ruleengine"
)

// Decider evaluates features against request contexts.
type Decider struct {
	table      *featureconfig.Table
	loadErrors *PartialLoadError

	logger    *slog.Logger
	metrics   MetricsSink
	overrides OverrideStore
	now       func() time.Time
}

// New loads a feature document from r.
//
// It fails only with an *InitError. Features that fail to load are logged as a
// single warning and reported by LoadErrors; the Decider serves the rest.
func New(r io.Reader, opts ...Option) (*Decider, error) {
	return build(opts, func() (*featureconfig.Table, featureconfig.Failures, error) {
		return featureconfig.Load(r)
	})
}

// NewFromFile loads the feature document at path.
func NewFromFile(path string, opts ...Option) (*Decider, error) {
	return build(opts, func() (*featureconfig.Table, featureconfig.Failures, error) {
		return featureconfig.LoadFile(path)
	})
}

// NewFromBytes loads a feature document held in memory.
func NewFromBytes(data []byte, opts ...Option) (*Decider, error) {
	return build(opts, func() (*featureconfig.Table, featureconfig.Failures, error) {
		return featureconfig.LoadBytes(data)
	})
}

type loadFunc func() (*featureconfig.Table, featureconfig.Failures, error)

func build(opts []Option, load loadFunc) (*Decider, error) {
	d := &Decider{
		logger:  slog.Default(),
		metrics: noopMetrics{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	table, failures, err := load()
	if err != nil {
		d.record(OpInit, ErrTypeInitException)
		return nil, err
	}
	d.table = table

	if len(failures) > 0 {
		d.loadErrors = &PartialLoadError{Failures: failures}
		d.logger.Warn(d.loadErrors.Error(),
			slog.Int("failed", len(failures)),
			slog.Int("loaded", table.Len()),
		)
		d.record(OpInit, ErrTypePartialInitException)
		return d, nil
	}

	d.record(OpInit, "")
	return d, nil
}

// LoadErrors returns the features excluded at load time, or nil.
func (d *Decider) LoadErrors() *PartialLoadError {
	return d.loadErrors
}

// Features returns the loaded feature names in sorted order.
func (d *Decider) Features() []string {
	return d.table.Names()
}

// Choose evaluates a single feature. It is strict: any context problem,
// including a missing bucketing identifier, is returned as an error.
func (d *Decider) Choose(name string, fields map[string]any) (Decision, error) {
	if fields == nil {
		d.record(OpChoose, ErrTypeMissingContext)
		return Decision{}, &MissingContextError{Feature: name}
	}

	ctx, err := ruleengine.NewContext(fields)
	if err != nil {
		d.record(OpChoose, ErrTypeInvalidContext)
		return Decision{}, &InvalidContextError{Err: err}
	}

	f, ok := d.table.Get(name)
	if !ok {
		d.record(OpChoose, ErrTypeFeatureNotFound)
		return Decision{}, &FeatureNotFoundError{Name: name}
	}

	decision, err := d.evaluate(f, ctx, d.now().Unix())
	if err != nil {
		d.record(OpChoose, ErrTypeDeciderException)
		return Decision{}, err
	}

	d.record(OpChoose, "")
	return decision, nil
}

// ChooseAll evaluates every active range_variant feature. When
// bucketingFieldFilter is set, only features bucketing on that field are
// evaluated. It is lenient: features that fail for this context are left out
// of the result, while features assigned no variant are included.
func (d *Decider) ChooseAll(fields map[string]any, bucketingFieldFilter string) (map[string]Decision, error) {
	if fields == nil {
		d.record(OpChooseAll, ErrTypeMissingContext)
		return nil, &MissingContextError{}
	}

	ctx, err := ruleengine.NewContext(fields)
	if err != nil {
		d.record(OpChooseAll, ErrTypeInvalidContext)
		return nil, &InvalidContextError{Err: err}
	}

	now := d.now().Unix()
	out := make(map[string]Decision)

	for _, name := range d.table.Names() {
		f, _ := d.table.Get(name)
		if f.Kind != featureconfig.KindRangeVariant || !f.Active(now) {
			continue
		}
		if bucketingFieldFilter != "" && f.Experiment.BucketVal != bucketingFieldFilter {
			continue
		}

		decision, err := d.evaluate(f, ctx, now)
		if err != nil {
			d.logger.Debug("excluding feature from choose_all",
				slog.String("feature", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		out[name] = decision
	}

	d.record(OpChooseAll, "")
	return out, nil
}

// GetBool returns the value of a Boolean dynamic config.
func (d *Decider) GetBool(name string, fields map[string]any) (bool, error) {
	v, err := d.getValue(OpGetBool, name, fields, featureconfig.ValueBoolean)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// GetInt returns the value of an Integer dynamic config.
func (d *Decider) GetInt(name string, fields map[string]any) (int64, error) {
	v, err := d.getValue(OpGetInt, name, fields, featureconfig.ValueInteger)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// GetFloat returns the value of a Float dynamic config.
func (d *Decider) GetFloat(name string, fields map[string]any) (float64, error) {
	v, err := d.getValue(OpGetFloat, name, fields, featureconfig.ValueFloat)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// GetString returns the value of a String dynamic config.
func (d *Decider) GetString(name string, fields map[string]any) (string, error) {
	v, err := d.getValue(OpGetString, name, fields, featureconfig.ValueString)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetMap returns the value of a Map dynamic config.
func (d *Decider) GetMap(name string, fields map[string]any) (map[string]any, error) {
	v, err := d.getValue(OpGetMap, name, fields, featureconfig.ValueMap)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// getValue resolves a dynamic config of the requested type. Inactive or
// targeted-out configs resolve to the type's zero value.
func (d *Decider) getValue(op, name string, fields map[string]any, want featureconfig.ValueType) (any, error) {
	if fields == nil {
		d.record(op, ErrTypeMissingContext)
		return nil, &MissingContextError{Feature: name}
	}

	ctx, err := ruleengine.NewContext(fields)
	if err != nil {
		d.record(op, ErrTypeInvalidContext)
		return nil, &InvalidContextError{Err: err}
	}

	f, ok := d.table.Get(name)
	if !ok {
		d.record(op, ErrTypeFeatureNotFound)
		return nil, &FeatureNotFoundError{Name: name}
	}

	if f.Kind != featureconfig.KindDynamicConfig || f.ValueType != want {
		actual := string(f.ValueType)
		if f.Kind != featureconfig.KindDynamicConfig {
			actual = string(f.Kind)
		}
		d.record(op, ErrTypeTypeMismatch)
		return nil, &ValueTypeMismatchError{Feature: name, Requested: want, Actual: actual}
	}

	decision, err := d.evaluate(f, ctx, d.now().Unix())
	if err != nil {
		d.record(op, ErrTypeDeciderException)
		return nil, err
	}

	d.record(op, "")
	if decision.Value == nil {
		return want.ZeroValue(), nil
	}
	return decision.Value, nil
}

// AllValues resolves every dynamic config. It never fails per feature: a
// config that cannot be resolved for this context reports its zero value.
func (d *Decider) AllValues(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		d.record(OpAllValues, ErrTypeMissingContext)
		return nil, &MissingContextError{}
	}

	ctx, err := ruleengine.NewContext(fields)
	if err != nil {
		d.record(OpAllValues, ErrTypeInvalidContext)
		return nil, &InvalidContextError{Err: err}
	}

	now := d.now().Unix()
	out := make(map[string]any)

	for _, name := range d.table.Names() {
		f, _ := d.table.Get(name)
		if f.Kind != featureconfig.KindDynamicConfig {
			continue
		}

		decision, err := d.evaluate(f, ctx, now)
		if err != nil || decision.Value == nil {
			out[name] = f.ValueType.ZeroValue()
			continue
		}
		out[name] = decision.Value
	}

	d.record(OpAllValues, "")
	return out, nil
}

// record reports one operation outcome; an empty errType means success.
func (d *Decider) record(op, errType string) {
	d.metrics.RecordOutcome(Outcome{
		Operation:  op,
		Success:    errType == "",
		ErrorType:  errType,
		PkgVersion: Version,
	})
}

// ErrorType classifies an error returned by a Decider into the error type
// recorded in Outcomes. It returns "" for nil.
func ErrorType(err error) string {
	var (
		notFound *FeatureNotFoundError
		mismatch *ValueTypeMismatchError
		invalid  *InvalidContextError
		initErr  *InitError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingContext):
		return ErrTypeMissingContext
	case errors.As(err, &invalid):
		return ErrTypeInvalidContext
	case errors.As(err, &notFound):
		return ErrTypeFeatureNotFound
	case errors.As(err, &mismatch):
		return ErrTypeTypeMismatch
	case errors.As(err, &initErr):
		return ErrTypeInitException
	case errors.Is(err, ErrDecider):
		return ErrTypeDeciderException
	default:
		return ErrTypeException
	}
}
