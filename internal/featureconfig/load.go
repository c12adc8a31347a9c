package featureconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rafaeljc/decider/internal/ruleengine"
)

// LoadFile reads and loads the feature document at path.
func LoadFile(path string) (*Table, Failures, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &InitError{Err: err}
	}
	defer f.Close()

	return Load(f)
}

// Load reads a feature document from r.
//
// The returned error is always an *InitError and is reserved for documents that
// cannot be read or whose top level is not a JSON object. Individual features
// that fail decoding or validation are reported in Failures and left out of
// the Table. An empty object yields an empty Table and no failures.
func Load(r io.Reader) (*Table, Failures, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, &InitError{Err: err}
	}
	return LoadBytes(data)
}

// LoadBytes loads a feature document held in memory.
func LoadBytes(data []byte) (*Table, Failures, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil, &InitError{Err: ErrNotObject}
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, nil, &InitError{Err: fmt.Errorf("%w: %v", ErrNotObject, err)}
	}

	features, failures := fold(doc)
	features, refFailures := resolveReferences(features)

	return NewTable(features), failures.merge(refFailures), nil
}

// fold decodes every entry independently, splitting the document into loaded
// features and per-name failure messages.
func fold(doc map[string]json.RawMessage) (map[string]*Feature, Failures) {
	features := make(map[string]*Feature, len(doc))
	failures := make(Failures)

	for key, raw := range doc {
		f, err := parseFeature(raw)
		if err != nil {
			failures[key] = err.Error()
			continue
		}
		features[key] = f
	}

	return features, failures
}

func parseFeature(raw json.RawMessage) (*Feature, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, positionalError(raw)
	}

	obj, err := parseObject(raw, "struct Feature")
	if err != nil {
		return nil, err
	}

	f := &Feature{}
	if f.ID, err = obj.requireU32("id"); err != nil {
		return nil, err
	}
	if f.Name, err = obj.requireString("name"); err != nil {
		return nil, err
	}
	if f.Enabled, err = obj.bool("enabled"); err != nil {
		return nil, err
	}
	if f.Version, err = obj.string("version"); err != nil {
		return nil, err
	}
	if f.StartTS, err = obj.u64("start_ts"); err != nil {
		return nil, err
	}
	if f.StopTS, err = obj.u64("stop_ts"); err != nil {
		return nil, err
	}
	if f.Owner, err = obj.string("owner"); err != nil {
		return nil, err
	}
	if f.EmitEvent, err = obj.bool("emit_event"); err != nil {
		return nil, err
	}

	kind, err := obj.requireString("type")
	if err != nil {
		return nil, err
	}
	f.Kind = Kind(kind)

	switch f.Kind {
	case KindRangeVariant:
		if !obj.has("experiment") {
			return nil, missingField("experiment")
		}
		if f.Experiment, err = parseExperiment(obj["experiment"], f.Kind, ""); err != nil {
			return nil, err
		}
	case KindDynamicConfig:
		if err := parseDynamicValue(obj, f); err != nil {
			return nil, err
		}
	default:
		return nil, &fieldError{msg: fmt.Sprintf("unknown variant `%s`, expected `%s` or `%s`", kind, KindRangeVariant, KindDynamicConfig)}
	}

	if f.Experiment != nil {
		f.FeatureVersion = f.Experiment.ExperimentVersion
	}

	if err := validateFeature(f); err != nil {
		return nil, err
	}

	f.finalize()
	return f, nil
}

func parseDynamicValue(obj object, f *Feature) error {
	vt, err := obj.requireString("value_type")
	if err != nil {
		return err
	}
	f.ValueType = ValueType(vt)

	if !obj.has("value") {
		return missingField("value")
	}
	if f.Value, err = decodeValue(obj["value"], f.ValueType); err != nil {
		return err
	}

	if obj.has("experiment") {
		if f.Experiment, err = parseExperiment(obj["experiment"], f.Kind, f.ValueType); err != nil {
			return err
		}
	}
	return nil
}

// decodeValue checks a dynamic config value against its declared type and
// converts it to the Go representation returned by the typed getters.
func decodeValue(raw json.RawMessage, vt ValueType) (any, error) {
	v, err := decodeAny(raw)
	if err != nil {
		return nil, &fieldError{msg: err.Error()}
	}

	switch vt {
	case ValueBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, invalidType(raw, "a boolean")
	case ValueInteger:
		if n, ok := v.(json.Number); ok {
			if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
				return i, nil
			}
		}
		return nil, invalidType(raw, "i64")
	case ValueFloat:
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		}
		return nil, invalidType(raw, "f64")
	case ValueString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, invalidType(raw, "a string")
	case ValueMap:
		if _, ok := v.(map[string]any); !ok {
			return nil, invalidType(raw, "a map")
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &fieldError{msg: err.Error()}
		}
		return m, nil
	default:
		return nil, &fieldError{msg: fmt.Sprintf("unknown variant `%s`, expected one of `Boolean`, `Integer`, `Float`, `String`, `Map`", vt)}
	}
}

// parseExperiment decodes the experiment block. Dynamic configs only use the
// version, targeting and override fields.
func parseExperiment(raw json.RawMessage, kind Kind, vt ValueType) (*Experiment, error) {
	obj, err := parseObject(raw, "struct Experiment")
	if err != nil {
		return nil, err
	}

	exp := &Experiment{}
	if exp.ExperimentVersion, err = obj.u32("experiment_version"); err != nil {
		return nil, err
	}

	if exp.Targeting, err = ruleengine.CompileTargeting(obj["targeting"]); err != nil {
		return nil, err
	}

	if kind == KindRangeVariant {
		if err := parseBucketing(obj, exp); err != nil {
			return nil, err
		}
	}

	if exp.Overrides, err = parseOverrides(obj["overrides"], kind, vt); err != nil {
		return nil, err
	}

	return exp, nil
}

func parseBucketing(obj object, exp *Experiment) error {
	var err error
	if exp.ShuffleVersion, err = obj.u32("shuffle_version"); err != nil {
		return err
	}
	if exp.BucketVal, err = obj.requireString("bucket_val"); err != nil {
		return err
	}
	if exp.LogBucketing, err = obj.bool("log_bucketing"); err != nil {
		return err
	}
	if exp.Holdout, err = obj.string("holdout"); err != nil {
		return err
	}
	if exp.MutexGroup, err = obj.string("mutex_group"); err != nil {
		return err
	}

	hash, err := obj.string("hash_func")
	if err != nil {
		return err
	}
	if exp.HashFunc, err = ruleengine.ParseHashFunc(hash); err != nil {
		return err
	}

	if !obj.has("variants") {
		return nil
	}
	var rawVariants []json.RawMessage
	if err := json.Unmarshal(obj["variants"], &rawVariants); err != nil {
		return invalidType(obj["variants"], "a sequence")
	}

	exp.Variants = make([]Variant, 0, len(rawVariants))
	for _, rv := range rawVariants {
		v, err := parseVariant(rv)
		if err != nil {
			return err
		}
		exp.Variants = append(exp.Variants, v)
	}
	return nil
}

func parseVariant(raw json.RawMessage) (Variant, error) {
	obj, err := parseObject(raw, "struct Variant")
	if err != nil {
		return Variant{}, err
	}

	var v Variant
	if v.Name, err = obj.requireString("name"); err != nil {
		return Variant{}, err
	}
	if v.RangeStart, err = obj.requireFloat("range_start"); err != nil {
		return Variant{}, err
	}
	if v.RangeEnd, err = obj.requireFloat("range_end"); err != nil {
		return Variant{}, err
	}
	return v, nil
}

// parseOverrides accepts two entry shapes:
//
//	{"<variant>": <targeting>}
//	{"variant": "<variant>", "value": <value>, "targeting": <targeting>}
//
// The second shape is the only one that can force a dynamic config value.
func parseOverrides(raw json.RawMessage, kind Kind, vt ValueType) ([]Override, error) {
	if isNull(raw) {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, invalidType(raw, "a sequence")
	}

	overrides := make([]Override, 0, len(entries))
	for i, entry := range entries {
		obj, err := parseObject(entry, "an override map")
		if err != nil {
			return nil, err
		}

		o, err := parseOverride(obj, kind, vt)
		if err != nil {
			return nil, fmt.Errorf("overrides[%d]: %w", i, err)
		}
		overrides = append(overrides, o)
	}
	return overrides, nil
}

func parseOverride(obj object, kind Kind, vt ValueType) (Override, error) {
	var (
		o   Override
		err error
	)

	if _, structured := obj["targeting"]; !structured {
		if len(obj) != 1 || kind != KindRangeVariant {
			return o, errors.New("expected a single {variant: targeting} entry")
		}
		for name, tree := range obj {
			o.Variant = name
			if o.Targeting, err = ruleengine.CompileTargeting(tree); err != nil {
				return o, err
			}
		}
		return o, nil
	}

	if o.Targeting, err = ruleengine.CompileTargeting(obj["targeting"]); err != nil {
		return o, err
	}
	if o.Variant, err = obj.string("variant"); err != nil {
		return o, err
	}
	if kind == KindDynamicConfig {
		if !obj.has("value") {
			return o, missingField("value")
		}
		if o.Value, err = decodeValue(obj["value"], vt); err != nil {
			return o, err
		}
		o.HasValue = true
	} else if o.Variant == "" {
		return o, missingField("variant")
	}
	return o, nil
}
