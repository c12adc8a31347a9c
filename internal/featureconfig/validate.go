package featureconfig

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator caches struct metadata and is safe for concurrent use.
var validate = validator.New()

// validateFeature runs struct-level rules and the checks that span fields.
func validateFeature(f *Feature) error {
	if err := validate.Struct(f); err != nil {
		return validationError(err)
	}

	if f.Kind != KindRangeVariant || f.Experiment == nil {
		return nil
	}

	known := make(map[string]struct{}, len(f.Experiment.Variants))
	for _, v := range f.Experiment.Variants {
		known[v.Name] = struct{}{}
	}
	for i, o := range f.Experiment.Overrides {
		if _, ok := known[o.Variant]; !ok {
			return fmt.Errorf("overrides[%d]: unknown variant %q", i, o.Variant)
		}
	}

	if f.Experiment.Holdout != "" && f.Experiment.Holdout == f.Name {
		return errors.New("holdout cannot reference the feature itself")
	}
	if f.Experiment.MutexGroup != "" && f.Experiment.MutexGroup == f.Name {
		return errors.New("mutex_group cannot reference the feature itself")
	}
	return nil
}

// validationError flattens validator output into a single readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Feature.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s (got %v)", field, rule, fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// resolveReferences drops features whose holdout or mutex_group points at a
// feature that is missing, is not a range_variant, or leads back to itself.
// Each round checks against a stable snapshot; dropping a feature can orphan
// others, so rounds repeat until nothing changes.
func resolveReferences(features map[string]*Feature) (map[string]*Feature, Failures) {
	failures := make(Failures)

	for {
		round := make(Failures)
		for name, f := range features {
			if err := checkReferences(name, f, features); err != nil {
				round[name] = err.Error()
			}
		}

		if len(round) == 0 {
			return features, failures
		}
		for name, msg := range round {
			failures[name] = msg
			delete(features, name)
		}
	}
}

func checkReferences(name string, f *Feature, features map[string]*Feature) error {
	if f.Kind != KindRangeVariant || f.Experiment == nil {
		return nil
	}

	for _, ref := range []struct{ field, target string }{
		{"holdout", f.Experiment.Holdout},
		{"mutex_group", f.Experiment.MutexGroup},
	} {
		if ref.target == "" {
			continue
		}
		parent, ok := features[ref.target]
		if !ok {
			return fmt.Errorf("%s references unknown feature %q", ref.field, ref.target)
		}
		if parent.Kind != KindRangeVariant {
			return fmt.Errorf("%s references %q, which is not a range_variant", ref.field, ref.target)
		}
	}

	if inCycle(name, features) {
		return errors.New("holdout/mutex_group references form a cycle")
	}
	return nil
}

// inCycle walks parent references depth-first looking for start.
func inCycle(start string, features map[string]*Feature) bool {
	visited := make(map[string]bool)

	var walk func(name string) bool
	walk = func(name string) bool {
		f, ok := features[name]
		if !ok || f.Experiment == nil {
			return false
		}
		for _, parent := range []string{f.Experiment.Holdout, f.Experiment.MutexGroup} {
			if parent == "" {
				continue
			}
			if parent == start {
				return true
			}
			if visited[parent] {
				continue
			}
			visited[parent] = true
			if walk(parent) {
				return true
			}
		}
		return false
	}

	return walk(start)
}
