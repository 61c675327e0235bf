// Package component implements the per-component task engine described
// in spec §4.5: attribute metadata, task validation, and the worker
// state machine (IDLE/PREPARE/RUNNING/DONE/MEASURE) that every driver
// process instantiates once per registered Component.
package component

import (
	"fmt"

	"github.com/hashicorp/go-set/v3"
)

// Kind is the closed set of physical/numeric kinds the task validator
// understands, replacing the source's duck-typed attribute values
// (spec §9).
type Kind string

const (
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindString Kind = "string"
)

// Attr is a named, typed, possibly-bounded, optionally read-write
// property of a Component (spec §4.5, §9).
type Attr struct {
	Name         string
	Kind         Kind
	ReadWrite    bool
	StatusTagged bool // included in cmp_status output
	Units        string
	Min          *float64
	Max          *float64
	AllowedSet   *set.Set[string] // nil means unrestricted
}

// Coerce converts val to the Attr's Kind: int/int64/integral float64 for
// integer kinds, float64/int for float kinds. Strings are not parsed, so
// "5" is rejected for a numeric kind.
func (a Attr) Coerce(val any) (any, error) {
	if val == nil {
		return nil, fmt.Errorf("val is none")
	}
	switch a.Kind {
	case KindInt:
		switch v := val.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
			return nil, fmt.Errorf("val %v is not an integer", val)
		default:
			return nil, fmt.Errorf("val %v has wrong type for attr %q", val, a.Name)
		}
	case KindFloat:
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		default:
			return nil, fmt.Errorf("val %v has wrong type for attr %q", val, a.Name)
		}
	case KindBool:
		v, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("val %v has wrong type for attr %q", val, a.Name)
		}
		return v, nil
	case KindString:
		v, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("val %v has wrong type for attr %q", val, a.Name)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("attr %q has unknown kind %q", a.Name, a.Kind)
	}
}

// Validate applies coercion plus bounds/allowed-set checks, the Go form
// of spec §4.5.1's value-validation clause.
func (a Attr) Validate(val any) (any, error) {
	if !a.ReadWrite {
		return nil, fmt.Errorf("attr %q is not writable", a.Name)
	}
	coerced, err := a.Coerce(val)
	if err != nil {
		return nil, err
	}
	if a.Min != nil || a.Max != nil {
		f, ok := asFloat(coerced)
		if ok {
			if a.Min != nil && f < *a.Min {
				return nil, fmt.Errorf("val %v is smaller than %v", coerced, *a.Min)
			}
			if a.Max != nil && f > *a.Max {
				return nil, fmt.Errorf("val %v is greater than %v", coerced, *a.Max)
			}
		}
	}
	if a.AllowedSet != nil {
		s, ok := coerced.(string)
		if ok && !a.AllowedSet.Contains(s) {
			return nil, fmt.Errorf("val %v is not in the allowed set", coerced)
		}
	}
	return coerced, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
