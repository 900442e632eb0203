package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"energy-dispatch/internal/data"
	"energy-dispatch/internal/sequence"

	"gopkg.in/yaml.v3"
)

// Value is a parameter given as a number, a list of numbers or "@column",
// a reference to a column of the series file.
type Value struct {
	seq sequence.Sequence
	ref string
}

// Number is a scalar Value.
func Number(v float64) Value { return Value{seq: sequence.Scalar(v)} }

// List is a per-step Value.
func List(vs ...float64) Value { return Value{seq: sequence.FromSlice(vs)} }

// Column refers to a series column.
func Column(name string) Value { return Value{ref: name} }

func (v Value) IsSet() bool { return v.seq.IsSet() || v.ref != "" }

// IsZero lets omitempty drop unset values.
func (v Value) IsZero() bool { return !v.IsSet() }

// Ref is the referenced column or "".
func (v Value) Ref() string { return v.ref }

func (v Value) resolve(series data.Series) (sequence.Sequence, error) {
	if v.ref == "" {
		return v.seq, nil
	}
	if series == nil {
		return sequence.Sequence{}, fmt.Errorf("@%s: no series data loaded", v.ref)
	}
	col, err := series.Column(v.ref)
	if err != nil {
		return sequence.Sequence{}, err
	}
	return sequence.FromSlice(col), nil
}

func parseRef(s string) (string, error) {
	if !strings.HasPrefix(s, "@") || len(s) < 2 {
		return "", fmt.Errorf("expected a number, a list of numbers or @column, got %q", s)
	}
	return s[1:], nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		ref, err := parseRef(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*v = Value{ref: ref}
		return nil
	}
	var s sequence.Sequence
	if err := s.UnmarshalYAML(node); err != nil {
		return err
	}
	*v = Value{seq: s}
	return nil
}

func (v Value) MarshalYAML() (any, error) {
	if v.ref != "" {
		return "@" + v.ref, nil
	}
	return v.seq.MarshalYAML()
}

func (v *Value) UnmarshalJSON(raw []byte) error {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		ref, err := parseRef(str)
		if err != nil {
			return err
		}
		*v = Value{ref: ref}
		return nil
	}
	var s sequence.Sequence
	if err := s.UnmarshalJSON(raw); err != nil {
		return err
	}
	*v = Value{seq: s}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.ref != "" {
		return json.Marshal("@" + v.ref)
	}
	return v.seq.MarshalJSON()
}

// resolver turns Values into sequences and keeps the first error.
type resolver struct {
	series data.Series
	err    error
}

func (r *resolver) seq(field string, v Value) sequence.Sequence {
	if r.err != nil {
		return sequence.Sequence{}
	}
	s, err := v.resolve(r.series)
	if err != nil {
		r.err = fmt.Errorf("%s: %w", field, err)
	}
	return s
}

// custom copies custom attributes, resolving "@column" strings to series.
// Other values pass through unchanged.
func (r *resolver) custom(field string, in map[string]any) map[string]any {
	if in == nil || r.err != nil {
		return in
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "@") {
			name, err := parseRef(s)
			if err != nil {
				r.err = fmt.Errorf("%s.%s: %w", field, k, err)
				return nil
			}
			out[k] = r.seq(field+"."+k, Column(name))
			continue
		}
		out[k] = v
	}
	return out
}
