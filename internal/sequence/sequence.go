package sequence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

// Sequence is a time-indexed parameter that is either a scalar broadcast to
// every index or an explicit vector. The zero value is unset.
type Sequence struct {
	values []float64
	scalar float64
	kind   kind
}

type kind uint8

const (
	unset kind = iota
	scalarKind
	vectorKind
)

// Scalar returns a sequence reporting v at every index.
func Scalar(v float64) Sequence {
	return Sequence{scalar: v, kind: scalarKind}
}

// Of returns a vector sequence holding vs.
func Of(vs ...float64) Sequence {
	return FromSlice(vs)
}

// FromSlice copies vs into a vector sequence. A nil or empty slice yields an
// unset sequence.
func FromSlice(vs []float64) Sequence {
	if len(vs) == 0 {
		return Sequence{}
	}
	cp := make([]float64, len(vs))
	copy(cp, vs)
	return Sequence{values: cp, kind: vectorKind}
}

// FromAny converts a loosely typed value, as found in decoded documents and
// custom attributes, into a sequence. Accepted are numbers, numeric slices,
// []any of numbers and Sequence itself.
func FromAny(v any) (Sequence, error) {
	switch x := v.(type) {
	case Sequence:
		return x, nil
	case *Sequence:
		if x == nil {
			return Sequence{}, errors.New("nil sequence")
		}
		return *x, nil
	case []float64:
		return FromSlice(x), nil
	case []int:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return FromSlice(out), nil
	case []any:
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := number(e)
			if !ok {
				return Sequence{}, fmt.Errorf("entry %d: expected a number, got %T", i, e)
			}
			out[i] = f
		}
		return FromSlice(out), nil
	}
	if f, ok := number(v); ok {
		return Scalar(f), nil
	}
	return Sequence{}, fmt.Errorf("expected a number or a list of numbers, got %T", v)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func (s Sequence) IsSet() bool    { return s.kind != unset }
func (s Sequence) IsScalar() bool { return s.kind == scalarKind }

// Len is the vector length, -1 for scalars and 0 when unset.
func (s Sequence) Len() int {
	switch s.kind {
	case scalarKind:
		return -1
	case vectorKind:
		return len(s.values)
	}
	return 0
}

// At returns the value at index t. Indices past the end of a vector return
// the last element so that timepoint N of a length-N vector is defined.
// An unset sequence returns 0.
func (s Sequence) At(t int) float64 {
	switch s.kind {
	case scalarKind:
		return s.scalar
	case vectorKind:
		if t < 0 {
			t = 0
		}
		if t >= len(s.values) {
			return s.values[len(s.values)-1]
		}
		return s.values[t]
	}
	return 0
}

// Or returns s when set and def otherwise.
func (s Sequence) Or(def Sequence) Sequence {
	if s.IsSet() {
		return s
	}
	return def
}

// OrScalar returns s when set and Scalar(v) otherwise.
func (s Sequence) OrScalar(v float64) Sequence {
	return s.Or(Scalar(v))
}

// Values materialises the first n entries.
func (s Sequence) Values(n int) []float64 {
	out := make([]float64, n)
	for t := range out {
		out[t] = s.At(t)
	}
	return out
}

// Max of a vector, or the scalar itself. Unset sequences report 0.
func (s Sequence) Max() float64 {
	switch s.kind {
	case scalarKind:
		return s.scalar
	case vectorKind:
		return floats.Max(s.values)
	}
	return 0
}

func (s Sequence) Min() float64 {
	switch s.kind {
	case scalarKind:
		return s.scalar
	case vectorKind:
		return floats.Min(s.values)
	}
	return 0
}

// Sum over the first n indices.
func (s Sequence) Sum(n int) float64 {
	if s.kind == scalarKind {
		return s.scalar * float64(n)
	}
	return floats.Sum(s.Values(n))
}

// AllZero reports whether every entry is zero. Unset sequences are zero.
func (s Sequence) AllZero() bool {
	switch s.kind {
	case scalarKind:
		return s.scalar == 0
	case vectorKind:
		for _, v := range s.values {
			if v != 0 {
				return false
			}
		}
	}
	return true
}

// CheckLength verifies a vector holds exactly n entries. Scalars and unset
// sequences always pass.
func (s Sequence) CheckLength(n int) error {
	if s.kind == vectorKind && len(s.values) != n {
		return fmt.Errorf("sequence has %d entries, want %d", len(s.values), n)
	}
	return nil
}

// CheckFinite rejects NaN and infinite entries.
func (s Sequence) CheckFinite() error {
	switch s.kind {
	case scalarKind:
		if math.IsNaN(s.scalar) || math.IsInf(s.scalar, 0) {
			return errors.New("value must be finite")
		}
	case vectorKind:
		for i, v := range s.values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("entry %d must be finite", i)
			}
		}
	}
	return nil
}

// InRange checks every entry lies in [lo, hi].
func (s Sequence) InRange(lo, hi float64) bool {
	if !s.IsSet() {
		return true
	}
	return s.Min() >= lo && s.Max() <= hi
}

func (s Sequence) String() string {
	switch s.kind {
	case scalarKind:
		return fmt.Sprintf("%g", s.scalar)
	case vectorKind:
		return fmt.Sprintf("%v", s.values)
	}
	return "<unset>"
}

func (s *Sequence) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*s = Sequence{}
			return nil
		}
		var v float64
		if err := value.Decode(&v); err != nil {
			return err
		}
		*s = Scalar(v)
		return nil
	case yaml.SequenceNode:
		var vs []float64
		if err := value.Decode(&vs); err != nil {
			return err
		}
		*s = FromSlice(vs)
		return nil
	}
	return fmt.Errorf("line %d: expected a number or a list of numbers", value.Line)
}

func (s Sequence) MarshalYAML() (any, error) {
	switch s.kind {
	case scalarKind:
		return s.scalar, nil
	case vectorKind:
		return s.values, nil
	}
	return nil, nil
}

func (s *Sequence) UnmarshalJSON(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*s = Sequence{}
	case float64:
		*s = Scalar(x)
	case []any:
		vs := make([]float64, len(x))
		for i, e := range x {
			f, ok := e.(float64)
			if !ok {
				return fmt.Errorf("entry %d is not a number", i)
			}
			vs[i] = f
		}
		*s = FromSlice(vs)
	default:
		return errors.New("expected a number or a list of numbers")
	}
	return nil
}

func (s Sequence) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case scalarKind:
		return json.Marshal(s.scalar)
	case vectorKind:
		return json.Marshal(s.values)
	}
	return []byte("null"), nil
}
