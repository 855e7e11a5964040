// Package metrics defines the raw measurement vocabulary for pagepulse.
// A Record is what the collector hands over for one page; the catalog
// describes every metric the scoring engine knows how to grade.
package metrics

import "encoding/json"

// Kind discriminates the two shapes a measured value can take.
type Kind int

const (
	KindNumber Kind = iota
	KindBool
)

// Value is a single measured fact: a number or a boolean.
// The zero Value is the number 0.
type Value struct {
	kind Kind
	num  float64
	flag bool
}

// Number wraps a numeric measurement.
func Number(v float64) Value {
	return Value{kind: KindNumber, num: v}
}

// Bool wraps a boolean measurement.
func Bool(v bool) Value {
	return Value{kind: KindBool, flag: v}
}

// Kind reports whether the value is numeric or boolean.
func (v Value) Kind() Kind { return v.kind }

// AsNumber returns the numeric value. ok is false for boolean values.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsBool returns the boolean value. ok is false for numeric values.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

// MarshalJSON renders the value as a bare JSON number or boolean.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindBool {
		return json.Marshal(v.flag)
	}
	return json.Marshal(v.num)
}

// UnmarshalJSON accepts a JSON number or boolean. Any other shape
// (string, null, object) degrades to the number 0 rather than failing,
// so one odd field never rejects a whole record.
func (v *Value) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*v = Number(num)
		return nil
	}
	var flag bool
	if err := json.Unmarshal(data, &flag); err == nil {
		*v = Bool(flag)
		return nil
	}
	*v = Number(0)
	return nil
}

// Record maps metric keys to measured values for one page run.
// Records are immutable by convention once handed to the scorer.
type Record map[string]Value

// Lookup returns the value for key and whether it was present.
func (r Record) Lookup(key string) (Value, bool) {
	v, ok := r[key]
	return v, ok
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Page is one measured page as produced by a collector: identity plus
// its metrics record. Weight is the page's relative weight within the
// product aggregate; zero or negative weights are treated as 1.
type Page struct {
	Name    string  `json:"name"`
	URL     string  `json:"url"`
	Weight  float64 `json:"weight,omitempty"`
	Metrics Record  `json:"metrics"`
}

// EffectiveWeight returns the page weight with the default applied.
func (p Page) EffectiveWeight() float64 {
	if p.Weight <= 0 {
		return 1
	}
	return p.Weight
}
