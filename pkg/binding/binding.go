// Package binding implements the data-binding helpers generated components rely on:
// contentPath lookups, display conditions, computed expressions, attribute type
// conversion and table reshaping.
//
// Values are expected in the shape encoding/json produces when decoding into any:
// map[string]any, []any, float64, string, bool and nil. Go integer and float kinds are
// accepted wherever a number is.
package binding

import (
	"fmt"
	"math"
	"reflect"
)

// Report levels.
const (
	LevelWarn  = "warn"
	LevelError = "error"
)

// ReportFunc receives user facing problems found while evaluating. It is the place a
// caller hooks its notification mechanism.
type ReportFunc func(level, msg string)

// Evaluator evaluates conditions and expressions, reporting problems through Report.
// The zero value is silent.
type Evaluator struct {
	Report ReportFunc
}

var silent = &Evaluator{}

func (e *Evaluator) reportf(level, format string, args ...any) {
	if e == nil || e.Report == nil {
		return
	}
	e.Report(level, fmt.Sprintf(format, args...))
}

// NaN is the result of every failed evaluation.
func NaN() float64 { return math.NaN() }

// IsNaN reports whether v is a floating point NaN.
func IsNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}

// toNumber reports whether v is a Go numeric kind and returns it as float64.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// validNumber is a number that is not NaN.
func validNumber(v any) (float64, bool) {
	n, ok := toNumber(v)
	if !ok || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// asSlice converts any slice kind except []byte to []any.
func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case Path:
		return []any(s), true
	case nil, []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
