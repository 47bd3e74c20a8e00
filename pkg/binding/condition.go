package binding

import (
	"math"
	"strconv"
	"strings"
)

type comparator func(a, b any) bool

var comparators = map[string]comparator{
	"==":  looseEqual,
	"===": strictEqual,
	"!=":  func(a, b any) bool { return !looseEqual(a, b) },
	"!==": func(a, b any) bool { return !strictEqual(a, b) },
	"<":   func(a, b any) bool { return compare(a, b, func(c int) bool { return c < 0 }) },
	"<=":  func(a, b any) bool { return compare(a, b, func(c int) bool { return c <= 0 }) },
	">":   func(a, b any) bool { return compare(a, b, func(c int) bool { return c > 0 }) },
	">=":  func(a, b any) bool { return compare(a, b, func(c int) bool { return c >= 0 }) },
}

// EvaluateCondition evaluates cond against data with a silent evaluator.
func EvaluateCondition(cond, data any) bool {
	return silent.EvaluateCondition(cond, data)
}

// EvaluateCondition decides whether a conditional component is shown.
// A nil condition is true, a bool is itself and a [path, operator, value] triple
// compares the value at path with value. A missing path is false.
func (e *Evaluator) EvaluateCondition(cond, data any) bool {
	if cond == nil {
		return true
	}
	if b, ok := cond.(bool); ok {
		return b
	}
	parts, ok := asSlice(cond)
	if !ok {
		e.reportf(LevelWarn, "Invalid condition format: %v", cond)
		return false
	}
	var rawPath, rawOp, want any
	if len(parts) > 0 {
		rawPath = parts[0]
	}
	if len(parts) > 1 {
		rawOp = parts[1]
	}
	if len(parts) > 2 {
		want = parts[2]
	}

	path, ok := ToPath(rawPath)
	if !ok {
		return false
	}
	got, err := Lookup(data, path)
	if err != nil {
		e.reportf(LevelError, "%s", err.Error())
		return false
	}

	op, _ := rawOp.(string)
	cmp, ok := comparators[op]
	if !ok {
		e.reportf(LevelWarn, "Unknown operator: %v", rawOp)
		return false
	}
	return cmp(got, want)
}

func strictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := toNumber(a); ok {
		y, ok := toNumber(b)
		return ok && x == y
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ab, ok := a.(bool); ok {
		return looseEqual(boolNumber(ab), b)
	}
	if bb, ok := b.(bool); ok {
		return looseEqual(a, boolNumber(bb))
	}
	if x, ok := toNumber(a); ok {
		if y, ok := toNumber(b); ok {
			return x == y
		}
		if s, ok := b.(string); ok {
			return x == stringNumber(s)
		}
		return false
	}
	if s, ok := a.(string); ok {
		if t, ok := b.(string); ok {
			return s == t
		}
		if y, ok := toNumber(b); ok {
			return stringNumber(s) == y
		}
	}
	return false
}

// compare orders two values: strings lexically, everything else numerically.
// Comparisons involving NaN are always false.
func compare(a, b any, ok func(int) bool) bool {
	if s, isStr := a.(string); isStr {
		if t, isStr := b.(string); isStr {
			return ok(strings.Compare(s, t))
		}
	}
	x, y := primitiveNumber(a), primitiveNumber(b)
	if math.IsNaN(x) || math.IsNaN(y) {
		return false
	}
	switch {
	case x < y:
		return ok(-1)
	case x > y:
		return ok(1)
	}
	return ok(0)
}

func boolNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func primitiveNumber(v any) float64 {
	if v == nil {
		return 0
	}
	if n, ok := toNumber(v); ok {
		return n
	}
	switch x := v.(type) {
	case bool:
		return boolNumber(x)
	case string:
		return stringNumber(x)
	}
	return math.NaN()
}

// stringNumber converts a whole string to a number the way a browser does for
// comparisons: blank is 0, anything unparsable is NaN.
func stringNumber(s string) float64 {
	t := strings.TrimSpace(s)
	switch t {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	lower := strings.ToLower(t)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		i, err := strconv.ParseInt(t, 0, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(i)
	}
	if strings.ContainsAny(lower, "inx_p") {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
