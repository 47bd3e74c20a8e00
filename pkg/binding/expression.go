package binding

import (
	"math"
	"sort"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Operators recognised at the head of an expression array.
var operators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true,
	"sum": true, "mean": true, "max": true, "min": true,
	"round": true, "sortasc": true, "sortdesc": true,
	"reverse": true, "length": true, "slice": true,
}

func operatorOf(items []any) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	head, ok := items[0].(string)
	if !ok {
		return "", false
	}
	op := strings.ToLower(head)
	return op, operators[op]
}

// Evaluate computes expr against data with a silent evaluator.
func Evaluate(expr, data any) any {
	return silent.Evaluate(expr, data)
}

// Evaluate computes a computed-attribute expression.
//
// Numbers and strings evaluate to themselves. An array whose first element is an
// operator is an operation over the remaining elements; any other array is a path into
// data. Every failure evaluates to NaN.
func (e *Evaluator) Evaluate(expr, data any) any {
	if s, ok := expr.(string); ok {
		return s
	}
	if n, ok := toNumber(expr); ok {
		return n
	}
	items, ok := asSlice(expr)
	if !ok {
		e.reportf(LevelError, "Unsupported expression type: %T (%v)", expr, expr)
		return NaN()
	}
	if len(items) == 0 {
		e.reportf(LevelError, "Cannot evaluate empty array expression.")
		return NaN()
	}
	op, isOp := operatorOf(items)
	if !isOp {
		v, err := Lookup(data, Path(items))
		if err != nil {
			e.reportf(LevelError, "%s", err.Error())
			return NaN()
		}
		return v
	}

	operands := make([]any, 0, len(items)-1)
	for _, raw := range items[1:] {
		operands = append(operands, e.resolveOperand(raw, data))
	}

	switch op {
	case "sum", "mean", "max", "min":
		return aggregate(op, operands)
	case "+", "-", "*", "/":
		return arithmetic(op, operands)
	case "sortasc", "sortdesc":
		return e.sortOp(op, operands)
	case "reverse":
		return reverseOp(operands)
	case "length":
		return lengthOp(operands)
	case "round":
		return roundOp(operands)
	case "slice":
		return e.sliceOp(operands)
	}
	return NaN()
}

func (e *Evaluator) resolveOperand(raw, data any) any {
	if s, ok := raw.(string); ok {
		return s
	}
	if n, ok := toNumber(raw); ok {
		return n
	}
	if items, ok := asSlice(raw); ok {
		if len(items) == 0 {
			e.reportf(LevelError, "Empty array encountered as operand.")
			return []any{}
		}
		if _, isOp := operatorOf(items); isOp {
			return e.Evaluate(items, data)
		}
		v, err := Lookup(data, Path(items))
		if err != nil {
			e.reportf(LevelError, "Path %v resolved to undefined.", items)
			return NaN()
		}
		return v
	}
	e.reportf(LevelError, "Unsupported operand type: %T (%v)", raw, raw)
	return NaN()
}

func aggregate(op string, operands []any) any {
	var nums []float64
	for _, o := range operands {
		if n, ok := validNumber(o); ok {
			nums = append(nums, n)
			continue
		}
		if items, ok := asSlice(o); ok {
			for _, it := range items {
				if n, ok := validNumber(it); ok {
					nums = append(nums, n)
				}
			}
		}
	}

	switch op {
	case "sum":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return total
	case "mean":
		if len(nums) == 0 {
			return NaN()
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return total / float64(len(nums))
	}
	if len(nums) == 0 {
		return NaN()
	}
	best := nums[0]
	for _, n := range nums[1:] {
		if (op == "max" && n > best) || (op == "min" && n < best) {
			best = n
		}
	}
	return best
}

func arithmetic(op string, operands []any) any {
	nums := make([]float64, len(operands))
	for i, o := range operands {
		n, ok := validNumber(o)
		if !ok {
			return NaN()
		}
		nums[i] = n
	}

	switch op {
	case "+":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return total
	case "-":
		switch len(nums) {
		case 1:
			return -nums[0]
		case 2:
			return nums[0] - nums[1]
		}
		return NaN()
	case "*":
		product := 1.0
		for _, n := range nums {
			product *= n
		}
		return product
	case "/":
		if len(nums) != 2 || nums[1] == 0 {
			return NaN()
		}
		return nums[0] / nums[1]
	}
	return NaN()
}

func first(operands []any) any {
	if len(operands) == 0 {
		return nil
	}
	return operands[0]
}

func (e *Evaluator) sortOp(op string, operands []any) any {
	items, ok := asSlice(first(operands))
	if !ok {
		e.reportf(LevelError, "'%s' expects an array as its argument.", op)
		return NaN()
	}
	asc := op == "sortasc"

	allNumbers, allStrings := true, true
	for _, it := range items {
		if _, ok := toNumber(it); !ok {
			allNumbers = false
		}
		if _, ok := it.(string); !ok {
			allStrings = false
		}
	}

	switch {
	case allNumbers:
		nums := make([]float64, len(items))
		for i, it := range items {
			nums[i], _ = toNumber(it)
		}
		sort.SliceStable(nums, func(i, j int) bool {
			if asc {
				return nums[i] < nums[j]
			}
			return nums[i] > nums[j]
		})
		out := make([]any, len(nums))
		for i, n := range nums {
			out[i] = n
		}
		return out
	case allStrings:
		strs := make([]string, len(items))
		for i, it := range items {
			strs[i] = it.(string)
		}
		coll := collate.New(language.Und)
		sort.SliceStable(strs, func(i, j int) bool {
			c := coll.CompareString(strs[i], strs[j])
			if asc {
				return c < 0
			}
			return c > 0
		})
		out := make([]any, len(strs))
		for i, s := range strs {
			out[i] = s
		}
		return out
	}
	e.reportf(LevelError, "'%s' currently supports arrays of all numbers or all strings.", op)
	return NaN()
}

func reverseOp(operands []any) any {
	items, ok := asSlice(first(operands))
	if !ok {
		return NaN()
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

func lengthOp(operands []any) any {
	if len(operands) == 1 {
		if s, ok := operands[0].(string); ok {
			return float64(len(utf16.Encode([]rune(s))))
		}
		if items, ok := asSlice(operands[0]); ok {
			return float64(len(items))
		}
	}
	count := 0
	for _, o := range operands {
		if IsNaN(o) {
			continue
		}
		count++
	}
	return float64(count)
}

func roundOp(operands []any) any {
	x, ok := validNumber(first(operands))
	if !ok {
		return NaN()
	}
	decimals := 0.0
	if len(operands) > 1 {
		if d, ok := validNumber(operands[1]); ok && d == math.Trunc(d) && d >= 0 {
			decimals = d
		}
	}
	factor := math.Pow(10, decimals)
	return math.Floor(x*factor+0.5) / factor
}

func (e *Evaluator) sliceOp(operands []any) any {
	s, ok := first(operands).(string)
	if !ok {
		e.reportf(LevelError, "Operator 'slice' expects a string as its first argument.")
		return NaN()
	}
	runes := []rune(s)
	if len(operands) < 2 {
		return s
	}
	start, ok := validNumber(operands[1])
	if !ok {
		return s
	}
	end := float64(len(runes))
	if len(operands) > 2 {
		n, ok := validNumber(operands[2])
		if !ok {
			return string(runes[clampIndex(start, len(runes)):])
		}
		end = n
	}
	from, to := clampIndex(start, len(runes)), clampIndex(end, len(runes))
	if from >= to {
		return ""
	}
	return string(runes[from:to])
}

// clampIndex applies slice index rules: negative counts from the end, results are
// clamped to [0, n].
func clampIndex(f float64, n int) int {
	f = math.Trunc(f)
	if f < 0 {
		f += float64(n)
		if f < 0 {
			return 0
		}
		return int(f)
	}
	if f > float64(n) {
		return n
	}
	return int(f)
}
