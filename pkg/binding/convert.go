package binding

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"webdsl/pkg/wire"
)

var (
	leadingInt   = regexp.MustCompile(`^[+-]?\d+`)
	leadingHex   = regexp.MustCompile(`^[+-]?0[xX][0-9a-fA-F]+`)
	leadingFloat = regexp.MustCompile(`^[+-]?(Infinity|\d+\.?\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)`)
)

// ConvertTypeValue converts a raw response value to the attribute type the model
// declares. Unknown types pass the value through.
func ConvertTypeValue(value any, attrType string) any {
	switch attrType {
	case wire.IntAttribute:
		return parseInt(value)
	case wire.FloatAttribute:
		return parseFloat(value)
	case wire.BoolAttribute:
		if s, ok := value.(string); ok {
			return s == "true"
		}
		b, ok := value.(bool)
		return ok && b
	}
	return value
}

// parseInt reads the leading integer of value. Numbers are truncated.
func parseInt(value any) float64 {
	if n, ok := toNumber(value); ok {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return math.NaN()
		}
		return math.Trunc(n)
	}
	s, ok := value.(string)
	if !ok {
		return math.NaN()
	}
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	if m := leadingHex.FindString(s); m != "" {
		neg := strings.HasPrefix(m, "-")
		digits := strings.TrimLeft(m, "+-")[2:]
		i, err := strconv.ParseInt(digits, 16, 64)
		if err != nil {
			return math.NaN()
		}
		if neg {
			i = -i
		}
		return float64(i)
	}
	m := leadingInt.FindString(s)
	if m == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// parseFloat reads the leading decimal number of value.
func parseFloat(value any) float64 {
	if n, ok := toNumber(value); ok {
		return n
	}
	s, ok := value.(string)
	if !ok {
		return math.NaN()
	}
	s = strings.TrimLeft(s, " \t\n\r\v\f")
	m := leadingFloat.FindString(s)
	if m == "" {
		return math.NaN()
	}
	switch strings.TrimLeft(m, "+") {
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
