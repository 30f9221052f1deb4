package sampling

import (
	"math"
	"strconv"
)

// ValueKind tags a decoded Value.
type ValueKind int

const (
	// KindUnparseable marks a numeric field that was neither int nor float, e.g. "[N/A]".
	KindUnparseable ValueKind = iota
	// KindInteger is a whole number.
	KindInteger
	// KindFloat is a floating-point number.
	KindFloat
	// KindBoolean is a decoded flag.
	KindBoolean
)

func (k ValueKind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	default:
		return "unparseable"
	}
}

// Value is one decoded field. Raw always holds the trimmed source text.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Raw   string
}

// Number returns the numeric view of v. Booleans and unparseable values
// report false.
func (v Value) Number() (float64, bool) {
	switch v.Kind {
	case KindInteger:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Raw
	}
}

func decodeNumber(raw string) Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Value{Kind: KindInteger, Int: i, Raw: raw}
	}
	// NaN and Inf would poison every aggregate they touch.
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Value{Kind: KindFloat, Float: f, Raw: raw}
	}
	return Value{Kind: KindUnparseable, Raw: raw}
}

func decodeBoolean(raw string) Value {
	return Value{Kind: KindBoolean, Bool: raw == "Enabled", Raw: raw}
}

func decode(d Decoder, raw string) Value {
	if d == DecodeBoolean {
		return decodeBoolean(raw)
	}
	return decodeNumber(raw)
}
