package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CompareValues orders two scalar values the way the database would for the
// common column types. ok is false when the values cannot be compared.
// nil sorts before everything. Against a number, a bool counts as 0 or 1 and
// numeric text is parsed, as TINYINT(1) and DECIMAL columns scan that way.
func CompareValues(a, b interface{}) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if fa, fb, ok := numericPair(a, b); ok {
		return compareOrdered(fa, fb), true
	}
	switch av := a.(type) {
	case string:
		if bv, ok := toText(b); ok {
			return strings.Compare(av, bv), true
		}
	case []byte:
		if bv, ok := toText(b); ok {
			return strings.Compare(string(av), bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

// ValuesEqual reports equality with numeric and text normalization. Text
// compares case-insensitively, matching the default collations.
func ValuesEqual(a, b interface{}) bool {
	if at, ok := toText(a); ok {
		if bt, ok := toText(b); ok {
			return strings.EqualFold(at, bt)
		}
	}
	if cmp, ok := CompareValues(a, b); ok {
		return cmp == 0
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// KeyString renders a key value for map lookups. Integer-valued numbers of any
// Go type render the same way, and []byte renders as text.
func KeyString(v interface{}) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []byte:
		return string(tv)
	}
	if f, ok := toFloat(v); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

func compareOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// numericPair converts both values to numbers when at least one of them is a
// number, or when one is a bool and the other numeric text.
func numericPair(a, b interface{}) (float64, float64, bool) {
	fa, ka := numberKind(a)
	fb, kb := numberKind(b)
	if ka == notNumber || kb == notNumber {
		return 0, 0, false
	}
	if ka == kb && ka != nativeNumber {
		return 0, 0, false
	}
	return fa, fb, true
}

type numericKind int

const (
	notNumber numericKind = iota
	nativeNumber
	boolNumber
	textNumber
)

func numberKind(v interface{}) (float64, numericKind) {
	if f, ok := toFloat(v); ok {
		return f, nativeNumber
	}
	switch tv := v.(type) {
	case bool:
		if tv {
			return 1, boolNumber
		}
		return 0, boolNumber
	case string, []byte:
		text, _ := toText(tv)
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, notNumber
		}
		return f, textNumber
	}
	return 0, notNumber
}

func toText(v interface{}) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case []byte:
		return string(tv), true
	default:
		return "", false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
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
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
