package util

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

/**
* Returns true if either term contains the other, ignoring case and
* surrounding whitespace. Empty terms never match anything.
 */
func FuzzyContains(str1, str2 string) bool {
	a := NormaliseName(str1)
	b := NormaliseName(str2)
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// ContainsFold reports whether needle occurs in haystack, ignoring case.
// An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	n := NormaliseName(needle)
	if n == "" {
		return false
	}
	return strings.Contains(NormaliseName(haystack), n)
}

// NormaliseName lower-cases a name and collapses runs of whitespace
func NormaliseName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormaliseKey turns a free-form identifier such as "Champions League" into
// the snake_case key used by lookup tables ("champions_league")
func NormaliseKey(s string) string {
	s = strings.ReplaceAll(NormaliseName(s), "-", " ")
	return strings.ReplaceAll(s, " ", "_")
}

// GetAsString converts various types to string
// If s is a string, return it
// If s is any form of number, parse it into a string and return it
// If s is any other type, convert it to string representation
func GetAsString(s any) (string, error) {
	if s == nil {
		return "", fmt.Errorf("cannot convert nil to string")
	}

	switch v := s.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// GetAsInteger converts various types to integer
// JSON decoding hands us float64 for every number so whole floats are accepted,
// as are numeric strings. Anything else is an error.
func GetAsInteger(s any) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("cannot convert nil to integer")
	}

	switch v := s.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("int64 value %d is out of int range", v)
		}
		return int(v), nil
	case float32:
		if v != float32(int(v)) {
			return 0, fmt.Errorf("float32 value %f is not a whole number", v)
		}
		return int(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("float64 value %f is not a whole number", v)
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, fmt.Errorf("float64 value %f is out of int range", v)
		}
		return int(v), nil
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("cannot convert number '%s' to integer: %w", v, err)
		}
		return GetAsInteger(i)
	case string:
		result, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("cannot convert string '%s' to integer: %w", v, err)
		}
		return result, nil
	default:
		return 0, fmt.Errorf("cannot convert type %T to integer", s)
	}
}
