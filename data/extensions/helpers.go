package extensions

import (
	"fmt"
	"strings"
	"time"
)

// Number is any numeric type the statistics helpers accept
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// FilterMultiple return all elements that satisfy the predicate
func FilterMultiple[T any](elements []T, predicate func(T) bool) (results []T) {
	for _, element := range elements {
		if predicate(element) {
			results = append(results, element)
		}
	}
	return
}

// FilterSingle return the single element that satisfies the predicate.
// If zero or more than one, default T and an error is returned.
func FilterSingle[T any](elements []T, predicate func(T) bool) (T, error) {
	res := FilterMultiple(elements, predicate)

	if len(res) != 1 {
		var zero T
		return zero, fmt.Errorf("error getting single, found %d matches", len(res))
	}

	return res[0], nil
}

// HasSuffixFold is a case invariant suffix check, used for the numbered json keys some providers return
func HasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}

// FirstDuplicate returns the first value seen twice, ok is false when every value is unique
func FirstDuplicate[T comparable](values []T) (dup T, ok bool) {
	seen := make(map[T]struct{}, len(values))
	for _, v := range values {
		if _, found := seen[v]; found {
			return v, true
		}
		seen[v] = struct{}{}
	}
	return
}

// IsStrictlyIncreasing is true when every time is after the one before it, which also rules out duplicates
func IsStrictlyIncreasing(times []time.Time) bool {
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			return false
		}
	}
	return true
}

// SplitAndTrim splits a comma separated list, trims each entry and drops empty ones
func SplitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

// TruncateDate drops the clock portion of a time, keeping it in UTC
func TruncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FmtShort formats a time in a date only string
func FmtShort(t time.Time) string {
	return t.Format(time.DateOnly)
}
