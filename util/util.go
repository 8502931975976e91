// Package util contains misc internal utilities.
package util

import (
	"time"
	"unicode"

	"go.uber.org/multierr"
)

// Clamp limits a value to the range [low, high]
func Clamp(input, low, high float64) float64 {
	if input < low {
		return low
	}
	if input > high {
		return high
	}
	return input
}

// SecsToDuration converts a floating point number of seconds to a duration
// with nanosecond resolution
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(secs*1e9+0.5) * time.Nanosecond
}

// AllElementsNumbers returns true if every rune in s is a digit or a decimal
// point.  The empty string is not a number.
func AllElementsNumbers(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

// MergeErrors combines a slice of errors into one.  Nil errors are dropped,
// and if none are left the result is nil.
func MergeErrors(errs []error) error {
	return multierr.Combine(errs...)
}
