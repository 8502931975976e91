package util_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nasa-jpl/qhylab/util"
	"go.uber.org/multierr"
)

func ExampleAllElementsNumbers() {
	fmt.Println(util.AllElementsNumbers("0.25"), util.AllElementsNumbers("25ms"))
	// Output: true false
}

func ExampleMergeErrors() {
	err := util.MergeErrors([]error{nil, errors.New("gain"), nil, errors.New("offset")})
	fmt.Println(err)
	// Output: gain; offset
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
}

func TestMergeErrorsAllNil(t *testing.T) {
	if err := util.MergeErrors([]error{nil, nil}); err != nil {
		t.Errorf("expected nil got %v", err)
	}
}

func TestMergeErrorsKeepsEach(t *testing.T) {
	e1, e2 := errors.New("a"), errors.New("b")
	err := util.MergeErrors([]error{e1, e2})
	if n := len(multierr.Errors(err)); n != 2 {
		t.Errorf("expected 2 errors got %d", n)
	}
	if !errors.Is(err, e2) {
		t.Errorf("expected the merged error to match its members")
	}
}

func TestAllElementsNumbersEmpty(t *testing.T) {
	if util.AllElementsNumbers("") {
		t.Errorf("expected the empty string not to be a number")
	}
}
