package qhy

import (
	"errors"
	"fmt"
)

// ValidationKind is the reason a value was rejected before reaching the device
type ValidationKind int

const (
	// OutOfRange is a numeric value outside its range, off its step, or not
	// a member of a discrete set
	OutOfRange ValidationKind = iota

	// UnknownVariant is an enum key that is not declared for the parameter
	UnknownVariant

	// DegenerateROI is a region of interest that bins down to zero pixels
	DegenerateROI

	// UnknownParameter is a parameter name the registry does not track
	UnknownParameter
)

func (k ValidationKind) String() string {
	switch k {
	case OutOfRange:
		return "OutOfRange"
	case UnknownVariant:
		return "UnknownVariant"
	case DegenerateROI:
		return "DegenerateROI"
	case UnknownParameter:
		return "UnknownParameter"
	}
	return fmt.Sprintf("ValidationKind(%d)", int(k))
}

// ValidationError is generated locally and never involves a call to the SDK
type ValidationError struct {
	Kind ValidationKind

	// Param is the parameter the value was written to, if any
	Param string

	// Value is the offending value
	Value interface{}

	// Detail is a human readable description of the legal domain
	Detail string
}

func (e *ValidationError) Error() string {
	s := fmt.Sprintf("qhy: %s", e.Kind)
	if e.Param != "" {
		s += fmt.Sprintf(" for %s", e.Param)
	}
	if e.Value != nil {
		s += fmt.Sprintf(" (%v)", e.Value)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	return s
}

// Is matches any ValidationError of the same Kind, so that
// errors.Is(err, ErrOutOfRange) works regardless of parameter
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Kind == e.Kind
}

// DeviceError is a failure reported by the SDK, or a lifecycle violation
// detected by the Camera
type DeviceError struct {
	Kind ErrorKind

	// Code is the native status code, zero when the error did not come from the SDK
	Code int

	// Op is the SDK call or Camera operation that failed
	Op string

	// State is the DeviceState at the time of an InvalidState error
	State DeviceState

	// Cause is the underlying error, for example the native failure behind
	// a CaptureFailed or the context error behind a Canceled
	Cause error
}

func (e *DeviceError) Error() string {
	var s string
	switch e.Kind {
	case KindInvalidState, KindAlreadyExposing:
		s = fmt.Sprintf("qhy: %s: %s not legal in state %s", e.Kind, e.Op, e.State)
	case KindClosed:
		s = fmt.Sprintf("qhy: %s: camera is closed", e.Op)
	default:
		s = fmt.Sprintf("qhy: %s: %s", e.Op, e.Kind)
		if e.Code != 0 && e.Cause == nil {
			s += fmt.Sprintf(" (%s)", Translate(e.Code))
		}
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the cause
func (e *DeviceError) Unwrap() error {
	return e.Cause
}

// Is matches any DeviceError of the same Kind.  AlreadyExposing is also an
// InvalidState.
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindInvalidState && e.Kind == KindAlreadyExposing
}

// DecodeError is generated when a raw frame is too short for the requested geometry
type DecodeError struct {
	// Need is the number of bytes the geometry requires
	Need int

	// Have is the number of bytes supplied
	Have int
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("qhy: TruncatedBuffer: need %d bytes, have %d", e.Need, e.Have)
}

// Is matches any DecodeError
func (e *DecodeError) Is(target error) bool {
	_, ok := target.(*DecodeError)
	return ok
}

var (
	// ErrOutOfRange matches any OutOfRange ValidationError
	ErrOutOfRange = &ValidationError{Kind: OutOfRange}

	// ErrUnknownVariant matches any UnknownVariant ValidationError
	ErrUnknownVariant = &ValidationError{Kind: UnknownVariant}

	// ErrDegenerateROI matches any DegenerateROI ValidationError
	ErrDegenerateROI = &ValidationError{Kind: DegenerateROI}

	// ErrUnknownParameter matches any UnknownParameter ValidationError
	ErrUnknownParameter = &ValidationError{Kind: UnknownParameter}

	// ErrNoDevice matches a scan that found no camera
	ErrNoDevice = &DeviceError{Kind: KindNoDevice}

	// ErrOpenFailed matches a nil handle from the SDK
	ErrOpenFailed = &DeviceError{Kind: KindOpenFailed}

	// ErrAlreadyExposing matches an exposure requested during an exposure
	ErrAlreadyExposing = &DeviceError{Kind: KindAlreadyExposing}

	// ErrInvalidState matches any lifecycle violation
	ErrInvalidState = &DeviceError{Kind: KindInvalidState}

	// ErrCaptureFailed matches a failed frame fetch
	ErrCaptureFailed = &DeviceError{Kind: KindCaptureFailed}

	// ErrTimeout matches an exposure that produced no frame in time
	ErrTimeout = &DeviceError{Kind: KindTimeout}

	// ErrClosed matches any call on a closed camera
	ErrClosed = &DeviceError{Kind: KindClosed}

	// ErrCanceled matches a capture interrupted by Cancel or its context
	ErrCanceled = &DeviceError{Kind: KindCanceled}

	// ErrUnsupported matches an operation the camera or library cannot perform
	ErrUnsupported = &DeviceError{Kind: KindUnsupported}

	// ErrTruncatedBuffer matches any DecodeError
	ErrTruncatedBuffer = &DecodeError{}
)

// IsKind returns true if err is, or wraps, a DeviceError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var de *DeviceError
	for errors.As(err, &de) {
		if de.Kind == kind {
			return true
		}
		if de.Cause == nil {
			return false
		}
		err = de.Cause
	}
	return false
}
