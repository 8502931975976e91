package qhy

import "fmt"

// ErrorKind classifies a failed call.  The first block mirrors the negative
// status codes of the QHYCCD SDK one-for-one, the second block holds the
// failures this package raises itself.
type ErrorKind int

const (
	// KindUnknown is any code missing from StatusCodes
	KindUnknown ErrorKind = iota

	// KindError is QHYCCD_ERROR (-1)
	KindError
	// KindNoDevice is QHYCCD_ERROR_NO_DEVICE (-2), also raised when a scan finds nothing
	KindNoDevice
	// KindUnsupported is QHYCCD_ERROR_UNSUPPORTED (-3)
	KindUnsupported
	// KindSetParams is QHYCCD_ERROR_SETPARAMS (-4)
	KindSetParams
	// KindGetParams is QHYCCD_ERROR_GETPARAMS (-5)
	KindGetParams
	// KindExposing is QHYCCD_ERROR_EXPOSING (-6), the camera is exposing
	KindExposing
	// KindExposeFailed is QHYCCD_ERROR_EXPFAILED (-7)
	KindExposeFailed
	// KindGettingData is QHYCCD_ERROR_GETTINGDATA (-8), another reader holds the camera
	KindGettingData
	// KindGettingFailed is QHYCCD_ERROR_GETTINGFAILED (-9)
	KindGettingFailed
	// KindInitCamera is QHYCCD_ERROR_INITCAMERA (-10)
	KindInitCamera
	// KindReleaseResource is QHYCCD_ERROR_RELEASERESOURCE (-11)
	KindReleaseResource
	// KindInitResource is QHYCCD_ERROR_INITRESOURCE (-12)
	KindInitResource
	// KindNoMatch is QHYCCD_ERROR_NO_MATCH (-13)
	KindNoMatch
	// KindOpenCamera is QHYCCD_ERROR_OPENCAM (-14)
	KindOpenCamera
	// KindInitClass is QHYCCD_ERROR_INITCLASS (-15)
	KindInitClass
	// KindResolution is QHYCCD_ERROR_RESOLUTION (-16)
	KindResolution
	// KindUSBTraffic is QHYCCD_ERROR_USB_TRAFFIC (-17)
	KindUSBTraffic
	// KindUSBSpeed is QHYCCD_ERROR_USB_SPEED (-18)
	KindUSBSpeed
	// KindSetExposure is QHYCCD_ERROR_SETEXPOSE (-19)
	KindSetExposure
	// KindSetGain is QHYCCD_ERROR_SETGAIN (-20)
	KindSetGain
	// KindSetRed is QHYCCD_ERROR_SETRED (-21)
	KindSetRed
	// KindSetBlue is QHYCCD_ERROR_SETBLUE (-22)
	KindSetBlue
	// KindEvtCMOS is QHYCCD_ERROR_EVTCMOS (-23)
	KindEvtCMOS
	// KindEvtUSB is QHYCCD_ERROR_EVTUSB (-24)
	KindEvtUSB
	// KindErrorTail is the second QHYCCD_ERROR entry (-25)
	KindErrorTail

	// KindOpenFailed means the SDK returned a nil handle
	KindOpenFailed
	// KindAlreadyExposing means an exposure was requested while one is in flight
	KindAlreadyExposing
	// KindInvalidState means the operation is not legal in the current DeviceState
	KindInvalidState
	// KindCaptureFailed means the frame fetch returned a failure status
	KindCaptureFailed
	// KindTimeout means no frame arrived within exposure + readout margin
	KindTimeout
	// KindClosed means the camera has been closed
	KindClosed
	// KindCanceled means an exposure was canceled before its frame was consumed
	KindCanceled
)

var kindNames = map[ErrorKind]string{
	KindUnknown:         "Unknown",
	KindError:           "Error",
	KindNoDevice:        "NoDevice",
	KindUnsupported:     "Unsupported",
	KindSetParams:       "SetParams",
	KindGetParams:       "GetParams",
	KindExposing:        "Exposing",
	KindExposeFailed:    "ExposeFailed",
	KindGettingData:     "GettingData",
	KindGettingFailed:   "GettingFailed",
	KindInitCamera:      "InitCamera",
	KindReleaseResource: "ReleaseResource",
	KindInitResource:    "InitResource",
	KindNoMatch:         "NoMatch",
	KindOpenCamera:      "OpenCamera",
	KindInitClass:       "InitClass",
	KindResolution:      "Resolution",
	KindUSBTraffic:      "USBTraffic",
	KindUSBSpeed:        "USBSpeed",
	KindSetExposure:     "SetExposure",
	KindSetGain:         "SetGain",
	KindSetRed:          "SetRed",
	KindSetBlue:         "SetBlue",
	KindEvtCMOS:         "EvtCMOS",
	KindEvtUSB:          "EvtUSB",
	KindErrorTail:       "Error",
	KindOpenFailed:      "OpenFailed",
	KindAlreadyExposing: "AlreadyExposing",
	KindInvalidState:    "InvalidState",
	KindCaptureFailed:   "CaptureFailed",
	KindTimeout:         "Timeout",
	KindClosed:          "Closed",
	KindCanceled:        "Canceled",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

type failure struct {
	name string
	kind ErrorKind
}

var (
	// OKCodes maps the non-negative status codes of the SDK to their names.
	// Every one of them means the call succeeded; most carry extra information.
	OKCodes = map[int]string{
		7: "QHYCCD_QGIGAE",
		6: "QHYCCD_USBSYNC",
		5: "QHYCCD_USBASYNC",
		4: "QHYCCD_COLOR",
		3: "QHYCCD_MONO",
		2: "QHYCCD_COOL",    // supports cooling
		1: "QHYCCD_NOTCOOL", // does not support cooling
		0: "QHYCCD_SUCCESS",
	}

	// StatusCodes maps the negative status codes of the SDK to their names
	// and the ErrorKind each one is reported as
	StatusCodes = map[int]failure{
		-1:  {"QHYCCD_ERROR", KindError},
		-2:  {"QHYCCD_ERROR_NO_DEVICE", KindNoDevice},
		-3:  {"QHYCCD_ERROR_UNSUPPORTED", KindUnsupported},
		-4:  {"QHYCCD_ERROR_SETPARAMS", KindSetParams},
		-5:  {"QHYCCD_ERROR_GETPARAMS", KindGetParams},
		-6:  {"QHYCCD_ERROR_EXPOSING", KindExposing},
		-7:  {"QHYCCD_ERROR_EXPFAILED", KindExposeFailed},
		-8:  {"QHYCCD_ERROR_GETTINGDATA", KindGettingData},
		-9:  {"QHYCCD_ERROR_GETTINGFAILED", KindGettingFailed},
		-10: {"QHYCCD_ERROR_INITCAMERA", KindInitCamera},
		-11: {"QHYCCD_ERROR_RELEASERESOURCE", KindReleaseResource},
		-12: {"QHYCCD_ERROR_INITRESOURCE", KindInitResource},
		-13: {"QHYCCD_ERROR_NO_MATCH", KindNoMatch},
		-14: {"QHYCCD_ERROR_OPENCAM", KindOpenCamera},
		-15: {"QHYCCD_ERROR_INITCLASS", KindInitClass},
		-16: {"QHYCCD_ERROR_RESOLUTION", KindResolution},
		-17: {"QHYCCD_ERROR_USB_TRAFFIC", KindUSBTraffic},
		-18: {"QHYCCD_ERROR_USB_SPEED", KindUSBSpeed},
		-19: {"QHYCCD_ERROR_SETEXPOSE", KindSetExposure},
		-20: {"QHYCCD_ERROR_SETGAIN", KindSetGain},
		-21: {"QHYCCD_ERROR_SETRED", KindSetRed},
		-22: {"QHYCCD_ERROR_SETBLUE", KindSetBlue},
		-23: {"QHYCCD_ERROR_EVTCMOS", KindEvtCMOS},
		-24: {"QHYCCD_ERROR_EVTUSB", KindEvtUSB},
		-25: {"QHYCCD_ERROR", KindErrorTail},
	}
)

// Outcome is the classification of one status code
type Outcome struct {
	// Code is the raw status code
	Code int

	// OK is true for success and informational codes
	OK bool

	// Tag is the SDK name of the code, or UNKNOWN_STATUS_CODE
	Tag string

	// Kind is the failure category.  Meaningless when OK is true
	Kind ErrorKind
}

// paramError is QHYCCD_ERROR as GetQHYCCDParam returns it, in band as a double
const paramError = float64(0xFFFFFFFF)

// ParamStatus is the status of a value read with GetQHYCCDParam, which has
// no status of its own: -1 if the SDK returned QHYCCD_ERROR, else 0
func ParamStatus(v float64) int {
	if v == paramError {
		return -1
	}
	return 0
}

// Translate classifies a status code returned by the SDK.  It never panics;
// codes missing from the tables come back as a KindUnknown failure and the
// caller decides whether that is fatal.
func Translate(code int) Outcome {
	if tag, ok := OKCodes[code]; ok {
		return Outcome{Code: code, OK: true, Tag: tag}
	}
	if f, ok := StatusCodes[code]; ok {
		return Outcome{Code: code, Tag: f.name, Kind: f.kind}
	}
	return Outcome{Code: code, Tag: "UNKNOWN_STATUS_CODE", Kind: KindUnknown}
}

// Err returns nil for a successful outcome, otherwise a *DeviceError that
// records the code and the SDK call it came from
func (o Outcome) Err(op string) error {
	if o.OK {
		return nil
	}
	return &DeviceError{Kind: o.Kind, Code: o.Code, Op: op}
}

func (o Outcome) String() string {
	return fmt.Sprintf("%d - %s", o.Code, o.Tag)
}

// Error translates code and returns nil on success, mirroring the Error
// helpers of the other SDK wrappers in this repository
func Error(code int, op string) error {
	return Translate(code).Err(op)
}
