package qhy

import "fmt"

// Handle is the opaque qhyccd_handle returned by the SDK.  Zero is the nil handle.
type Handle uintptr

// Identity is the camera ID string reported during a scan, e.g. "QHY600M-1a2b3c4d5e6f7a8b9"
type Identity string

// ParamTag is a CONTROL_ID from the SDK
type ParamTag int

const (
	// ControlGain is CONTROL_GAIN
	ControlGain ParamTag = 6

	// ControlOffset is CONTROL_OFFSET
	ControlOffset ParamTag = 7

	// ControlExposure is CONTROL_EXPOSURE, in microseconds
	ControlExposure ParamTag = 8

	// ControlSpeed is CONTROL_SPEED
	ControlSpeed ParamTag = 9

	// ControlUSBTraffic is CONTROL_USBTRAFFIC
	ControlUSBTraffic ParamTag = 12

	// ControlCurTemp is CONTROL_CURTEMP, in Celsius
	ControlCurTemp ParamTag = 14

	// ControlCooler is CONTROL_COOLER, the TEC target temperature in Celsius
	ControlCooler ParamTag = 18
)

// Chip describes the sensor.  It is read once after InitCamera.
type Chip struct {
	// WidthMM is the physical width of the chip, mm
	WidthMM float64 `json:"widthMM"`

	// HeightMM is the physical height of the chip, mm
	HeightMM float64 `json:"heightMM"`

	// WidthPx is the width of the chip in pixels
	WidthPx int `json:"widthPx"`

	// HeightPx is the height of the chip in pixels
	HeightPx int `json:"heightPx"`

	// MaxX is the largest addressable X extent
	MaxX int `json:"maxX"`

	// MaxY is the largest addressable Y extent
	MaxY int `json:"maxY"`

	// BitsPerPixel is the native ADC depth
	BitsPerPixel int `json:"bpp"`
}

// Validate returns an error if any field is not positive
func (c Chip) Validate() error {
	if c.WidthMM <= 0 || c.HeightMM <= 0 || c.WidthPx <= 0 || c.HeightPx <= 0 ||
		c.MaxX <= 0 || c.MaxY <= 0 || c.BitsPerPixel <= 0 {
		return fmt.Errorf("qhy: chip info has non-positive fields: %+v", c)
	}
	return nil
}

// Library is the set of SDK entry points the Camera is built on.  Every int
// return is a status code to be passed through Translate, unless noted.
//
// The cgo binding (build tag qhyccd) and Simulator both satisfy it.
type Library interface {
	// InitResource loads the SDK, InitQHYCCDResource
	InitResource() int

	// Scan returns the number of attached cameras, ScanQHYCCD.  Not a status code.
	Scan() int

	// Identify returns the ID of the camera at idx, or "" if there is none
	Identify(idx int) Identity

	// Open returns a handle to the camera, or zero on failure
	Open(id Identity) Handle

	// InitCamera prepares an open camera for use
	InitCamera(h Handle) int

	// SetParam sets a scalar control
	SetParam(h Handle, tag ParamTag, value float64) int

	// SetStreamMode selects single frame (0) or live (1) mode
	SetStreamMode(h Handle, mode int) int

	// SetResolution sets the readout window in binned pixels
	SetResolution(h Handle, x, y, width, height int) int

	// SetBinning sets the on-chip binning factors
	SetBinning(h Handle, binX, binY int) int

	// SetBitDepth selects 8 or 16 bit transfer
	SetBitDepth(h Handle, bits int) int

	// ChipInfo returns the fixed geometry record of the sensor
	ChipInfo(h Handle) (Chip, int)

	// BeginExposure starts a single frame exposure
	BeginExposure(h Handle) int

	// CancelExposure stops an exposure and any readout in progress
	CancelExposure(h Handle) int

	// FetchFrame blocks until a frame is available and returns it.  bufLen is
	// the size of the receive buffer; the returned slice may be shorter or
	// longer than width*height samples.
	FetchFrame(h Handle, width, height, bufLen int) ([]byte, int)

	// MemoryLength returns the buffer size the SDK wants for one frame, or
	// zero if it does not report one.  Not a status code.
	MemoryLength(h Handle) int

	// Close closes the camera
	Close(h Handle) int

	// Release unloads the SDK, ReleaseQHYCCDResource
	Release() int
}

// Thermal is implemented by a Library that can drive a cooled sensor's TEC
type Thermal interface {
	// Temperature returns the current sensor temperature in Celsius
	Temperature(h Handle) (float64, int)

	// SetTargetTemperature sets the cooler setpoint in Celsius
	SetTargetTemperature(h Handle, celsius float64) int
}
