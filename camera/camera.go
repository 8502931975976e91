/*Package camera describes a standard set of interfaces for control of cameras

The Minimal type contains the basics, while Sci adds the acquisition modes and
metadata typically found on scientific cameras.  Cooled covers the sensor
thermal control, which not every camera has.

*qhy.Camera implements all three.
*/
package camera

import (
	"context"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/nasa-jpl/qhylab/qhy"
)

// Minimal describes a minimal camera interface with only the basics.
type Minimal interface {
	// Capture exposes and reads out one frame
	Capture(context.Context) (*qhy.Image, error)

	// Cancel aborts an exposure in flight
	Cancel() error

	// Close releases the camera
	Close() error

	// State returns the lifecycle state
	State() qhy.DeviceState

	// Chip returns the sensor geometry
	Chip() qhy.Chip

	// Params returns the parameter registry of the camera
	Params() *qhy.Registry
}

// Sci describes an extended interface for scientific cameras
// we do not enforce this constraint, but a type which implements
// Sci will nearly always implement Minimal.
type Sci interface {
	Minimal

	// Burst captures n frames at up to fps frames per second
	Burst(ctx context.Context, n int, fps float64) ([]*qhy.Image, error)

	// ExposureTime returns the programmed exposure
	ExposureTime() time.Duration

	// HeaderCards produces the FITS header for the current settings
	HeaderCards() []fitsio.Card
}

// Cooled describes a camera with a sensor cooler
type Cooled interface {
	// GetTemperatureSetpoint gets the temperature setpoint in Celcius
	GetTemperatureSetpoint() (float64, error)

	// SetTemperatureSetpoint sets the temperature setpoint in Celcius
	SetTemperatureSetpoint(float64) error

	// GetTemperature gets the current sensor temperature in Celcius
	GetTemperature() (float64, error)
}

var (
	_ Sci    = (*qhy.Camera)(nil)
	_ Cooled = (*qhy.Camera)(nil)
)
