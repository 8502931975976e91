// Package thermal exposes an HTTP interface to thermal controllers, such as
// the cooler of a camera
package thermal

import (
	"github.com/nasa-jpl/qhylab/generichttp"
	"github.com/nasa-jpl/qhylab/server"
	"goji.io/pat"
)

// Controller is an interface to a thermal controller with a single channel
type Controller interface {
	// GetTemperatureSetpoint gets the temperature setpoint in Celcius
	GetTemperatureSetpoint() (float64, error)

	// SetTemperatureSetpoint sets the temperature setpoint in Celcius
	SetTemperatureSetpoint(float64) error

	// GetTemperature gets the temperature in Celcius
	GetTemperature() (float64, error)
}

// HTTPController binds routes to control temperature to the table
func HTTPController(c Controller, table server.RouteTable) {
	table[pat.Get("/temperature")] = generichttp.GetFloat(c.GetTemperature)
	table[pat.Get("/temperature-setpoint")] = generichttp.GetFloat(c.GetTemperatureSetpoint)
	table[pat.Post("/temperature-setpoint")] = generichttp.SetFloat(c.SetTemperatureSetpoint)
}
