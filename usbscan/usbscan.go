// Package usbscan lists QHY cameras on the USB bus without loading the SDK.
//
// The SDK scan also uploads firmware, which takes seconds per camera.  Scan
// only reads device descriptors, so it is a cheap way to tell whether a
// camera is plugged in before calling qhy.Open.
package usbscan

import (
	"fmt"

	"github.com/google/gousb"
)

// VendorQHY is the USB vendor ID of QHYCCD cameras
const VendorQHY gousb.ID = 0x1618

// Device is a QHY camera seen on the bus
type Device struct {
	Bus     int      `json:"bus"`
	Address int      `json:"address"`
	Vendor  gousb.ID `json:"vendor"`
	Product gousb.ID `json:"product"`
	Speed   string   `json:"speed"`
}

func (d Device) String() string {
	return fmt.Sprintf("bus %03d device %03d: ID %s:%s (%s)", d.Bus, d.Address, d.Vendor, d.Product, d.Speed)
}

// IsQHY is true if desc belongs to a QHY camera
func IsQHY(desc *gousb.DeviceDesc) bool {
	return desc != nil && desc.Vendor == VendorQHY
}

// FromDesc copies the fields of interest out of a descriptor
func FromDesc(desc *gousb.DeviceDesc) Device {
	return Device{
		Bus:     desc.Bus,
		Address: desc.Address,
		Vendor:  desc.Vendor,
		Product: desc.Product,
		Speed:   desc.Speed.String(),
	}
}

// Filter returns the QHY devices among descs
func Filter(descs []*gousb.DeviceDesc) []Device {
	var out []Device
	for _, desc := range descs {
		if IsQHY(desc) {
			out = append(out, FromDesc(desc))
		}
	}
	return out
}

// Scan lists the QHY cameras on the bus.  No device is opened.
func Scan() ([]Device, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	var descs []*gousb.DeviceDesc
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		descs = append(descs, desc)
		return false
	})
	if err != nil {
		return nil, err
	}
	return Filter(descs), nil
}
