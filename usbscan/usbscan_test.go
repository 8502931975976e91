package usbscan_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gousb"
	"github.com/nasa-jpl/qhylab/usbscan"
)

func TestFilter(t *testing.T) {
	descs := []*gousb.DeviceDesc{
		{Bus: 1, Address: 4, Vendor: 0x046d, Product: 0xc52b, Speed: gousb.SpeedFull},
		{Bus: 2, Address: 7, Vendor: usbscan.VendorQHY, Product: 0xc166, Speed: gousb.SpeedSuper},
		nil,
	}
	expected := []usbscan.Device{
		{Bus: 2, Address: 7, Vendor: usbscan.VendorQHY, Product: 0xc166, Speed: gousb.SpeedSuper.String()},
	}
	if diff := cmp.Diff(expected, usbscan.Filter(descs)); diff != "" {
		t.Errorf("filtered devices differ (-want +got):\n%s", diff)
	}
}

func TestFilterNone(t *testing.T) {
	if got := usbscan.Filter(nil); len(got) != 0 {
		t.Errorf("expected no devices got %v", got)
	}
}

func ExampleDevice_String() {
	d := usbscan.Device{Bus: 2, Address: 7, Vendor: usbscan.VendorQHY, Product: 0xc166, Speed: "5000 Mbps"}
	fmt.Println(d)
	// Output: bus 002 device 007: ID 1618:c166 (5000 Mbps)
}
