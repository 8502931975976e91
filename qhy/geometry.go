package qhy

import (
	"encoding/binary"
	"fmt"
	"image"
)

// ROI is a region of interest on the sensor.  Width and Height are in
// unbinned sensor pixels; StartX and StartY are in the binned frame.
type ROI struct {
	// StartX is the first column read out
	StartX int `json:"startX"`

	// StartY is the first row read out
	StartY int `json:"startY"`

	// Width is the width of the region in sensor pixels
	Width int `json:"width"`

	// Height is the height of the region in sensor pixels
	Height int `json:"height"`

	// Binning is the symmetric binning factor
	Binning int `json:"binning"`
}

// FullFrame returns the ROI that covers the whole chip unbinned
func FullFrame(c Chip) ROI {
	return ROI{Width: c.MaxX, Height: c.MaxY, Binning: 1}
}

// EffectiveDimensions returns the size of the image the camera will produce
// for roi.  The divisions floor.
func EffectiveDimensions(chip Chip, roi ROI) (int, int, error) {
	if roi.Binning < 1 {
		return 0, 0, &ValidationError{Kind: DegenerateROI, Param: "binning", Value: roi.Binning, Detail: "binning must be at least 1"}
	}
	w := roi.Width / roi.Binning
	h := roi.Height / roi.Binning
	if w < 1 || h < 1 {
		return 0, 0, &ValidationError{
			Kind:   DegenerateROI,
			Value:  fmt.Sprintf("%dx%d", w, h),
			Detail: fmt.Sprintf("%dx%d pixels binned %dx is empty", roi.Width, roi.Height, roi.Binning)}
	}
	return w, h, nil
}

// BufferLength is the number of bytes to give the SDK for one frame.  A
// positive deviceReported wins; it is usually larger than the packed size.
func BufferLength(width, height, bits, deviceReported int) int {
	if deviceReported > 0 {
		return deviceReported
	}
	return (width*height*bits + 7) / 8
}

// Image is a frame of unsigned samples in row-major order
type Image struct {
	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int

	// Bits is the sample depth the frame was read out with, 8 or 16
	Bits int

	// Pix holds Height rows of Width samples
	Pix []uint16
}

// At returns the sample at column x, row y
func (i *Image) At(x, y int) uint16 {
	return i.Pix[y*i.Width+x]
}

// Row returns row y.  The slice aliases the image.
func (i *Image) Row(y int) []uint16 {
	return i.Pix[y*i.Width : (y+1)*i.Width]
}

// Gray16 converts the image to the stdlib image type, for the jpg and png
// encoders.  8 bit samples are scaled to fill the 16 bit range.
func (i *Image) Gray16() *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, i.Width, i.Height))
	shift := uint(0)
	if i.Bits == 8 {
		shift = 8
	}
	for idx, v := range i.Pix {
		v <<= shift
		out.Pix[2*idx] = uint8(v >> 8)
		out.Pix[2*idx+1] = uint8(v)
	}
	return out
}

// Decode reinterprets the first width*height little endian samples of raw
// as a row-major image.  bits selects 1 or 2 bytes per sample.  Trailing
// bytes are ignored.
func Decode(raw []byte, width, height, bits int) (*Image, error) {
	if width < 1 || height < 1 {
		return nil, &ValidationError{Kind: DegenerateROI, Value: fmt.Sprintf("%dx%d", width, height)}
	}
	var bpp int
	switch bits {
	case 8:
		bpp = 1
	case 16:
		bpp = 2
	default:
		return nil, &ValidationError{Kind: OutOfRange, Param: "bits", Value: bits, Detail: "must be one of [8 16]"}
	}
	n := width * height
	need := n * bpp
	if len(raw) < need {
		return nil, &DecodeError{Need: need, Have: len(raw)}
	}
	pix := make([]uint16, n)
	if bpp == 1 {
		for idx := 0; idx < n; idx++ {
			pix[idx] = uint16(raw[idx])
		}
	} else {
		for idx := 0; idx < n; idx++ {
			pix[idx] = binary.LittleEndian.Uint16(raw[2*idx:])
		}
	}
	return &Image{Width: width, Height: height, Bits: bits, Pix: pix}, nil
}
