package qhy

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/snksoft/crc"
)

// HDRVER is the version of the FITS header layout produced by HeaderCards.
// Increment it when cards are added or change meaning.
const HDRVER = "QHY-1"

var crc32Table = crc.NewTable(crc.CRC32)

// DataCRC is the CRC-32 of the little endian samples of the frames, in order
func DataCRC(frames ...*Image) uint32 {
	crcUint := crc32Table.InitCrc()
	for _, f := range frames {
		row := make([]byte, 2*f.Width)
		for y := 0; y < f.Height; y++ {
			for x, v := range f.Row(y) {
				binary.LittleEndian.PutUint16(row[2*x:], v)
			}
			crcUint = crc32Table.UpdateCrc(crcUint, row)
		}
	}
	return crc32Table.CRC32(crcUint)
}

// HeaderCards makes the FITS header for frames captured with the camera's
// current settings.  Errors gathering optional metadata (the sensor
// temperature) are recorded in METAERR rather than returned.
func (c *Camera) HeaderCards() []fitsio.Card {
	p := c.params.Snapshot()
	roi := c.params.ROI()
	speed, _ := c.params.ReadEnum(ParamSpeed)
	mode, _ := c.params.ReadEnum(ParamStreamMode)

	var metaerr string
	temp, err := c.GetTemperature()
	if err != nil {
		metaerr = err.Error()
	}
	setpt, _ := c.GetTemperatureSetpoint()

	return []fitsio.Card{
		{Name: "HDRVER", Value: HDRVER, Comment: "header version"},
		{Name: "METAERR", Value: metaerr, Comment: "error encountered gathering metadata"},
		{Name: "CAMID", Value: string(c.id), Comment: "camera identity"},
		{Name: "DATE", Value: time.Now().UTC().Format("2006-01-02T15:04:05")},

		// exposure parameters
		{Name: "EXPTIME", Value: c.ExposureTime().Seconds(), Comment: "exposure time, seconds"},
		{Name: "GAIN", Value: p[ParamGain], Comment: "CONTROL_GAIN"},
		{Name: "OFFSET", Value: p[ParamOffset], Comment: "CONTROL_OFFSET, ADU"},
		{Name: "USBTRAF", Value: p[ParamUSBTraffic], Comment: "CONTROL_USBTRAFFIC"},
		{Name: "SPEED", Value: speed, Comment: "readout speed"},
		{Name: "STRMODE", Value: mode, Comment: "stream mode"},
		{Name: "BITDEPTH", Value: int(p[ParamBits]), Comment: "transfer bit depth"},

		// thermal parameters
		{Name: "TEMPSETP", Value: setpt, Comment: "temperature setpoint (Celsius)"},
		{Name: "TEMPER", Value: temp, Comment: "sensor temperature (Celsius)"},

		// roi parameters
		{Name: "ROIX", Value: roi.StartX, Comment: "0-based first column"},
		{Name: "ROIY", Value: roi.StartY, Comment: "0-based first row"},
		{Name: "ROIW", Value: roi.Width, Comment: "ROI width, sensor px"},
		{Name: "ROIH", Value: roi.Height, Comment: "ROI height, sensor px"},
		{Name: "ROIB", Value: fmt.Sprintf("%dx%d", roi.Binning, roi.Binning), Comment: "binning, HxV"},

		// chip
		{Name: "CHIPWMM", Value: c.chip.WidthMM, Comment: "chip width, mm"},
		{Name: "CHIPHMM", Value: c.chip.HeightMM, Comment: "chip height, mm"},
		{Name: "CHIPBPP", Value: c.chip.BitsPerPixel, Comment: "native ADC depth"},
	}
}

// WriteFITS streams frames to w as a FITS image, or a cube if there is more
// than one frame.  The frames must share dimensions.  Samples are stored as
// BITPIX 16 with BZERO 32768 whatever their depth, and a DATACRC card holds
// DataCRC of the frames.
func WriteFITS(w io.Writer, metadata []fitsio.Card, frames ...*Image) error {
	if len(frames) == 0 {
		return fmt.Errorf("qhy: no frames to write")
	}
	width, height := frames[0].Width, frames[0].Height
	for i, f := range frames {
		if f.Width != width || f.Height != height {
			return fmt.Errorf("qhy: frame %d is %dx%d, frame 0 is %dx%d", i, f.Width, f.Height, width, height)
		}
	}
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := []int{width, height}
	if len(frames) > 1 {
		dims = append(dims, len(frames))
	}
	im := fitsio.NewImage(16, dims)
	defer im.Close()

	cards := append([]fitsio.Card{}, metadata...)
	cards = append(cards,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0},
		fitsio.Card{Name: "DATACRC", Value: int(DataCRC(frames...)), Comment: "CRC-32 of LE uint16 samples"})
	err = im.Header().Append(cards...)
	if err != nil {
		return err
	}

	// fitsio has no unsigned 16 bit type, shift into int16 and let BZERO undo it
	out := make([]int16, 0, width*height*len(frames))
	for _, f := range frames {
		for _, v := range f.Pix {
			out = append(out, int16(v-32768))
		}
	}
	err = im.Write(out)
	if err != nil {
		return err
	}
	return fits.Write(im)
}
