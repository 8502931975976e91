// qhycapture takes one frame or a burst from a QHY camera and writes it to a FITS file.
//
// Interrupting with ctrl-C cancels the exposure in flight.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/qhylab/qhy"
	"github.com/nasa-jpl/qhylab/util"
)

var (
	index    = flag.Int("index", 0, "index of the camera in the SDK scan")
	simulate = flag.Bool("sim", false, "use the simulated camera")
	texp     = flag.Float64("exposure", 0.1, "exposure time, seconds")
	gain     = flag.Float64("gain", 0, "sensor gain")
	offset   = flag.Float64("offset", 10, "sensor offset, ADU")
	binning  = flag.Int("bin", 1, "symmetric binning factor")
	bits     = flag.Int("bits", 16, "readout depth, 8 or 16")
	frames   = flag.Int("n", 1, "number of frames; more than one writes a cube")
	fps      = flag.Float64("fps", 0, "frame rate limit for bursts, 0 for none")
	out      = flag.String("o", "capture.fits", "output file")
)

func capture(ctx context.Context, spin *yacspin.Spinner) error {
	var lib qhy.Library
	if *simulate {
		lib = qhy.NewSimulator()
	} else {
		var err error
		lib, err = qhy.NewSDK()
		if err != nil {
			return err
		}
	}
	spin.Message("opening camera")
	c, err := qhy.Open(lib, *index)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer c.Close()

	err = c.Params().Configure(map[string]interface{}{
		qhy.ParamBits:     *bits,
		qhy.ParamBinning:  *binning,
		qhy.ParamExposure: float64(util.SecsToDuration(*texp) / time.Microsecond),
		qhy.ParamGain:     *gain,
		qhy.ParamOffset:   *offset,
	})
	if err != nil {
		return errors.Wrap(err, "configure")
	}

	spin.Message(fmt.Sprintf("exposing %d frame(s) of %s", *frames, c.ExposureTime()))
	var imgs []*qhy.Image
	if *frames == 1 {
		img, err := c.Capture(ctx)
		if err != nil {
			return errors.Wrap(err, "capture")
		}
		imgs = append(imgs, img)
	} else {
		imgs, err = c.Burst(ctx, *frames, *fps)
		if err != nil {
			return errors.Wrap(err, "burst")
		}
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer f.Close()
	return qhy.WriteFITS(f, c.HeaderCards(), imgs...)
}

func main() {
	flag.Parse()
	spin, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " ",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	spin.Start()
	err = capture(ctx, spin)
	if err != nil {
		spin.StopFailMessage(err.Error())
		spin.StopFail()
		os.Exit(1)
	}
	spin.StopMessage("wrote " + *out)
	spin.Stop()
}
