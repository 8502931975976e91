package qhy

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type fetchResult struct {
	buf  []byte
	code int
}

// ExposureTime returns the programmed exposure as a duration
func (c *Camera) ExposureTime() time.Duration {
	us, _ := c.params.Read(ParamExposure)
	return time.Duration(us * float64(time.Microsecond))
}

// Capture exposes and reads out one frame.  The camera must be Idle and is
// Idle again when Capture returns, unless the device faulted.
//
// Capture blocks for up to the exposure time plus the readout margin.  It
// returns ErrCanceled if ctx is done or Cancel is called first.
func (c *Camera) Capture(ctx context.Context) (*Image, error) {
	if s := c.State(); s != StateIdle {
		return nil, notIdle("Capture", s)
	}
	abort, err := c.startExposure()
	if err != nil {
		return nil, err
	}
	return c.readout(ctx, abort)
}

// Readout waits for the frame of the exposure in flight, decodes it, and
// returns the camera to Idle
func (c *Camera) Readout(ctx context.Context) (*Image, error) {
	return c.readout(ctx, c.exposure())
}

func canceled(abort chan struct{}) bool {
	if abort == nil {
		return false
	}
	select {
	case <-abort:
		return true
	default:
		return false
	}
}

// readout waits out the exposure whose Cancel closes abort
func (c *Camera) readout(ctx context.Context, abort chan struct{}) (*Image, error) {
	defer c.readDone(abort)
	if s := c.State(); s != StateExposing || abort == nil {
		// canceled between StartExposure and here
		if canceled(abort) {
			return nil, &DeviceError{Kind: KindCanceled, Op: "Readout"}
		}
		return nil, illegal("Readout", s)
	}
	roi := c.params.ROI()
	width, height, err := EffectiveDimensions(c.chip, roi)
	if err != nil {
		c.Cancel()
		return nil, err
	}
	bits, _ := c.params.Read(ParamBits)
	n := BufferLength(width, height, int(bits), c.lib.MemoryLength(c.handle))

	done := make(chan fetchResult, 1)
	go func(h Handle) {
		buf, code := c.lib.FetchFrame(h, width, height, n)
		done <- fetchResult{buf, code}
	}(c.handle)

	limit := c.ExposureTime() + c.margin
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-done:
		if err := Error(res.code, "GetQHYCCDSingleFrame"); err != nil {
			if canceled(abort) {
				return nil, &DeviceError{Kind: KindCanceled, Op: "Capture", Cause: err}
			}
			fail := &DeviceError{Kind: KindCaptureFailed, Code: res.code, Op: "GetQHYCCDSingleFrame", Cause: err}
			c.fault("GetQHYCCDSingleFrame", fail)
			return nil, fail
		}
		if !c.move(StateExposing, StateFrameReady, "GetQHYCCDSingleFrame") {
			return nil, &DeviceError{Kind: KindCanceled, Op: "Capture"}
		}
		img, err := Decode(res.buf, width, height, int(bits))
		c.Consume()
		if err != nil {
			return nil, err
		}
		return img, nil

	case <-abort:
		// closed only once Cancel has moved the camera out of Exposing
		return nil, &DeviceError{Kind: KindCanceled, Op: "Capture"}

	case <-ctx.Done():
		cerr := c.Cancel()
		if cerr != nil {
			return nil, cerr
		}
		return nil, &DeviceError{Kind: KindCanceled, Op: "Capture", Cause: ctx.Err()}

	case <-timer.C:
		err := &DeviceError{Kind: KindTimeout, Op: "GetQHYCCDSingleFrame", Cause: fmt.Errorf("no frame within %s", limit)}
		c.fault("GetQHYCCDSingleFrame", err)
		return nil, err
	}
}

// Burst captures n frames no faster than fps frames per second.  The
// frames all have the same geometry.  fps <= 0 does not limit the rate.
func (c *Camera) Burst(ctx context.Context, n int, fps float64) ([]*Image, error) {
	if n < 1 {
		return nil, &ValidationError{Kind: OutOfRange, Param: "frames", Value: n, Detail: "at least 1"}
	}
	out := make([]*Image, 0, n)
	ch := make(chan *Image)
	errC := make(chan error, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		errC <- c.Stream(ctx, n, fps, ch)
		close(ch)
	}()
	for img := range ch {
		out = append(out, img)
	}
	err := <-errC
	if err == nil && len(out) < n {
		err = &DeviceError{Kind: KindCanceled, Op: "Burst", Cause: fmt.Errorf("%d of %d frames: %w", len(out), n, ctx.Err())}
	}
	return out, err
}

// Stream captures up to n frames, n <= 0 meaning until ctx is done, paced to
// fps, and sends each on ch.  It stops at the first error.  A done ctx ends
// the stream without error once at least one frame was sent.
func (c *Camera) Stream(ctx context.Context, n int, fps float64, ch chan<- *Image) error {
	lim := rate.NewLimiter(rate.Inf, 1)
	if fps > 0 {
		lim = rate.NewLimiter(rate.Limit(fps), 1)
	}
	for i := 0; n <= 0 || i < n; i++ {
		if err := lim.Wait(ctx); err != nil {
			if i > 0 && ctx.Err() != nil {
				return nil
			}
			return err
		}
		img, err := c.Capture(ctx)
		if err != nil {
			if i > 0 && ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case ch <- img:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
