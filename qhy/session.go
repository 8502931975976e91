package qhy

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// DeviceState is the lifecycle phase of a Camera
type DeviceState uint32

const (
	// StateUninitialized is a camera that has not been opened
	StateUninitialized DeviceState = iota

	// StateIdle is open and ready to configure or expose
	StateIdle

	// StateExposing has an exposure or readout in flight
	StateExposing

	// StateFrameReady holds a frame that has not been consumed
	StateFrameReady

	// StateFaulted saw an unrecoverable device error.  Only Close is legal.
	StateFaulted

	// StateClosed is terminal
	StateClosed
)

func (s DeviceState) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateIdle:
		return "Idle"
	case StateExposing:
		return "Exposing"
	case StateFrameReady:
		return "FrameReady"
	case StateFaulted:
		return "Faulted"
	case StateClosed:
		return "Closed"
	}
	return fmt.Sprintf("DeviceState(%d)", uint32(s))
}

// DefaultReadoutMargin is added to the exposure time to get the readout timeout
const DefaultReadoutMargin = 5 * time.Second

// Transition records one change of DeviceState
type Transition struct {
	From DeviceState `json:"from"`
	To   DeviceState `json:"to"`

	// Op is the operation that caused the change
	Op string `json:"op"`

	// Err is set when the transition is a fault
	Err error `json:"-"`
}

// Observer is called synchronously on every state transition.  It must not
// call back into the Camera.
type Observer func(Transition)

// Option configures a Camera at Open
type Option func(*Camera)

// WithReadoutMargin sets the time allowed past the exposure time for the
// frame to arrive before Capture gives up with a Timeout
func WithReadoutMargin(d time.Duration) Option {
	return func(c *Camera) {
		c.margin = d
	}
}

// WithLogger logs transitions and faults to l
func WithLogger(l *log.Logger) Option {
	return func(c *Camera) {
		c.logger = l
	}
}

// WithObserver adds an observer of state transitions
func WithObserver(o Observer) Option {
	return func(c *Camera) {
		c.observers = append(c.observers, o)
	}
}

// WithStreamMode sets the stream mode ("single" or "live") written during Open
func WithStreamMode(mode string) Option {
	return func(c *Camera) {
		c.streamMode = mode
	}
}

// Camera is one open session with a QHY camera.
//
// Captures are not serialized: a caller sharing a Camera between goroutines
// must not start a Capture while another is outstanding; the second fails
// with AlreadyExposing.  Parameter writes, Cancel, and the state, parameter
// and thermal getters are safe to call concurrently with a Capture.
type Camera struct {
	lib    Library
	handle Handle
	id     Identity
	chip   Chip
	params *Registry

	state *atomic.Uint32

	// expMu orders Cancel against the start of the next exposure.  abort is
	// made by StartExposure and closed by the Cancel that ends that exposure.
	expMu sync.Mutex
	abort chan struct{}

	setpoint   *atomic.Float64
	margin     time.Duration
	streamMode string
	logger     *log.Logger
	observers  []Observer
}

// Open initializes the SDK, opens the camera at index idx of a scan, reads its
// chip geometry and programs the stream mode.  On failure everything that was
// acquired is released again and the error is returned.
func Open(lib Library, idx int, opts ...Option) (*Camera, error) {
	c := &Camera{
		lib:        lib,
		state:      atomic.NewUint32(uint32(StateUninitialized)),
		setpoint:   atomic.NewFloat64(0),
		margin:     DefaultReadoutMargin,
		streamMode: "single",
		logger:     log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := Error(lib.InitResource(), "InitQHYCCDResource"); err != nil {
		return nil, err
	}
	n := lib.Scan()
	if n <= 0 || idx < 0 || idx >= n {
		err := &DeviceError{Kind: KindNoDevice, Op: "ScanQHYCCD", Cause: fmt.Errorf("camera %d requested, %d found", idx, n)}
		return nil, c.abortOpen(err)
	}
	c.id = lib.Identify(idx)
	if c.id == "" {
		return nil, c.abortOpen(&DeviceError{Kind: KindNoDevice, Op: "GetQHYCCDId"})
	}
	c.handle = lib.Open(c.id)
	if c.handle == 0 {
		return nil, c.abortOpen(&DeviceError{Kind: KindOpenFailed, Op: "OpenQHYCCD", Cause: fmt.Errorf("no handle for %s", c.id)})
	}
	if err := Error(lib.InitCamera(c.handle), "InitQHYCCD"); err != nil {
		return nil, c.abortOpen(err)
	}
	chip, code := lib.ChipInfo(c.handle)
	if err := Error(code, "GetQHYCCDChipInfo"); err != nil {
		return nil, c.abortOpen(err)
	}
	if err := chip.Validate(); err != nil {
		return nil, c.abortOpen(err)
	}
	c.chip = chip
	c.params = newRegistry(chip, c)
	c.move(StateUninitialized, StateIdle, "Open")
	if err := c.params.WriteEnum(ParamStreamMode, c.streamMode); err != nil {
		return nil, c.abortOpen(err)
	}
	c.logger.Printf("opened %s, %dx%d px, %d bit", c.id, chip.MaxX, chip.MaxY, chip.BitsPerPixel)
	return c, nil
}

// abortOpen undoes a partial Open
func (c *Camera) abortOpen(err error) error {
	if c.handle != 0 {
		err = multierr.Append(err, Error(c.lib.Close(c.handle), "CloseQHYCCD"))
		c.handle = 0
	}
	err = multierr.Append(err, Error(c.lib.Release(), "ReleaseQHYCCDResource"))
	c.state.Store(uint32(StateClosed))
	return err
}

// State returns the current lifecycle state
func (c *Camera) State() DeviceState {
	return DeviceState(c.state.Load())
}

// Identity returns the ID of the camera found during Open
func (c *Camera) Identity() Identity {
	return c.id
}

// Chip returns the sensor geometry
func (c *Camera) Chip() Chip {
	return c.chip
}

// Params returns the parameter registry.  Writes through it reach the device.
func (c *Camera) Params() *Registry {
	return c.params
}

// move changes state from -> to if the camera is in from
func (c *Camera) move(from, to DeviceState, op string) bool {
	if !c.state.CompareAndSwap(uint32(from), uint32(to)) {
		return false
	}
	c.notify(Transition{From: from, To: to, Op: op})
	return true
}

// fault moves any state but Closed to Faulted
func (c *Camera) fault(op string, err error) {
	for {
		from := c.State()
		if from == StateClosed || from == StateFaulted {
			return
		}
		if c.state.CompareAndSwap(uint32(from), uint32(StateFaulted)) {
			c.notify(Transition{From: from, To: StateFaulted, Op: op, Err: err})
			return
		}
	}
}

func (c *Camera) notify(t Transition) {
	if t.Err != nil {
		c.logger.Printf("%s: %s -> %s: %s", t.Op, t.From, t.To, t.Err)
	} else {
		c.logger.Printf("%s: %s -> %s", t.Op, t.From, t.To)
	}
	for _, o := range c.observers {
		o(t)
	}
}

// illegal builds the error for op attempted in state s
func illegal(op string, s DeviceState) error {
	if s == StateClosed {
		return &DeviceError{Kind: KindClosed, Op: op, State: s}
	}
	return &DeviceError{Kind: KindInvalidState, Op: op, State: s}
}

// notIdle is illegal for the operations that start an exposure
func notIdle(op string, s DeviceState) error {
	if s == StateExposing {
		return &DeviceError{Kind: KindAlreadyExposing, Op: op, State: s}
	}
	return illegal(op, s)
}

func (c *Camera) writable(op string) error {
	switch s := c.State(); s {
	case StateIdle, StateFrameReady:
		return nil
	default:
		return illegal(op, s)
	}
}

func (c *Camera) forward(e *Entry, v float64) error {
	switch e.Name {
	case ParamStreamMode:
		return Error(c.lib.SetStreamMode(c.handle, int(v)), "SetQHYCCDStreamMode")
	case ParamBits:
		return Error(c.lib.SetBitDepth(c.handle, int(v)), "SetQHYCCDBitsMode")
	}
	return Error(c.lib.SetParam(c.handle, e.Tag, v), "SetQHYCCDParam")
}

func (c *Camera) forwardROI(prev, next ROI) error {
	if next.Binning != prev.Binning {
		if err := Error(c.lib.SetBinning(c.handle, next.Binning, next.Binning), "SetQHYCCDBinMode"); err != nil {
			return err
		}
	}
	w, h, err := EffectiveDimensions(c.chip, next)
	if err != nil {
		return err
	}
	err = Error(c.lib.SetResolution(c.handle, next.StartX, next.StartY, w, h), "SetQHYCCDResolution")
	if err != nil && next.Binning != prev.Binning {
		// restore the device binning, the registry is unchanged
		restore := Error(c.lib.SetBinning(c.handle, prev.Binning, prev.Binning), "SetQHYCCDBinMode")
		if restore != nil {
			// the device binning no longer matches the registry
			c.fault("SetQHYCCDBinMode", restore)
		}
		err = multierr.Append(err, restore)
	}
	return err
}

// StartExposure begins a single frame exposure.  The camera must be Idle.
// Parameters written before it are the ones the frame is taken with.
func (c *Camera) StartExposure() error {
	_, err := c.startExposure()
	return err
}

// startExposure returns the channel closed if the exposure is canceled
func (c *Camera) startExposure() (chan struct{}, error) {
	c.params.mu.Lock()
	defer c.params.mu.Unlock()
	c.expMu.Lock()
	defer c.expMu.Unlock()
	if !c.move(StateIdle, StateExposing, "StartExposure") {
		return nil, notIdle("StartExposure", c.State())
	}
	c.abort = make(chan struct{})
	if err := Error(c.lib.BeginExposure(c.handle), "ExpQHYCCDSingleFrame"); err != nil {
		c.fault("ExpQHYCCDSingleFrame", err)
		return nil, err
	}
	c.params.settle()
	return c.abort, nil
}

// Cancel stops an exposure in flight and returns the camera to Idle.  It is a
// no-op in any other open state.  A Capture waiting on the frame returns
// ErrCanceled.  The next exposure cannot start until the device has been told
// to cancel this one.
func (c *Camera) Cancel() error {
	c.expMu.Lock()
	defer c.expMu.Unlock()
	switch c.State() {
	case StateClosed:
		return &DeviceError{Kind: KindClosed, Op: "Cancel", State: StateClosed}
	case StateExposing:
		if !c.move(StateExposing, StateIdle, "Cancel") {
			return nil
		}
		if c.abort != nil {
			close(c.abort)
		}
		if err := Error(c.lib.CancelExposure(c.handle), "CancelQHYCCDExposingAndReadout"); err != nil {
			c.fault("CancelQHYCCDExposingAndReadout", err)
			return err
		}
	}
	return nil
}

// exposure returns the abort channel of the last exposure started, nil if
// it has been read out
func (c *Camera) exposure() chan struct{} {
	c.expMu.Lock()
	defer c.expMu.Unlock()
	return c.abort
}

// readDone forgets the abort channel of an exposure that has been read out
func (c *Camera) readDone(abort chan struct{}) {
	c.expMu.Lock()
	defer c.expMu.Unlock()
	if c.abort == abort {
		c.abort = nil
	}
}

// Consume returns a camera holding a frame to Idle.  Capture does this itself.
func (c *Camera) Consume() error {
	if !c.move(StateFrameReady, StateIdle, "Consume") {
		return illegal("Consume", c.State())
	}
	return nil
}

// Close cancels any exposure, closes the camera and releases the SDK.  It is
// legal from Idle, FrameReady and Faulted.  If the SDK fails to close the
// camera it is left Faulted and Close may be called again; any other failure
// still ends Closed.
func (c *Camera) Close() error {
	from := c.State()
	switch from {
	case StateIdle, StateFrameReady, StateFaulted:
	default:
		return illegal("Close", from)
	}
	errs := Error(c.lib.CancelExposure(c.handle), "CancelQHYCCDExposingAndReadout")
	if err := Error(c.lib.Close(c.handle), "CloseQHYCCD"); err != nil {
		c.fault("CloseQHYCCD", err)
		return multierr.Append(errs, err)
	}
	c.handle = 0
	errs = multierr.Append(errs, Error(c.lib.Release(), "ReleaseQHYCCDResource"))
	from = DeviceState(c.state.Swap(uint32(StateClosed)))
	c.notify(Transition{From: from, To: StateClosed, Op: "Close", Err: errs})
	return errs
}

func (c *Camera) thermal(op string) (Thermal, error) {
	switch s := c.State(); s {
	case StateClosed, StateUninitialized:
		return nil, illegal(op, s)
	}
	t, ok := c.lib.(Thermal)
	if !ok {
		return nil, &DeviceError{Kind: KindUnsupported, Op: op, Cause: fmt.Errorf("%T has no cooler control", c.lib)}
	}
	return t, nil
}

// GetTemperature returns the sensor temperature in Celsius
func (c *Camera) GetTemperature() (float64, error) {
	t, err := c.thermal("GetTemperature")
	if err != nil {
		return 0, err
	}
	f, code := t.Temperature(c.handle)
	return f, Error(code, "GetQHYCCDParam")
}

// SetTemperatureSetpoint sets the cooler target in Celsius
func (c *Camera) SetTemperatureSetpoint(celsius float64) error {
	t, err := c.thermal("SetTemperatureSetpoint")
	if err != nil {
		return err
	}
	if err := Error(t.SetTargetTemperature(c.handle, celsius), "ControlQHYCCDTemp"); err != nil {
		return err
	}
	c.setpoint.Store(celsius)
	return nil
}

// GetTemperatureSetpoint returns the last setpoint written, 0 if none was
func (c *Camera) GetTemperatureSetpoint() (float64, error) {
	if _, err := c.thermal("GetTemperatureSetpoint"); err != nil {
		return 0, err
	}
	return c.setpoint.Load(), nil
}
