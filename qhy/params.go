package qhy

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/nasa-jpl/qhylab/util"
)

// parameter names tracked by a Registry
const (
	ParamStreamMode = "stream_mode"
	ParamExposure   = "exposure"
	ParamGain       = "gain"
	ParamOffset     = "offset"
	ParamUSBTraffic = "usb_traffic"
	ParamSpeed      = "speed"
	ParamStartX     = "start_x"
	ParamStartY     = "start_y"
	ParamROIWidth   = "roi_width"
	ParamROIHeight  = "roi_height"
	ParamBinning    = "binning"
	ParamBits       = "bits"
)

// DomainKind says how a Domain constrains values
type DomainKind int

const (
	// RangeDomain is a closed interval with an optional step
	RangeDomain DomainKind = iota

	// EnumDomain is a set of named values, coded as their index
	EnumDomain

	// DiscreteDomain is a set of legal numbers
	DiscreteDomain
)

// Domain is the set of legal values of one parameter
type Domain struct {
	Kind DomainKind

	// Min, Max and Step bound a RangeDomain.  Step of zero is continuous.
	Min, Max, Step float64

	// Keys are the names of an EnumDomain; the code of a key is its index
	Keys []string

	// Values are the members of a DiscreteDomain
	Values []float64
}

// Range returns a RangeDomain
func Range(min, max, step float64) Domain {
	return Domain{Kind: RangeDomain, Min: min, Max: max, Step: step}
}

// Enum returns an EnumDomain
func Enum(keys ...string) Domain {
	return Domain{Kind: EnumDomain, Keys: keys}
}

// Discrete returns a DiscreteDomain
func Discrete(values ...float64) Domain {
	return Domain{Kind: DiscreteDomain, Values: values}
}

func (d Domain) String() string {
	switch d.Kind {
	case EnumDomain:
		return fmt.Sprintf("one of %v", d.Keys)
	case DiscreteDomain:
		return fmt.Sprintf("one of %v", d.Values)
	}
	if d.Step > 0 {
		return fmt.Sprintf("[%g, %g] step %g", d.Min, d.Max, d.Step)
	}
	return fmt.Sprintf("[%g, %g]", d.Min, d.Max)
}

// Validate returns a *ValidationError if v is not a member of the domain
func (d Domain) Validate(name string, v float64) error {
	switch d.Kind {
	case EnumDomain:
		idx := int(v)
		if float64(idx) != v || idx < 0 || idx >= len(d.Keys) {
			return &ValidationError{Kind: UnknownVariant, Param: name, Value: v, Detail: d.String()}
		}
		return nil
	case DiscreteDomain:
		for _, m := range d.Values {
			if m == v {
				return nil
			}
		}
		return &ValidationError{Kind: OutOfRange, Param: name, Value: v, Detail: d.String()}
	}
	if !(v >= d.Min && v <= d.Max) {
		return &ValidationError{Kind: OutOfRange, Param: name, Value: v, Detail: d.String()}
	}
	if d.Step > 0 {
		n := (v - d.Min) / d.Step
		if math.Abs(n-math.Round(n)) > 1e-9 {
			return &ValidationError{Kind: OutOfRange, Param: name, Value: v, Detail: d.String()}
		}
	}
	return nil
}

// Code returns the numeric code of an enum key
func (d Domain) Code(key string) (int, bool) {
	for idx, k := range d.Keys {
		if k == key {
			return idx, true
		}
	}
	return 0, false
}

// Entry is one tracked parameter
type Entry struct {
	// Name is the registry key
	Name string

	// Domain holds the legal values
	Domain Domain

	// Unit is for humans and FITS headers
	Unit string

	// Tag is the SDK control the value is written to, zero if the value has
	// its own SDK call
	Tag ParamTag

	value atomic.Float64
	dirty atomic.Bool
}

// Value returns the cached value
func (e *Entry) Value() float64 {
	return e.value.Load()
}

// Pending is true if the value was written since the last exposure began
func (e *Entry) Pending() bool {
	return e.dirty.Load()
}

func (e *Entry) commit(v float64) {
	e.value.Store(v)
	e.dirty.Store(true)
}

// forwarder pushes accepted values to the device.  The Camera implements it.
type forwarder interface {
	// writable returns an error if parameters cannot be written now
	writable(op string) error

	// forward writes one scalar
	forward(e *Entry, v float64) error

	// forwardROI writes a new binning and readout window
	forwardROI(prev, next ROI) error
}

// Registry holds the current value and domain of every camera parameter.
//
// Reads come from the cache of the last accepted write and never touch the
// device.  Writes validate, forward, and commit in that order; a write that
// fails at any step leaves every entry unchanged.  Writes are serialized with
// each other and with the start of an exposure, so the state check and the
// commit of one write see the same camera state.
type Registry struct {
	chip    Chip
	fwd     forwarder
	entries map[string]*Entry

	// mu is held for writing across a whole write and while an exposure
	// starts; readers of more than one entry hold it for reading
	mu sync.RWMutex
}

// NewRegistry returns a Registry for chip that validates writes without
// forwarding them anywhere.  The Camera builds its own, wired to the device.
func NewRegistry(chip Chip) *Registry {
	return newRegistry(chip, nil)
}

func newRegistry(chip Chip, fwd forwarder) *Registry {
	maxDim := float64(chip.MaxX)
	if chip.MaxY > chip.MaxX {
		maxDim = float64(chip.MaxY)
	}
	r := &Registry{chip: chip, fwd: fwd, entries: map[string]*Entry{}}
	add := func(name string, d Domain, unit string, tag ParamTag) {
		r.entries[name] = &Entry{Name: name, Domain: d, Unit: unit, Tag: tag}
	}
	add(ParamStreamMode, Enum("single", "live"), "", 0)
	add(ParamExposure, Range(50, 3600e6, 0), "us", ControlExposure)
	add(ParamGain, Range(0, 100, 0), "", ControlGain)
	add(ParamOffset, Range(0, 255, 0), "ADU", ControlOffset)
	add(ParamUSBTraffic, Range(0, 255, 1), "", ControlUSBTraffic)
	add(ParamSpeed, Enum("low", "high"), "", ControlSpeed)
	add(ParamStartX, Range(0, float64(chip.MaxX-1), 1), "px", 0)
	add(ParamStartY, Range(0, float64(chip.MaxY-1), 1), "px", 0)
	add(ParamROIWidth, Range(1, float64(chip.MaxX), 1), "px", 0)
	add(ParamROIHeight, Range(1, float64(chip.MaxY), 1), "px", 0)
	add(ParamBinning, Range(1, math.Min(4, maxDim), 1), "", 0)
	add(ParamBits, Discrete(8, 16), "bit", 0)

	// the SDK comes up reading the whole chip unbinned at full depth
	full := FullFrame(chip)
	r.seed(ParamROIWidth, float64(full.Width))
	r.seed(ParamROIHeight, float64(full.Height))
	r.seed(ParamBinning, 1)
	if chip.BitsPerPixel > 0 && chip.BitsPerPixel <= 8 {
		r.seed(ParamBits, 8)
	} else {
		r.seed(ParamBits, 16)
	}
	return r
}

// Names returns the sorted parameter names
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entry returns the entry for name
func (r *Registry) Entry(name string) (*Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, &ValidationError{Kind: UnknownParameter, Param: name, Detail: "known parameters are " + strings.Join(r.Names(), ", ")}
	}
	return e, nil
}

// Read returns the last accepted value of name.  A parameter never written
// reads as its default: the whole chip unbinned for the ROI, the native depth
// for bits, and 0 (the first key of an enum) for everything else.
func (r *Registry) Read(name string) (float64, error) {
	e, err := r.Entry(name)
	if err != nil {
		return 0, err
	}
	return e.Value(), nil
}

// ReadEnum returns the key of an enum parameter
func (r *Registry) ReadEnum(name string) (string, error) {
	e, err := r.Entry(name)
	if err != nil {
		return "", err
	}
	if e.Domain.Kind != EnumDomain {
		return "", &ValidationError{Kind: UnknownVariant, Param: name, Detail: "not an enumeration"}
	}
	return e.Domain.Keys[int(e.Value())], nil
}

// WriteEnum writes the code of key to an enum parameter
func (r *Registry) WriteEnum(name, key string) error {
	e, err := r.Entry(name)
	if err != nil {
		return err
	}
	if e.Domain.Kind != EnumDomain {
		return &ValidationError{Kind: UnknownVariant, Param: name, Value: key, Detail: "not an enumeration"}
	}
	code, ok := e.Domain.Code(key)
	if !ok {
		return &ValidationError{Kind: UnknownVariant, Param: name, Value: key, Detail: e.Domain.String()}
	}
	return r.Write(name, float64(code))
}

// Write validates v, forwards it to the device, and commits it
func (r *Registry) Write(name string, v float64) error {
	e, err := r.Entry(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fwd != nil {
		if err := r.fwd.writable("write " + name); err != nil {
			return err
		}
	}
	if err := e.Domain.Validate(name, v); err != nil {
		return err
	}
	switch name {
	case ParamStartX, ParamStartY, ParamROIWidth, ParamROIHeight, ParamBinning:
		return r.writeROI(name, int(v))
	}
	if r.fwd != nil {
		if err := r.fwd.forward(e, v); err != nil {
			return err
		}
	}
	e.commit(v)
	return nil
}

// ROI returns the current region of interest
func (r *Registry) ROI() ROI {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roi()
}

func (r *Registry) roi() ROI {
	return ROI{
		StartX:  int(r.entries[ParamStartX].Value()),
		StartY:  int(r.entries[ParamStartY].Value()),
		Width:   int(r.entries[ParamROIWidth].Value()),
		Height:  int(r.entries[ParamROIHeight].Value()),
		Binning: int(r.entries[ParamBinning].Value()),
	}
}

// SetROI writes the whole region of interest as one change
func (r *Registry) SetROI(roi ROI) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fwd != nil {
		if err := r.fwd.writable("write roi"); err != nil {
			return err
		}
	}
	fields := []struct {
		name string
		v    int
	}{
		{ParamStartX, roi.StartX},
		{ParamStartY, roi.StartY},
		{ParamROIWidth, roi.Width},
		{ParamROIHeight, roi.Height},
		{ParamBinning, roi.Binning},
	}
	for _, f := range fields {
		if err := r.entries[f.name].Domain.Validate(f.name, float64(f.v)); err != nil {
			return err
		}
	}
	return r.applyROI(r.roi(), roi)
}

func (r *Registry) writeROI(name string, v int) error {
	prev := r.roi()
	next := prev
	switch name {
	case ParamStartX:
		next.StartX = v
	case ParamStartY:
		next.StartY = v
	case ParamROIWidth:
		next.Width = v
	case ParamROIHeight:
		next.Height = v
	case ParamBinning:
		next.Binning = v
		next.Width = minInt(prev.Width, r.chip.MaxX/v)
		next.Height = minInt(prev.Height, r.chip.MaxY/v)
	}
	return r.applyROI(prev, next)
}

func (r *Registry) applyROI(prev, next ROI) error {
	if err := r.checkROI(next); err != nil {
		return err
	}
	if r.fwd != nil {
		if err := r.fwd.forwardROI(prev, next); err != nil {
			return err
		}
	}
	r.commitROI(next)
	return nil
}

// checkROI validates roi against the binning-adjusted bounds of the chip
func (r *Registry) checkROI(roi ROI) error {
	b := roi.Binning
	if _, _, err := EffectiveDimensions(r.chip, roi); err != nil {
		return err
	}
	if maxW := r.chip.MaxX / b; roi.Width > maxW {
		return &ValidationError{Kind: OutOfRange, Param: ParamROIWidth, Value: roi.Width,
			Detail: fmt.Sprintf("at most %d at binning %d", maxW, b)}
	}
	if maxH := r.chip.MaxY / b; roi.Height > maxH {
		return &ValidationError{Kind: OutOfRange, Param: ParamROIHeight, Value: roi.Height,
			Detail: fmt.Sprintf("at most %d at binning %d", maxH, b)}
	}
	if end := roi.StartX + roi.Width/b; end > r.chip.MaxX {
		return &ValidationError{Kind: OutOfRange, Param: ParamStartX, Value: roi.StartX,
			Detail: fmt.Sprintf("start_x + roi_width/binning = %d exceeds %d", end, r.chip.MaxX)}
	}
	if end := roi.StartY + roi.Height/b; end > r.chip.MaxY {
		return &ValidationError{Kind: OutOfRange, Param: ParamStartY, Value: roi.StartY,
			Detail: fmt.Sprintf("start_y + roi_height/binning = %d exceeds %d", end, r.chip.MaxY)}
	}
	return nil
}

func (r *Registry) commitROI(next ROI) {
	set := func(name string, v int) {
		if e := r.entries[name]; e.Value() != float64(v) {
			e.commit(float64(v))
		}
	}
	set(ParamStartX, next.StartX)
	set(ParamStartY, next.StartY)
	set(ParamROIWidth, next.Width)
	set(ParamROIHeight, next.Height)
	set(ParamBinning, next.Binning)
}

// seed sets values without validation or forwarding, for state the device
// is known to be in after InitCamera
func (r *Registry) seed(name string, v float64) {
	r.entries[name].value.Store(v)
}

// Pending returns the sorted names of parameters written since the last
// exposure began
func (r *Registry) Pending() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{}
	for k, e := range r.entries {
		if e.Pending() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// settle clears Pending.  The caller holds mu.
func (r *Registry) settle() {
	for _, e := range r.entries {
		e.dirty.Store(false)
	}
}

// Snapshot returns a copy of every cached value
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.entries))
	for k, e := range r.entries {
		out[k] = e.Value()
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// configureOrder applies binning before the window it clamps, and the bit
// depth and stream mode before anything that depends on them
var configureOrder = []string{
	ParamStreamMode, ParamBits, ParamBinning,
	ParamStartX, ParamStartY, ParamROIWidth, ParamROIHeight,
	ParamSpeed, ParamUSBTraffic, ParamExposure, ParamGain, ParamOffset,
}

// Configure writes many parameters at once.  Values may be numbers, or
// strings for enum parameters.  Every key is attempted; the errors of those
// that failed are combined.
func (r *Registry) Configure(settings map[string]interface{}) error {
	var errs []error
	for k := range settings {
		if _, ok := r.entries[k]; !ok {
			errs = append(errs, &ValidationError{Kind: UnknownParameter, Param: k})
		}
	}
	for _, k := range configureOrder {
		v, ok := settings[k]
		if !ok {
			continue
		}
		var err error
		switch t := v.(type) {
		case string:
			err = r.WriteEnum(k, t)
		case float64:
			err = r.Write(k, t)
		case int:
			err = r.Write(k, float64(t))
		case int64:
			err = r.Write(k, float64(t))
		default:
			err = &ValidationError{Kind: OutOfRange, Param: k, Value: v, Detail: fmt.Sprintf("%T is not a number or string", v)}
		}
		errs = append(errs, err)
	}
	return util.MergeErrors(errs)
}
