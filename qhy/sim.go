package qhy

import (
	"sync"
	"time"
)

// SimulatedChip is the sensor of a Simulator, 3.76 um pixels
var SimulatedChip = Chip{
	WidthMM:      20.85,
	HeightMM:     13.85,
	WidthPx:      5544,
	HeightPx:     3684,
	MaxX:         5544,
	MaxY:         3684,
	BitsPerPixel: 16,
}

// Simulator is an in-process Library with one virtual camera.  Frames are a
// ramp: sample i of a frame has the value i, truncated to the bit depth.
//
// The exported fields may be set before the Simulator is used.  Codes
// injects failures: any SDK function named as a key returns the mapped status
// instead of success, and OpenQHYCCD returns a nil handle.
type Simulator struct {
	sync.Mutex

	// Chip is reported by ChipInfo
	Chip Chip

	// ID is the identity of the camera
	ID Identity

	// Cameras is the count returned by a scan
	Cameras int

	// Codes maps SDK function names to the status they return
	Codes map[string]int

	// Skip is the number of calls to a function in Codes that still succeed
	// before its code takes effect
	Skip map[string]int

	// Block makes FetchFrame wait until the exposure is canceled
	Block bool

	// Delay is how long FetchFrame takes
	Delay time.Duration

	// MemLength is returned by MemoryLength
	MemLength int

	calls   []string
	handle  Handle
	expose  chan struct{}
	params  map[ParamTag]float64
	stream  int
	bits    int
	bin     int
	window  [4]int
	temp    float64
	target  float64
	loaded  bool
	cooling bool
}

// NewSimulator returns a Simulator with one camera on SimulatedChip
func NewSimulator() *Simulator {
	return &Simulator{
		Chip:    SimulatedChip,
		ID:      "QHYSIM-0000000000000000",
		Cameras: 1,
		Codes:   map[string]int{},
		Skip:    map[string]int{},
		params:  map[ParamTag]float64{},
		bits:    16,
		bin:     1,
		temp:    20,
		target:  20,
	}
}

// record logs a call and returns its injected status
func (s *Simulator) record(fn string) int {
	s.calls = append(s.calls, fn)
	if s.Skip[fn] > 0 {
		s.Skip[fn]--
		return 0
	}
	return s.Codes[fn]
}

// Calls returns the SDK functions called so far, in order
func (s *Simulator) Calls() []string {
	s.Lock()
	defer s.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns the number of calls to fn
func (s *Simulator) CallCount(fn string) int {
	s.Lock()
	defer s.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == fn {
			n++
		}
	}
	return n
}

// Param returns the last value written to a control
func (s *Simulator) Param(tag ParamTag) float64 {
	s.Lock()
	defer s.Unlock()
	return s.params[tag]
}

// Window returns the last binning and readout window programmed
func (s *Simulator) Window() (bin, x, y, w, h int) {
	s.Lock()
	defer s.Unlock()
	return s.bin, s.window[0], s.window[1], s.window[2], s.window[3]
}

// StreamMode returns the stream mode last programmed
func (s *Simulator) StreamMode() int {
	s.Lock()
	defer s.Unlock()
	return s.stream
}

// Loaded is true between a successful InitResource and Release
func (s *Simulator) Loaded() bool {
	s.Lock()
	defer s.Unlock()
	return s.loaded
}

// InitResource implements Library
func (s *Simulator) InitResource() int {
	s.Lock()
	defer s.Unlock()
	code := s.record("InitQHYCCDResource")
	if code == 0 {
		s.loaded = true
	}
	return code
}

// Scan implements Library
func (s *Simulator) Scan() int {
	s.Lock()
	defer s.Unlock()
	s.record("ScanQHYCCD")
	return s.Cameras
}

// Identify implements Library
func (s *Simulator) Identify(idx int) Identity {
	s.Lock()
	defer s.Unlock()
	if s.record("GetQHYCCDId") != 0 || idx >= s.Cameras {
		return ""
	}
	return s.ID
}

// Open implements Library
func (s *Simulator) Open(id Identity) Handle {
	s.Lock()
	defer s.Unlock()
	if s.record("OpenQHYCCD") != 0 || id != s.ID {
		return 0
	}
	s.handle = 0x600
	return s.handle
}

// InitCamera implements Library
func (s *Simulator) InitCamera(h Handle) int {
	s.Lock()
	defer s.Unlock()
	return s.record("InitQHYCCD")
}

// SetParam implements Library
func (s *Simulator) SetParam(h Handle, tag ParamTag, value float64) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("SetQHYCCDParam")
	if code == 0 {
		s.params[tag] = value
	}
	return code
}

// SetStreamMode implements Library
func (s *Simulator) SetStreamMode(h Handle, mode int) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("SetQHYCCDStreamMode")
	if code == 0 {
		s.stream = mode
	}
	return code
}

// SetResolution implements Library
func (s *Simulator) SetResolution(h Handle, x, y, width, height int) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("SetQHYCCDResolution")
	if code == 0 {
		s.window = [4]int{x, y, width, height}
	}
	return code
}

// SetBinning implements Library
func (s *Simulator) SetBinning(h Handle, binX, binY int) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("SetQHYCCDBinMode")
	if code == 0 {
		s.bin = binX
	}
	return code
}

// SetBitDepth implements Library
func (s *Simulator) SetBitDepth(h Handle, bits int) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("SetQHYCCDBitsMode")
	if code == 0 {
		s.bits = bits
	}
	return code
}

// ChipInfo implements Library
func (s *Simulator) ChipInfo(h Handle) (Chip, int) {
	s.Lock()
	defer s.Unlock()
	return s.Chip, s.record("GetQHYCCDChipInfo")
}

// BeginExposure implements Library
func (s *Simulator) BeginExposure(h Handle) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("ExpQHYCCDSingleFrame")
	if code == 0 {
		s.expose = make(chan struct{})
	}
	return code
}

// CancelExposure implements Library
func (s *Simulator) CancelExposure(h Handle) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("CancelQHYCCDExposingAndReadout")
	if code == 0 && s.expose != nil {
		close(s.expose)
		s.expose = nil
	}
	return code
}

// FetchFrame implements Library.  It fills the whole buffer it is asked for
// with the ramp, so a bufLen shorter than the frame yields a short read.
func (s *Simulator) FetchFrame(h Handle, width, height, bufLen int) ([]byte, int) {
	s.Lock()
	code := s.record("GetQHYCCDSingleFrame")
	expose, delay, block, bits := s.expose, s.Delay, s.Block, s.bits
	s.Unlock()
	if code != 0 {
		return nil, code
	}
	if expose == nil {
		return nil, -7 // EXPFAILED, nothing exposing
	}
	if block {
		<-expose
		return nil, -1
	}
	if delay > 0 {
		select {
		case <-expose:
			return nil, -1
		case <-time.After(delay):
		}
	}

	s.Lock()
	if s.expose == expose {
		s.expose = nil
	}
	s.Unlock()

	buf := make([]byte, bufLen)
	if bits == 8 {
		for i := range buf {
			buf[i] = byte(i)
		}
	} else {
		for i := 0; i+1 < len(buf); i += 2 {
			v := uint16(i / 2)
			buf[i] = byte(v)
			buf[i+1] = byte(v >> 8)
		}
	}
	return buf, 0
}

// MemoryLength implements Library
func (s *Simulator) MemoryLength(h Handle) int {
	s.Lock()
	defer s.Unlock()
	s.record("GetQHYCCDMemLength")
	return s.MemLength
}

// Close implements Library
func (s *Simulator) Close(h Handle) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("CloseQHYCCD")
	if code == 0 {
		s.handle = 0
	}
	return code
}

// Release implements Library
func (s *Simulator) Release() int {
	s.Lock()
	defer s.Unlock()
	code := s.record("ReleaseQHYCCDResource")
	if code == 0 {
		s.loaded = false
	}
	return code
}

// Temperature implements Thermal.  With the cooler on the sensor closes a
// tenth of the distance to the setpoint per read.
func (s *Simulator) Temperature(h Handle) (float64, int) {
	s.Lock()
	defer s.Unlock()
	code := s.record("GetQHYCCDParam")
	if s.cooling {
		s.temp += (s.target - s.temp) / 10
	}
	return s.temp, code
}

// SetTargetTemperature implements Thermal
func (s *Simulator) SetTargetTemperature(h Handle, celsius float64) int {
	s.Lock()
	defer s.Unlock()
	code := s.record("ControlQHYCCDTemp")
	if code == 0 {
		s.target = celsius
		s.cooling = true
	}
	return code
}
