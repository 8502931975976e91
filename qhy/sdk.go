//go:build qhyccd
// +build qhyccd

package qhy

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lqhyccd
#include <stdlib.h>
#include <stdint.h>
#include <qhyccd.h>

*/
import "C"
import (
	"sync"
	"unsafe"
)

// idLength is the size of the buffer GetQHYCCDId writes into
const idLength = 32

// SDK is the Library backed by libqhyccd.  C handles are kept in a table
// and only their keys leave this type.
type SDK struct {
	mu      sync.Mutex
	next    Handle
	handles map[Handle]*C.qhyccd_handle
}

// NewSDK returns the native Library
func NewSDK() (Library, error) {
	return &SDK{next: 1, handles: map[Handle]*C.qhyccd_handle{}}, nil
}

// status converts the uint32_t returned by the SDK to a signed status code
func status(ret C.uint32_t) int {
	return int(int32(ret))
}

func (s *SDK) lookup(h Handle) *C.qhyccd_handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[h]
}

// InitResource calls InitQHYCCDResource
func (s *SDK) InitResource() int {
	return status(C.InitQHYCCDResource())
}

// Scan calls ScanQHYCCD
func (s *SDK) Scan() int {
	return int(C.ScanQHYCCD())
}

// Identify calls GetQHYCCDId
func (s *SDK) Identify(idx int) Identity {
	buf := (*C.char)(C.calloc(idLength, 1))
	defer C.free(unsafe.Pointer(buf))
	if status(C.GetQHYCCDId(C.uint32_t(idx), buf)) != 0 {
		return ""
	}
	return Identity(C.GoString(buf))
}

// Open calls OpenQHYCCD
func (s *SDK) Open(id Identity) Handle {
	cid := C.CString(string(id))
	defer C.free(unsafe.Pointer(cid))
	ptr := C.OpenQHYCCD(cid)
	if ptr == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.next
	s.next++
	s.handles[h] = ptr
	return h
}

// InitCamera calls InitQHYCCD
func (s *SDK) InitCamera(h Handle) int {
	return status(C.InitQHYCCD(s.lookup(h)))
}

// SetParam calls SetQHYCCDParam
func (s *SDK) SetParam(h Handle, tag ParamTag, value float64) int {
	return status(C.SetQHYCCDParam(s.lookup(h), C.CONTROL_ID(tag), C.double(value)))
}

// SetStreamMode calls SetQHYCCDStreamMode
func (s *SDK) SetStreamMode(h Handle, mode int) int {
	return status(C.SetQHYCCDStreamMode(s.lookup(h), C.uint8_t(mode)))
}

// SetResolution calls SetQHYCCDResolution
func (s *SDK) SetResolution(h Handle, x, y, width, height int) int {
	return status(C.SetQHYCCDResolution(s.lookup(h), C.uint32_t(x), C.uint32_t(y), C.uint32_t(width), C.uint32_t(height)))
}

// SetBinning calls SetQHYCCDBinMode
func (s *SDK) SetBinning(h Handle, binX, binY int) int {
	return status(C.SetQHYCCDBinMode(s.lookup(h), C.uint32_t(binX), C.uint32_t(binY)))
}

// SetBitDepth calls SetQHYCCDBitsMode
func (s *SDK) SetBitDepth(h Handle, bits int) int {
	return status(C.SetQHYCCDBitsMode(s.lookup(h), C.uint32_t(bits)))
}

// ChipInfo calls GetQHYCCDChipInfo.  The SDK reports the image size, which
// is also the addressable extent.
func (s *SDK) ChipInfo(h Handle) (Chip, int) {
	var (
		chipw, chiph, pixw, pixh C.double
		imgw, imgh, bpp          C.uint32_t
	)
	code := status(C.GetQHYCCDChipInfo(s.lookup(h), &chipw, &chiph, &imgw, &imgh, &pixw, &pixh, &bpp))
	return Chip{
		WidthMM:      float64(chipw),
		HeightMM:     float64(chiph),
		WidthPx:      int(imgw),
		HeightPx:     int(imgh),
		MaxX:         int(imgw),
		MaxY:         int(imgh),
		BitsPerPixel: int(bpp),
	}, code
}

// BeginExposure calls ExpQHYCCDSingleFrame
func (s *SDK) BeginExposure(h Handle) int {
	return status(C.ExpQHYCCDSingleFrame(s.lookup(h)))
}

// CancelExposure calls CancelQHYCCDExposingAndReadout
func (s *SDK) CancelExposure(h Handle) int {
	return status(C.CancelQHYCCDExposingAndReadout(s.lookup(h)))
}

// FetchFrame calls GetQHYCCDSingleFrame into a C buffer of bufLen bytes
// and copies out the part the SDK says it filled
func (s *SDK) FetchFrame(h Handle, width, height, bufLen int) ([]byte, int) {
	buf := (*C.uint8_t)(C.malloc(C.size_t(bufLen)))
	defer C.free(unsafe.Pointer(buf))
	var w, ht, bpp, channels C.uint32_t
	code := status(C.GetQHYCCDSingleFrame(s.lookup(h), &w, &ht, &bpp, &channels, buf))
	if code != 0 {
		return nil, code
	}
	n := int(w) * int(ht) * int(channels) * ((int(bpp) + 7) / 8)
	if n <= 0 || n > bufLen {
		n = bufLen
	}
	return C.GoBytes(unsafe.Pointer(buf), C.int(n)), code
}

// MemoryLength calls GetQHYCCDMemLength
func (s *SDK) MemoryLength(h Handle) int {
	return int(C.GetQHYCCDMemLength(s.lookup(h)))
}

// Close calls CloseQHYCCD and forgets the handle
func (s *SDK) Close(h Handle) int {
	code := status(C.CloseQHYCCD(s.lookup(h)))
	if code == 0 {
		s.mu.Lock()
		delete(s.handles, h)
		s.mu.Unlock()
	}
	return code
}

// Release calls ReleaseQHYCCDResource
func (s *SDK) Release() int {
	return status(C.ReleaseQHYCCDResource())
}

// Temperature reads CONTROL_CURTEMP
func (s *SDK) Temperature(h Handle) (float64, int) {
	t := float64(C.GetQHYCCDParam(s.lookup(h), C.CONTROL_ID(ControlCurTemp)))
	return t, ParamStatus(t)
}

// SetTargetTemperature calls ControlQHYCCDTemp
func (s *SDK) SetTargetTemperature(h Handle, celsius float64) int {
	return status(C.ControlQHYCCDTemp(s.lookup(h), C.double(celsius)))
}
