// Package camera provides a generic HTTP interface to a scientific camera
package camera

import (
	"encoding/json"
	"go/types"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/pkg/errors"
	"goji.io/pat"

	"github.com/nasa-jpl/qhylab/camera"
	"github.com/nasa-jpl/qhylab/generichttp"
	"github.com/nasa-jpl/qhylab/generichttp/thermal"
	"github.com/nasa-jpl/qhylab/imgrec"
	"github.com/nasa-jpl/qhylab/qhy"
	"github.com/nasa-jpl/qhylab/server"
	"github.com/nasa-jpl/qhylab/util"
)

func init() {
	generichttp.RegisterStatus(qhy.ErrUnknownParameter, http.StatusNotFound)
	generichttp.RegisterStatus(qhy.ErrOutOfRange, http.StatusBadRequest)
	generichttp.RegisterStatus(qhy.ErrUnknownVariant, http.StatusBadRequest)
	generichttp.RegisterStatus(qhy.ErrDegenerateROI, http.StatusBadRequest)
	generichttp.RegisterStatus(qhy.ErrInvalidState, http.StatusConflict)
	generichttp.RegisterStatus(qhy.ErrAlreadyExposing, http.StatusConflict)
	generichttp.RegisterStatus(qhy.ErrCanceled, http.StatusConflict)
	generichttp.RegisterStatus(qhy.ErrClosed, http.StatusGone)
	generichttp.RegisterStatus(qhy.ErrUnsupported, http.StatusNotImplemented)
	generichttp.RegisterStatus(qhy.ErrTimeout, http.StatusGatewayTimeout)
	generichttp.RegisterStatus(qhy.ErrCaptureFailed, http.StatusBadGateway)
	generichttp.RegisterStatus(qhy.ErrTruncatedBuffer, http.StatusBadGateway)
}

// HTTPCamera wraps a camera in an HTTP interface
type HTTPCamera struct {
	Cam camera.Sci

	// Rec, if not nil, saves FITS frames served by /image
	Rec *imgrec.Recorder

	// Metrics, if not nil, counts captures
	Metrics *Metrics

	RouteTable server.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper around a camera.  rec and m may be nil.
func NewHTTPCamera(c camera.Sci, rec *imgrec.Recorder, m *Metrics) HTTPCamera {
	w := HTTPCamera{Cam: c, Rec: rec, Metrics: m, RouteTable: server.RouteTable{}}
	HTTPPicture(c, w.RouteTable, rec, m)
	if cooled, ok := c.(camera.Cooled); ok {
		thermal.HTTPController(cooled, w.RouteTable)
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(w)
	}
	return w
}

// RT satisfies server.HTTPer
func (h HTTPCamera) RT() server.RouteTable {
	return h.RouteTable
}

// HTTPPicture injects HTTP methods into a route table for a camera.
// Requests for frames are served one at a time, in the order they acquire
// the camera; the rest of the routes do not wait on them.
func HTTPPicture(c camera.Sci, table server.RouteTable, rec *imgrec.Recorder, m *Metrics) {
	acq := &sync.Mutex{}
	table[pat.Get("/image")] = GetFrame(c, acq, rec, m)
	table[pat.Post("/burst")] = Burst(c, acq, m)
	table[pat.Get("/exposure-time")] = GetExposureTime(c)
	table[pat.Post("/exposure-time")] = SetExposureTime(c)
	table[pat.Get("/parameters")] = generichttp.GetJSON(func() (interface{}, error) {
		return c.Params().Snapshot(), nil
	})
	table[pat.Get("/parameter/:name")] = GetParameter(c)
	table[pat.Post("/parameter/:name")] = SetParameter(c)
	table[pat.Get("/roi")] = generichttp.GetJSON(func() (interface{}, error) {
		return c.Params().ROI(), nil
	})
	table[pat.Post("/roi")] = SetROI(c)
	table[pat.Get("/binning")] = generichttp.GetInt(func() (int, error) {
		return c.Params().ROI().Binning, nil
	})
	table[pat.Post("/binning")] = generichttp.SetInt(func(b int) error {
		return c.Params().Write(qhy.ParamBinning, float64(b))
	})
	table[pat.Get("/state")] = generichttp.GetString(func() (string, error) {
		return c.State().String(), nil
	})
	table[pat.Post("/cancel")] = generichttp.Do(c.Cancel)
	table[pat.Get("/chip")] = generichttp.GetJSON(func() (interface{}, error) {
		return c.Chip(), nil
	})
}

// setExposure programs the exposure time, rounded to microseconds
func setExposure(c camera.Minimal, d time.Duration) error {
	us := float64(d.Round(time.Microsecond) / time.Microsecond)
	return c.Params().Write(qhy.ParamExposure, us)
}

// SetExposureTime sets the exposure time on a POST request.
// it can be provided either as a query parameter exposureTime, formatted in a
// way that is parseable by golang/time.ParseDuration, or a json payload with
// key f64, holding the exposure time in seconds.
func SetExposureTime(c camera.Sci) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		texp := r.URL.Query().Get("exposureTime")
		var d time.Duration
		var err error
		if texp == "" {
			f := server.FloatT{}
			err = json.NewDecoder(r.Body).Decode(&f)
			defer r.Body.Close()
			d = util.SecsToDuration(f.F64)
		} else {
			d, err = time.ParseDuration(texp)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = setExposure(c, d); err != nil {
			generichttp.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetExposureTime gets the exposure time in seconds on a GET request
func GetExposureTime(c camera.Sci) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hp := server.HumanPayload{T: types.Float64, Float: c.ExposureTime().Seconds()}
		hp.EncodeAndRespond(w, r)
	}
}

// GetParameter returns a parameter by name.  Enum parameters are returned
// as their key, {"str": key}, the rest as {"f64": value}.
func GetParameter(c camera.Minimal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := pat.Param(r, "name")
		reg := c.Params()
		e, err := reg.Entry(name)
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		if e.Domain.Kind == qhy.EnumDomain {
			key, err := reg.ReadEnum(name)
			if err != nil {
				generichttp.Error(w, err)
				return
			}
			server.HumanPayload{T: types.String, String: key}.EncodeAndRespond(w, r)
			return
		}
		f, err := reg.Read(name)
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		server.HumanPayload{T: types.Float64, Float: f}.EncodeAndRespond(w, r)
	}
}

// SetParameter writes a parameter by name from a body of {"f64": value} or,
// for enum parameters, {"str": key}
func SetParameter(c camera.Minimal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := pat.Param(r, "name")
		body := struct {
			F64 *float64 `json:"f64"`
			Str *string  `json:"str"`
		}{}
		err := json.NewDecoder(r.Body).Decode(&body)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch {
		case body.Str != nil:
			err = c.Params().WriteEnum(name, *body.Str)
		case body.F64 != nil:
			err = c.Params().Write(name, *body.F64)
		default:
			http.Error(w, "body must have one of f64 or str", http.StatusBadRequest)
			return
		}
		if err != nil {
			generichttp.Error(w, errors.Wrapf(err, "set %s", name))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// SetROI sets the region of interest and binning from a JSON qhy.ROI
func SetROI(c camera.Minimal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roi := c.Params().ROI()
		err := json.NewDecoder(r.Body).Decode(&roi)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = c.Params().SetROI(roi); err != nil {
			generichttp.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// preview makes an 8 bit image for jpg and png responses.  With stretch the
// range min..max of the frame maps to 0..255, otherwise the top byte of each
// 16 bit sample is used.
func preview(img *qhy.Image, stretch bool) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	scale := func(v uint16) uint8 {
		if img.Bits <= 8 {
			return uint8(v)
		}
		return uint8(v >> 8)
	}
	if stretch {
		lo, hi := img.Pix[0], img.Pix[0]
		for _, v := range img.Pix {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		span := float64(hi) - float64(lo)
		if span == 0 {
			span = 1
		}
		scale = func(v uint16) uint8 {
			return uint8(util.Clamp((float64(v)-float64(lo))/span*255, 0, 255))
		}
	}
	for i, v := range img.Pix {
		out.Pix[i] = scale(v)
	}
	return out
}

// GetFrame takes a picture and returns it on a GET request.
//
// the image format may be specified in a query parameter fmt, one of jpg, png
// or fits; default to jpg.  jpg and png are 8 bit previews; stretch=true maps
// the frame's range to the full 8 bits.
//
// the exposure time may be specified as a query parameter in any time-looking
// format, such as "25ms" or "10us".  Strictly speaking, it must be a valid
// input to golang time.ParseDuration.
//
// if no unit is appended, an s (seconds) is added.
//
// if no exposure time is provided, it is not updated and the existing value is used.
//
// fits frames are also written to the recorder when it is active.
//
// acq is held from setting the exposure time until the header is made, so
// concurrent requests queue rather than fail with the camera busy.
func GetFrame(c camera.Sci, acq sync.Locker, rec *imgrec.Recorder, m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := q.Get("fmt")
		if format == "" {
			format = "jpg"
		}
		switch format {
		case "jpg", "png", "fits":
		default:
			http.Error(w, "fmt must be one of jpg, png, fits", http.StatusBadRequest)
			return
		}
		var T time.Duration
		texp := q.Get("exposureTime")
		if texp != "" {
			if util.AllElementsNumbers(texp) {
				texp = texp + "s"
			}
			var err error
			T, err = time.ParseDuration(texp)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		acq.Lock()
		if err := r.Context().Err(); err != nil {
			acq.Unlock()
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if texp != "" {
			if err := setExposure(c, T); err != nil {
				acq.Unlock()
				generichttp.Error(w, err)
				return
			}
		}
		start := time.Now()
		img, err := c.Capture(r.Context())
		m.observe(start, []*qhy.Image{img}, err)
		var cards []fitsio.Card
		if err == nil && format == "fits" {
			cards = c.HeaderCards()
		}
		acq.Unlock()
		if err != nil {
			generichttp.Error(w, errors.Wrap(err, "capture"))
			return
		}

		switch format {
		case "jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.WriteHeader(http.StatusOK)
			jpeg.Encode(w, preview(img, q.Get("stretch") == "true"), nil)
		case "png":
			w.Header().Set("Content-Type", "image/png")
			w.WriteHeader(http.StatusOK)
			png.Encode(w, preview(img, q.Get("stretch") == "true"))
		case "fits":
			var w2 io.Writer = w
			if rec != nil && rec.Active() {
				w2 = io.MultiWriter(w, rec)
				defer rec.Incr()
			}
			hdr := w.Header()
			hdr.Set("Content-Type", "image/fits")
			hdr.Set("Content-Disposition", "attachment; filename=image.fits")
			err = qhy.WriteFITS(w2, cards, img)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// Burst takes a burst of N frames at M fps and returns it as a fits image
// cube.  It holds acq for the whole burst.
func Burst(c camera.Sci, acq sync.Locker, m *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := struct {
			FPS    float64 `json:"fps"`
			Frames int     `json:"frames"`
		}{}
		err := json.NewDecoder(r.Body).Decode(&t)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		acq.Lock()
		start := time.Now()
		frames, err := c.Burst(r.Context(), t.Frames, t.FPS)
		m.observe(start, frames, err)
		var cards []fitsio.Card
		if err == nil {
			cards = c.HeaderCards()
		}
		acq.Unlock()
		if err != nil {
			generichttp.Error(w, errors.Wrapf(err, "burst of %d", t.Frames))
			return
		}
		for i := range cards {
			if cards[i].Name == "HDRVER" {
				cards[i].Value = qhy.HDRVER + "+burst"
			}
		}
		cards = append(cards, fitsio.Card{Name: "FPS", Value: t.FPS, Comment: "frame rate"})
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=burst.fits")
		err = qhy.WriteFITS(w, cards, frames...)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
