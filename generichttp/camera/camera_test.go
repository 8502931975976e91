package camera_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"goji.io"

	"github.com/nasa-jpl/qhylab/generichttp/camera"
	"github.com/nasa-jpl/qhylab/imgrec"
	"github.com/nasa-jpl/qhylab/qhy"
)

var smallChip = qhy.Chip{WidthMM: 0.24, HeightMM: 0.18, WidthPx: 64, HeightPx: 48, MaxX: 64, MaxY: 48, BitsPerPixel: 16}

func setup(t *testing.T, rec *imgrec.Recorder) (*goji.Mux, *qhy.Camera, *camera.Metrics) {
	t.Helper()
	sim := qhy.NewSimulator()
	sim.Chip = smallChip
	return setupSim(t, sim, rec)
}

func setupSim(t *testing.T, sim *qhy.Simulator, rec *imgrec.Recorder) (*goji.Mux, *qhy.Camera, *camera.Metrics) {
	t.Helper()
	cam, err := qhy.Open(sim, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cam.Close() })
	m, err := camera.NewMetrics(prometheus.NewRegistry(), cam)
	if err != nil {
		t.Fatal(err)
	}
	h := camera.NewHTTPCamera(cam, rec, m)
	mux := goji.NewMux()
	h.RT().Bind(mux)
	return mux, cam, m
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	mux.ServeHTTP(w, r)
	return w
}

func TestGetFrameFITS(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Prefix: "sim", Enabled: true}
	mux, cam, m := setup(t, rec)
	w := do(mux, http.MethodGet, "/image?fmt=fits&exposureTime=0.001", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/fits" {
		t.Errorf("expected image/fits got %s", ct)
	}
	if d := cam.ExposureTime().Microseconds(); d != 1000 {
		t.Errorf("expected exposure of 1000us got %d", d)
	}
	f, err := fitsio.Open(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if diff := cmp.Diff([]int{64, 48}, f.HDU(0).Header().Axes()); diff != "" {
		t.Errorf("axes differ (-want +got):\n%s", diff)
	}
	if n := testutil.ToFloat64(m.Frames.WithLabelValues("ok")); n != 1 {
		t.Errorf("expected 1 ok frame counted, got %f", n)
	}
	if got := rec.Current(); !strings.HasSuffix(got, "sim000001.fits") {
		t.Errorf("expected recorder to move on to sim000001.fits, got %s", got)
	}
}

func TestGetFramePreview(t *testing.T) {
	mux, _, _ := setup(t, nil)
	for format, ct := range map[string]string{"jpg": "image/jpeg", "png": "image/png"} {
		w := do(mux, http.MethodGet, "/image?stretch=true&fmt="+format, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 got %d", format, w.Code)
		}
		if got := w.Header().Get("Content-Type"); got != ct {
			t.Errorf("%s: expected %s got %s", format, ct, got)
		}
	}
	if w := do(mux, http.MethodGet, "/image?fmt=tiff", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for tiff got %d", w.Code)
	}
}

func TestBurst(t *testing.T) {
	mux, _, m := setup(t, nil)
	hooked := 0
	m.OnCapture = func(frames ...*qhy.Image) { hooked = len(frames) }
	w := do(mux, http.MethodPost, "/burst", `{"frames": 3, "fps": 0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	f, err := fitsio.Open(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr := f.HDU(0).Header()
	if diff := cmp.Diff([]int{64, 48, 3}, hdr.Axes()); diff != "" {
		t.Errorf("axes differ (-want +got):\n%s", diff)
	}
	if card := hdr.Get("HDRVER"); card == nil || card.Value != qhy.HDRVER+"+burst" {
		t.Errorf("expected burst header version, got %v", card)
	}
	if n := testutil.ToFloat64(m.Frames.WithLabelValues("ok")); n != 3 {
		t.Errorf("expected 3 ok frames counted, got %f", n)
	}
	if hooked != 3 {
		t.Errorf("expected OnCapture to see 3 frames, got %d", hooked)
	}

	w = do(mux, http.MethodPost, "/burst", `{"frames": 0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an empty burst got %d", w.Code)
	}
}

func TestParameters(t *testing.T) {
	mux, cam, _ := setup(t, nil)
	w := do(mux, http.MethodPost, "/parameter/gain", `{"f64": 30}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if v, _ := cam.Params().Read(qhy.ParamGain); v != 30 {
		t.Errorf("expected gain 30 got %f", v)
	}
	w = do(mux, http.MethodGet, "/parameter/gain", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":30}` {
		t.Errorf("expected {\"f64\":30} got %s", body)
	}

	w = do(mux, http.MethodPost, "/parameter/speed", `{"str": "high"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	w = do(mux, http.MethodGet, "/parameter/speed", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"str":"high"}` {
		t.Errorf("expected {\"str\":\"high\"} got %s", body)
	}

	for _, tc := range []struct {
		path, body string
		code       int
	}{
		{"/parameter/gain", `{"f64": 500}`, http.StatusBadRequest},
		{"/parameter/speed", `{"str": "ludicrous"}`, http.StatusBadRequest},
		{"/parameter/focus", `{"f64": 1}`, http.StatusNotFound},
		{"/parameter/gain", `{}`, http.StatusBadRequest},
	} {
		w = do(mux, http.MethodPost, tc.path, tc.body)
		if w.Code != tc.code {
			t.Errorf("%s %s: expected %d got %d", tc.path, tc.body, tc.code, w.Code)
		}
	}

	w = do(mux, http.MethodGet, "/parameters", "")
	snap := map[string]float64{}
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap[qhy.ParamGain] != 30 {
		t.Errorf("expected gain 30 in snapshot got %f", snap[qhy.ParamGain])
	}
}

func TestROI(t *testing.T) {
	mux, cam, _ := setup(t, nil)
	w := do(mux, http.MethodPost, "/roi", `{"startX": 8, "startY": 8, "width": 16, "height": 12, "binning": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	expected := qhy.ROI{StartX: 8, StartY: 8, Width: 16, Height: 12, Binning: 2}
	if diff := cmp.Diff(expected, cam.Params().ROI()); diff != "" {
		t.Errorf("roi differs (-want +got):\n%s", diff)
	}
	w = do(mux, http.MethodGet, "/binning", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"int":2}` {
		t.Errorf("expected {\"int\":2} got %s", body)
	}
	w = do(mux, http.MethodPost, "/roi", `{"width": 0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a zero width got %d", w.Code)
	}
}

func TestStateAndCancel(t *testing.T) {
	mux, _, _ := setup(t, nil)
	w := do(mux, http.MethodGet, "/state", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"str":"Idle"}` {
		t.Errorf("expected Idle got %s", body)
	}
	// cancel with nothing in flight is a no-op
	if w = do(mux, http.MethodPost, "/cancel", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}
	w = do(mux, http.MethodGet, "/chip", "")
	chip := qhy.Chip{}
	if err := json.NewDecoder(w.Body).Decode(&chip); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(smallChip, chip); diff != "" {
		t.Errorf("chip differs (-want +got):\n%s", diff)
	}
}

func TestClosedIsGone(t *testing.T) {
	mux, cam, _ := setup(t, nil)
	cam.Close()
	if w := do(mux, http.MethodGet, "/image", ""); w.Code != http.StatusGone {
		t.Errorf("expected 410 got %d", w.Code)
	}
}

func TestExposureTime(t *testing.T) {
	mux, cam, _ := setup(t, nil)
	if w := do(mux, http.MethodPost, "/exposure-time", `{"f64": 0.25}`); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", w.Code, w.Body.String())
	}
	if d := cam.ExposureTime().Seconds(); d != 0.25 {
		t.Errorf("expected 0.25s got %f", d)
	}
	if w := do(mux, http.MethodPost, "/exposure-time?exposureTime=10ms", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	w := do(mux, http.MethodGet, "/exposure-time", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":0.01}` {
		t.Errorf("expected {\"f64\":0.01} got %s", body)
	}
}

func TestConcurrentFramesAndParameters(t *testing.T) {
	sim := qhy.NewSimulator()
	sim.Chip = smallChip
	sim.Delay = 20 * time.Millisecond
	mux, cam, m := setupSim(t, sim, nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if w := do(mux, http.MethodGet, "/image?fmt=png", ""); w.Code != http.StatusOK {
				t.Errorf("image: expected 200 got %d: %s", w.Code, w.Body.String())
			}
		}()
		go func() {
			defer wg.Done()
			w := do(mux, http.MethodPost, "/parameter/gain", `{"f64": 5}`)
			if w.Code != http.StatusOK && w.Code != http.StatusConflict {
				t.Errorf("parameter: expected 200 or 409 got %d: %s", w.Code, w.Body.String())
			}
			do(mux, http.MethodGet, "/parameter/gain", "")
			do(mux, http.MethodGet, "/roi", "")
		}()
	}
	wg.Wait()
	if got := testutil.ToFloat64(m.Frames.WithLabelValues("ok")); got != n {
		t.Errorf("expected %d ok frames counted, got %f", n, got)
	}
	if cam.State() != qhy.StateIdle {
		t.Errorf("expected Idle got %s", cam.State())
	}
}
