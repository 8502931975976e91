package imgrec_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nasa-jpl/qhylab/imgrec"
	"github.com/nasa-jpl/qhylab/server"
	"goji.io"
)

func TestRecorderIncrements(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Prefix: "qhy", Enabled: true}
	first := rec.Current()
	if filepath.Base(first) != "qhy000000.fits" {
		t.Errorf("expected qhy000000.fits got %s", filepath.Base(first))
	}
	rec.Write([]byte("SIMPLE"))
	rec.Write([]byte("  = T"))
	rec.Incr()
	second := rec.Current()
	if filepath.Base(second) != "qhy000001.fits" {
		t.Errorf("expected qhy000001.fits got %s", filepath.Base(second))
	}
	b, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "SIMPLE  = T" {
		t.Errorf("expected both writes appended to the first file, got %q", b)
	}
}

func TestRecorderActive(t *testing.T) {
	rec := &imgrec.Recorder{Enabled: true}
	if rec.Active() {
		t.Errorf("expected a recorder with no root to be inactive")
	}
	rec.Root = t.TempDir()
	if !rec.Active() {
		t.Errorf("expected an enabled recorder with a root to be active")
	}
}

type table struct {
	rt server.RouteTable
}

func (t table) RT() server.RouteTable {
	return t.rt
}

func TestInjectRoutes(t *testing.T) {
	rec := &imgrec.Recorder{}
	tbl := table{server.RouteTable{}}
	imgrec.NewHTTPWrapper(rec).Inject(tbl)
	mux := goji.NewMux()
	tbl.rt.Bind(mux)

	root := t.TempDir()
	for _, req := range []struct{ path, body string }{
		{"/autowrite/root", `{"str":"` + root + `"}`},
		{"/autowrite/prefix", `{"str":"dark"}`},
		{"/autowrite/enabled", `{"bool":true}`},
	} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, req.path, strings.NewReader(req.body)))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 got %d", req.path, w.Code)
		}
	}
	if rec.Root != root || rec.Prefix != "dark" || !rec.Enabled {
		t.Errorf("expected root, prefix and enabled to be set, got %q %q %v", rec.Root, rec.Prefix, rec.Enabled)
	}
}
